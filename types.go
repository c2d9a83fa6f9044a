package xevent

// Listener is the uniform call signature every registered handler is stored
// behind. It receives the event the dispatch was triggered for (never a
// proxy) and the dispatch value converted to the payload type of the event
// the listener was registered on, or nil at blank depths. Returning an error
// (or panicking) yields a DispatchError; it never aborts sibling listeners.
type Listener func(e Event, v any) error

// Role governs the ordering and parallelism a listener is executed under.
type Role uint8

const (
	// RoleObserver listeners run first, with no ordering guarantee, and may
	// fan out on the worker pool for Async channels.
	RoleObserver Role = iota
	// RoleMutator listeners are the only ones permitted to amend the payload
	// as part of the dispatch. They run strictly sequentially in a single
	// deterministic order: channel order, lineage order (self before
	// parent), registration order.
	RoleMutator
	// RoleMonitor listeners run last, after all mutators have completed, so
	// they observe the final value state. Parallelism as for observers.
	RoleMonitor
)

func (r Role) String() string {
	switch r {
	case RoleObserver:
		return "observer"
	case RoleMutator:
		return "mutator"
	case RoleMonitor:
		return "monitor"
	default:
		return "unknown"
	}
}

// Mode controls whether a channel's observer and monitor phases may use the
// worker pool or must run on the dispatching goroutine.
type Mode uint8

const (
	// Sync channels run every listener on the dispatching goroutine.
	Sync Mode = iota
	// Async channels fan observer and monitor listeners out on the pool.
	// Mutators run on the dispatching goroutine regardless.
	Async
)

// Metrics is a point-in-time snapshot of bus telemetry.
type Metrics struct {
	// Dispatches counts dispatch calls, including error redispatches.
	Dispatches uint64
	// ListenerFailures counts DispatchError records produced.
	ListenerFailures uint64
	// Redispatches counts failure records redelivered on ErrorEvent.
	Redispatches uint64
	// SinkWrites counts records written to the last-resort logger sink
	// because they were produced while dispatching ErrorEvent itself.
	SinkWrites uint64
}
