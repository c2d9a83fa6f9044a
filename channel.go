package xevent

// Channel is an independent registration scope for listeners. Listeners on
// one channel are isolated from every other channel; closing a channel
// removes all of them at once, which is the intended way to unload a plugin
// or subsystem.
//
// A channel holds one listener cache per role. It stays live until Close is
// called (or the owning bus is closed); registration on a dead channel fails
// and dispatch skips it.
type Channel struct {
	id   uint64
	mode Mode
	bus  *Bus

	observers *listenerCache
	mutators  *listenerCache
	monitors  *listenerCache
}

// ID returns the channel's unique, process-lifetime-scoped id.
func (c *Channel) ID() uint64 { return c.id }

// Mode returns the channel's dispatch mode.
func (c *Channel) Mode() Mode { return c.mode }

// Active reports whether the channel is still registered with its bus.
func (c *Channel) Active() bool { return c.bus.active(c) }

// Close removes the channel from its bus, dropping all of its listeners.
// In-flight dispatches that already snapshotted the channel set are not
// disrupted; subsequent dispatches will not deliver to it. Idempotent.
func (c *Channel) Close() error {
	c.bus.destroy(c)
	return nil
}

// Observe registers an observer listener for e and all its descendants.
func (c *Channel) Observe(e Event, l Listener) error {
	return c.register(c.observers, e, l)
}

// Mutate registers a mutator listener for e and all its descendants.
// Mutators run strictly sequentially; see RoleMutator.
func (c *Channel) Mutate(e Event, l Listener) error {
	return c.register(c.mutators, e, l)
}

// Monitor registers a monitor listener for e and all its descendants.
// Monitors run after all mutators and observe the final value state.
func (c *Channel) Monitor(e Event, l Listener) error {
	return c.register(c.monitors, e, l)
}

// Register registers l under an explicit role. Equivalent to the role's
// named method.
func (c *Channel) Register(e Event, r Role, l Listener) error {
	return c.register(c.cacheFor(r), e, l)
}

func (c *Channel) register(cache *listenerCache, e Event, l Listener) error {
	if e == nil {
		return ErrNilEvent
	}
	if l == nil {
		return ErrNilListener
	}
	if !c.Active() {
		return ErrChannelClosed
	}
	cache.add(e, l)
	return nil
}

func (c *Channel) cacheFor(r Role) *listenerCache {
	switch r {
	case RoleMutator:
		return c.mutators
	case RoleMonitor:
		return c.monitors
	default:
		return c.observers
	}
}
