package xevent

import (
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Bus owns the set of live channels and coordinates dispatch across them.
// Most programs use the process-wide Default bus; construct a dedicated one
// with NewBusBuilder for isolation (tests, embedded subsystems).
type Bus struct {
	logger *xlog.Logger
	clock  xclock.Clock
	fanout int

	mu       sync.Mutex
	channels map[uint64]*Channel
	nextID   atomic.Uint64
	closed   atomic.Bool

	metrics busMetrics
}

// busMetrics uses lock-free atomics; dispatch is the hot path.
type busMetrics struct {
	dispatches   atomic.Uint64
	failures     atomic.Uint64
	redispatches atomic.Uint64
	sinkWrites   atomic.Uint64
}

// Clock returns the clock the bus stamps DispatchError records with.
func (b *Bus) Clock() xclock.Clock { return b.clock }

// Metrics returns a snapshot of bus telemetry.
func (b *Bus) Metrics() Metrics {
	return Metrics{
		Dispatches:       b.metrics.dispatches.Load(),
		ListenerFailures: b.metrics.failures.Load(),
		Redispatches:     b.metrics.redispatches.Load(),
		SinkWrites:       b.metrics.sinkWrites.Load(),
	}
}

// Close kills every live channel and rejects further channel creation.
// Idempotent. Dispatching on a closed bus is harmless: with no live
// channels, no listener runs.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.mu.Lock()
	b.channels = make(map[uint64]*Channel)
	b.mu.Unlock()
	return nil
}
