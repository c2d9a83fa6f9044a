package xevent

import (
	"fmt"
	"sync"

	"github.com/trickstertwo/xlog"
	"golang.org/x/sync/errgroup"
)

// dispatch runs the three-phase protocol for e with the given value (nil for
// blank events). It returns only after every phase, including parallel
// fan-out and any error redispatch, has completed. Listener failures never
// escape to the caller.
//
// Proxies cannot reach here: Dispatch is only defined on Blank and Valued,
// and registration resolves proxies before caching.
func (b *Bus) dispatch(e Event, value any) {
	b.metrics.dispatches.Add(1)
	start := b.clock.Now()

	rec := &errorRecorder{}
	lin := Lineage(e)
	values, broken := b.convertChain(e, lin, value, rec)
	channels := b.snapshotChannels()

	// Phase ordering is fixed: observers, then mutators, then monitors.
	b.fanOutPhase(channels, RoleObserver, e, lin, values, broken, rec)
	b.mutatorPhase(channels, e, lin, values, broken, rec)
	b.fanOutPhase(channels, RoleMonitor, e, lin, values, broken, rec)

	failed := rec.take()
	if len(failed) > 0 {
		b.metrics.failures.Add(uint64(len(failed)))
		b.resurface(e, failed)
	}

	b.logger.With(
		xlog.Str("event", e.Name()),
		xlog.Dur("duration", b.clock.Since(start)),
	).Debug().Msg("xevent: dispatch complete")
}

// convertChain computes the converted value for every lineage depth, once
// per dispatch. values[0] is the dispatched value; values[i] is produced by
// depth i-1's converter. Once a blank depth is reached no further conversion
// occurs. Returns the first depth for which no value could be produced
// (len(lin) if the chain is complete): if a converter fails, the failure is
// recorded and valued depths at or above the break are skipped entirely,
// while blank depths still run (they never needed the value).
func (b *Bus) convertChain(e Event, lin []Event, value any, rec *errorRecorder) (values []any, broken int) {
	values = make([]any, len(lin))
	values[0] = value
	for i := 0; i+1 < len(lin); i++ {
		if lin[i].IsBlank() {
			break
		}
		v, err := safeConvert(lin[i], values[i])
		if err != nil {
			rec.add(b.newDispatchError(e, err))
			return values, i + 1
		}
		values[i+1] = v
	}
	return values, len(lin)
}

func safeConvert(e Event, v any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("converting %s value for its parent: %v", e.Name(), r)
		}
	}()
	return e.convertUp(v), nil
}

// fanOutPhase runs the observer or monitor phase: every applicable listener
// on every live channel, with no ordering guarantee. Listeners of Async
// channels run as a scoped group of parallel tasks capped by the bus fanout
// limit; Sync channels run inline on the dispatching goroutine. The phase
// completes only once every invocation has returned.
func (b *Bus) fanOutPhase(channels []*Channel, role Role, e Event, lin []Event, values []any, broken int, rec *errorRecorder) {
	var g errgroup.Group
	g.SetLimit(b.fanout)
	for _, ch := range channels {
		if !ch.Active() {
			continue
		}
		parallel := ch.mode == Async
		for _, st := range ch.cacheFor(role).lookup(e) {
			if st.depth >= broken && !lin[st.depth].IsBlank() {
				continue
			}
			v := values[st.depth]
			for _, l := range st.listeners {
				if parallel {
					g.Go(func() error {
						b.invoke(l, e, v, rec)
						return nil
					})
				} else {
					b.invoke(l, e, v, rec)
				}
			}
		}
	}
	_ = g.Wait()
}

// mutatorPhase runs every mutator strictly sequentially on the dispatching
// goroutine, in a single deterministic order: channel id order, lineage
// order (self before parent), registration order within a node.
func (b *Bus) mutatorPhase(channels []*Channel, e Event, lin []Event, values []any, broken int, rec *errorRecorder) {
	for _, ch := range channels {
		if !ch.Active() {
			continue
		}
		for _, st := range ch.mutators.lookup(e) {
			if st.depth >= broken && !lin[st.depth].IsBlank() {
				continue
			}
			for _, l := range st.listeners {
				b.invoke(l, e, values[st.depth], rec)
			}
		}
	}
}

// invoke runs a single listener with per-listener fault isolation: an error
// return or a panic becomes one DispatchError and nothing else stops.
func (b *Bus) invoke(l Listener, e Event, v any, rec *errorRecorder) {
	defer func() {
		if r := recover(); r != nil {
			rec.add(b.newDispatchError(e, fmt.Errorf("listener panic: %v", r)))
		}
	}()
	if err := l(e, v); err != nil {
		rec.add(b.newDispatchError(e, err))
	}
}

// resurface gives failure records one chance to be observed through ordinary
// listener machinery by redispatching them on ErrorEvent. If the failing
// dispatch already targeted ErrorEvent or a descendant of it, the records go
// to the logger sink instead; that bound is what keeps a failing error
// listener from recursing forever.
func (b *Bus) resurface(e Event, failed []*DispatchError) {
	if eventIsError(e) {
		for _, f := range failed {
			b.metrics.sinkWrites.Add(1)
			b.logger.With(
				xlog.Str("event", e.Name()),
			).Error().Err(f.Err).Msg("xevent: unmanaged failure while dispatching the error event")
		}
		return
	}
	for _, f := range failed {
		b.metrics.redispatches.Add(1)
		ErrorEvent.DispatchOn(b, f)
	}
}

func eventIsError(e Event) bool {
	err := Event(ErrorEvent)
	e = e.resolve()
	return e == err || Descends(e, err)
}

func (b *Bus) newDispatchError(e Event, err error) *DispatchError {
	return &DispatchError{Event: e, Err: err, At: b.clock.Now()}
}

// errorRecorder aggregates DispatchError records across phases and
// goroutines without aborting anything.
type errorRecorder struct {
	mu   sync.Mutex
	recs []*DispatchError
}

func (r *errorRecorder) add(d *DispatchError) {
	r.mu.Lock()
	r.recs = append(r.recs, d)
	r.mu.Unlock()
}

func (r *errorRecorder) take() []*DispatchError {
	r.mu.Lock()
	recs := r.recs
	r.recs = nil
	r.mu.Unlock()
	return recs
}
