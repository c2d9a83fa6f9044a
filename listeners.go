package xevent

import (
	"fmt"
)

// Accept adapts a value-only handler to a Listener, asserting the payload to
// T. A payload of the wrong type (including a missing one) yields an error
// record rather than a panic.
func Accept[T any](fn func(v T) error) Listener {
	if fn == nil {
		panic("xevent: Accept called with nil func")
	}
	return func(_ Event, v any) error {
		t, ok := v.(T)
		if !ok {
			return fmt.Errorf("xevent: payload %T is not %T", v, t)
		}
		return fn(t)
	}
}

// Run adapts a no-argument handler to a Listener; the natural fit for blank
// events, where the dispatch itself is the data.
func Run(fn func() error) Listener {
	if fn == nil {
		panic("xevent: Run called with nil func")
	}
	return func(Event, any) error { return fn() }
}

// Async wraps a listener so it runs on its own goroutine and the dispatch
// does not wait for it. An async listener can outlive the dispatch call, so
// it must never mutate the dispatched value; its errors and panics are
// dropped rather than recorded.
func Async(l Listener) Listener {
	if l == nil {
		panic("xevent: Async called with nil listener")
	}
	return func(e Event, v any) error {
		go func() {
			defer func() { _ = recover() }()
			_ = l(e, v)
		}()
		return nil
	}
}

// WhenCanceled adapts a handler that should only run once the dispatched
// Cancelable has been canceled by an earlier listener.
func WhenCanceled[T any](fn func(v T) error) Listener {
	if fn == nil {
		panic("xevent: WhenCanceled called with nil func")
	}
	return Accept(func(c Cancelable[T]) error {
		if c.Canceled() {
			return fn(c.Value())
		}
		return nil
	})
}

// UnlessCanceled adapts a handler that should be skipped once the dispatched
// Cancelable has been canceled.
func UnlessCanceled[T any](fn func(v T) error) Listener {
	if fn == nil {
		panic("xevent: UnlessCanceled called with nil func")
	}
	return Accept(func(c Cancelable[T]) error {
		if !c.Canceled() {
			return fn(c.Value())
		}
		return nil
	})
}
