package xevent

import (
	"sync/atomic"
)

// Cancelable wraps a dispatch value with an advisory cancellation flag.
// The bus does not inspect or enforce it: listeners cooperate by checking
// Canceled, and the dispatching code decides what a canceled dispatch means
// after the call returns. Mutators are the role meant to call SetCanceled;
// an async listener flipping the flag after dispatch returns is undefined
// behavior as far as the dispatcher is concerned.
type Cancelable[T any] interface {
	Value() T
	Canceled() bool
	SetCanceled(cancel bool)
}

// NewCancelable wraps v with a plain, single-goroutine cancellation flag.
// Use NewAtomicCancelable when any listener on the event may run async.
func NewCancelable[T any](v T) Cancelable[T] {
	return &simpleCancelable[T]{value: v}
}

// NewAtomicCancelable wraps v with an atomically read and written flag.
func NewAtomicCancelable[T any](v T) Cancelable[T] {
	return &atomicCancelable[T]{value: v}
}

// CancelableFunc wraps v with a flag backed by caller-supplied accessors,
// for values that already track cancellation state themselves.
func CancelableFunc[T any](v T, get func() bool, set func(bool)) Cancelable[T] {
	if get == nil || set == nil {
		panic("xevent: CancelableFunc requires both accessors")
	}
	return &funcCancelable[T]{value: v, get: get, set: set}
}

type simpleCancelable[T any] struct {
	value    T
	canceled bool
}

func (c *simpleCancelable[T]) Value() T                { return c.value }
func (c *simpleCancelable[T]) Canceled() bool          { return c.canceled }
func (c *simpleCancelable[T]) SetCanceled(cancel bool) { c.canceled = cancel }

type atomicCancelable[T any] struct {
	value    T
	canceled atomic.Bool
}

func (c *atomicCancelable[T]) Value() T                { return c.value }
func (c *atomicCancelable[T]) Canceled() bool          { return c.canceled.Load() }
func (c *atomicCancelable[T]) SetCanceled(cancel bool) { c.canceled.Store(cancel) }

type funcCancelable[T any] struct {
	value T
	get   func() bool
	set   func(bool)
}

func (c *funcCancelable[T]) Value() T                { return c.value }
func (c *funcCancelable[T]) Canceled() bool          { return c.get() }
func (c *funcCancelable[T]) SetCanceled(cancel bool) { c.set(cancel) }
