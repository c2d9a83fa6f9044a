// Package xevent is an in-process, hierarchical publish/subscribe event bus.
//
// Events form a static tree rooted at Root(). Dispatching an event invokes
// every listener registered on that event or any of its ancestors, converting
// the dispatched value as it bubbles upward through valued ancestors.
// Listeners are grouped into channels, which can be closed to bulk-remove
// them (e.g. on plugin unload).
package xevent

import (
	"strings"
)

// Event is a node in the static event tree. It is either Blank (the act of
// dispatching is itself the data) or Valued (a typed payload travels with the
// dispatch). Events are immutable after construction and are identified by
// reference, not by name; names may repeat.
//
// The interface is closed: only Blank, Valued and Proxy implement it.
type Event interface {
	// Name returns the name the event was declared with.
	Name() string
	// Parent returns the direct parent. The root returns itself.
	Parent() Event
	// IsBlank reports whether the event carries no dispatch payload.
	IsBlank() bool
	// IsProxy reports whether this is a proxy alias of another event.
	IsProxy() bool

	// resolve returns the underlying event for proxies, self otherwise.
	resolve() Event
	// convertUp converts a dispatch value for this event into a dispatch
	// value for its parent. Blank events absorb the value.
	convertUp(v any) any
}

// Blank is an Event with no dispatch payload. The root is a Blank and all
// ancestors of a Blank are Blank.
type Blank struct {
	name   string
	parent *Blank
}

var eventRoot = &Blank{name: "Event"}

// Root returns the single root event all others descend from. Listening to
// the root invokes the listener on every dispatch; prefer narrower events.
func Root() *Blank { return eventRoot }

// NewBlank declares a new Blank event as a direct child of the root.
func NewBlank(name string) *Blank { return eventRoot.Child(name) }

// NewValued declares a new Valued event as a direct child of the root.
// The root carries no payload, so the value is absorbed when bubbling up.
func NewValued[T any](name string) *Valued[T] { return ValuedChild[T](eventRoot, name) }

func (b *Blank) Name() string  { return b.name }
func (b *Blank) IsBlank() bool { return true }
func (b *Blank) IsProxy() bool { return false }

// IsRoot reports whether this is the root event.
func (b *Blank) IsRoot() bool { return b.parent == nil }

func (b *Blank) Parent() Event {
	if b.parent == nil {
		return b
	}
	return b.parent
}

func (b *Blank) String() string { return b.name }

func (b *Blank) resolve() Event      { return b }
func (b *Blank) convertUp(_ any) any { return nil }

// Child declares a new Blank event as a direct child of this one.
func (b *Blank) Child(name string) *Blank {
	return &Blank{name: checkName(name), parent: b}
}

// Proxy returns a registration-only alias of this event. See Proxy.
func (b *Blank) Proxy() *Proxy { return &Proxy{of: b} }

// Valued is an Event that carries a payload of type T on dispatch. Because a
// dispatch also triggers ancestor listeners, every Valued event holds a
// converter from its payload type to its parent's.
type Valued[T any] struct {
	name    string
	parent  Event
	convert func(T) any
}

// ValuedChild declares a Valued event under a Blank parent. The parent
// carries no payload, so the converter discards the value.
func ValuedChild[T any](parent *Blank, name string) *Valued[T] {
	return &Valued[T]{
		name:    checkName(name),
		parent:  parent,
		convert: func(T) any { return nil },
	}
}

// ChildOf declares a Valued event of payload type C under a Valued parent of
// payload type T. Values dispatched at the child are converted with conv
// before being delivered to listeners registered on the parent or above.
func ChildOf[C, T any](parent *Valued[T], name string, conv func(C) T) *Valued[C] {
	if parent == nil || conv == nil {
		panic("xevent: ChildOf requires a parent event and a converter")
	}
	return &Valued[C]{
		name:    checkName(name),
		parent:  parent,
		convert: func(c C) any { return conv(c) },
	}
}

// Child declares a child with the same payload type; no conversion happens.
func (e *Valued[T]) Child(name string) *Valued[T] {
	return ChildOf[T](e, name, func(t T) T { return t })
}

func (e *Valued[T]) Name() string   { return e.name }
func (e *Valued[T]) Parent() Event  { return e.parent }
func (e *Valued[T]) IsBlank() bool  { return false }
func (e *Valued[T]) IsProxy() bool  { return false }
func (e *Valued[T]) String() string { return e.name }

func (e *Valued[T]) resolve() Event      { return e }
func (e *Valued[T]) convertUp(v any) any { return e.convert(v.(T)) }

// Proxy returns a registration-only alias of this event. See Proxy.
func (e *Valued[T]) Proxy() *Proxy { return &Proxy{of: e} }

// Dispatch dispatches v on the default bus and returns v once every listener
// phase has completed. Listener failures never surface here; they are
// redispatched on ErrorEvent.
func (e *Valued[T]) Dispatch(v T) T { return e.DispatchOn(Default(), v) }

// DispatchOn dispatches v on an explicit bus. See Dispatch.
func (e *Valued[T]) DispatchOn(b *Bus, v T) T {
	b.dispatch(e, v)
	return v
}

// Dispatch dispatches this blank event on the default bus, returning once
// every listener phase has completed.
func (b *Blank) Dispatch() { b.DispatchOn(Default()) }

// DispatchOn dispatches this blank event on an explicit bus.
func (b *Blank) DispatchOn(bus *Bus) { bus.dispatch(b, nil) }

// Proxy is a registration-only alias of an event. Hand a Proxy to code that
// should be able to listen to an event without being able to dispatch it:
// every read forwards to the underlying event, but Proxy has no Dispatch
// method, so a dispatch is only expressible against the real event value.
//
// The recommended shape is a private event with a public proxy:
//
//	var orderPlaced = xevent.NewValued[OrderID]("OrderPlaced")
//	var OrderPlaced = orderPlaced.Proxy()
type Proxy struct {
	of Event
}

func (p *Proxy) Name() string   { return p.of.Name() }
func (p *Proxy) Parent() Event  { return p.of.Parent() }
func (p *Proxy) IsBlank() bool  { return p.of.IsBlank() }
func (p *Proxy) IsProxy() bool  { return true }
func (p *Proxy) String() string { return p.of.Name() }

func (p *Proxy) resolve() Event      { return p.of.resolve() }
func (p *Proxy) convertUp(v any) any { return p.of.convertUp(v) }

// Lineage returns the path from e up to the root, self first, root last.
// Proxies resolve to the event they alias.
func Lineage(e Event) []Event {
	e = e.resolve()
	lin := []Event{e}
	for !isRoot(e) {
		e = e.Parent()
		lin = append(lin, e)
	}
	return lin
}

// Descends reports whether ancestor appears strictly above e in e's lineage.
func Descends(e, ancestor Event) bool {
	e, ancestor = e.resolve(), ancestor.resolve()
	for !isRoot(e) {
		e = e.Parent()
		if e == ancestor {
			return true
		}
	}
	return false
}

func isRoot(e Event) bool { return e.Parent() == e }

func checkName(name string) string {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "\n\r") {
		panic("xevent: an event name must be a non-blank, single-line string")
	}
	return name
}
