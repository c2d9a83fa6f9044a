package xevent

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusClosed is returned when a channel is requested from a closed bus.
	ErrBusClosed = errors.New("xevent: bus is closed")
	// ErrChannelClosed is returned when registering on a closed channel.
	ErrChannelClosed = errors.New("xevent: channel is no longer active")
	// ErrNilEvent is returned when a registration names no event.
	ErrNilEvent = errors.New("xevent: event must not be nil")
	// ErrNilListener is returned when a registration supplies no listener.
	ErrNilListener = errors.New("xevent: listener must not be nil")
)

// DispatchError records a single listener (or converter) failure during a
// dispatch. Records are redispatched as the payload of ErrorEvent, so
// consumers observe them through ordinary listener machinery.
type DispatchError struct {
	// Event is the event that was being dispatched when the failure occurred.
	Event Event
	// Err is the underlying failure.
	Err error
	// At is the time the failure was recorded, from the bus clock.
	At time.Time
}

// ErrorEvent is the reserved event that every dispatch implicitly targets on
// listener failure. Listeners register on it like any other event. Failures
// produced while dispatching ErrorEvent itself (or a descendant) are not
// redispatched; they go to the bus logger instead.
var ErrorEvent = ValuedChild[*DispatchError](eventRoot, "Error")

func (e *DispatchError) Error() string {
	return fmt.Sprintf("xevent: dispatching %s: %v", e.Event.Name(), e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
