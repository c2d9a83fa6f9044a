package xevent

import (
	"sync"
)

var (
	defaultBus   *Bus
	defaultBusMu sync.Mutex
)

// Default returns the process-wide singleton Bus, building one with default
// settings on first use. The Dispatch methods on Blank and Valued target it.
func Default() *Bus {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()

	if defaultBus == nil {
		defaultBus = NewBusBuilder().Build()
	}
	return defaultBus
}

// SetDefault replaces the process-wide default Bus.
func SetDefault(b *Bus) {
	if b == nil {
		panic("xevent: SetDefault called with nil Bus")
	}
	defaultBusMu.Lock()
	defaultBus = b
	defaultBusMu.Unlock()
}

// NewChannel is the Facade creating a channel on the default bus.
func NewChannel(m Mode) (*Channel, error) {
	return Default().NewChannel(m)
}
