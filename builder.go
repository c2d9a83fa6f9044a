package xevent

import (
	"runtime"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	logger *xlog.Logger
	clock  xclock.Clock
	fanout int
}

// NewBusBuilder returns a new builder with sensible defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{}
}

// WithLogger injects the logger used for debug traces and as the last-resort
// sink for failures produced while dispatching ErrorEvent.
func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

// WithClock injects the clock used to stamp DispatchError records.
func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithFanout caps the number of listeners executing concurrently during the
// observer and monitor phases of a single dispatch. Defaults to
// 2*GOMAXPROCS.
func (bb *BusBuilder) WithFanout(n int) *BusBuilder {
	if n > 0 {
		bb.fanout = n
	}
	return bb
}

// Build assembles the Bus.
func (bb *BusBuilder) Build() *Bus {
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}
	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	fanout := bb.fanout
	if fanout < 1 {
		fanout = 2 * runtime.GOMAXPROCS(0)
	}
	return &Bus{
		logger:   lg,
		clock:    clk,
		fanout:   fanout,
		channels: make(map[uint64]*Channel),
	}
}
