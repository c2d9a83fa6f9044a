package xevent

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*Bus, *Channel) {
	t.Helper()
	bus := NewBusBuilder().Build()
	ch, err := bus.NewChannel(Sync)
	require.NoError(t, err)
	return bus, ch
}

func TestDispatchDeliversToAncestors(t *testing.T) {
	bus, ch := newTestBus(t)
	parent := NewBlank("AncestorParent")
	child := parent.Child("AncestorChild")
	unrelated := NewBlank("AncestorUnrelated")

	hits := map[string]int{}
	require.NoError(t, ch.Observe(parent, Run(func() error { hits["parent"]++; return nil })))
	require.NoError(t, ch.Observe(child, Run(func() error { hits["child"]++; return nil })))
	require.NoError(t, ch.Observe(unrelated, Run(func() error { hits["unrelated"]++; return nil })))
	require.NoError(t, ch.Observe(Root(), Run(func() error { hits["root"]++; return nil })))

	child.DispatchOn(bus)
	assert.Equal(t, map[string]int{"parent": 1, "child": 1, "root": 1}, hits)

	parent.DispatchOn(bus)
	assert.Equal(t, 2, hits["parent"])
	assert.Equal(t, 1, hits["child"]) // descendants are never triggered
	assert.Equal(t, 0, hits["unrelated"])
}

func TestConversionChainComposesOncePerHop(t *testing.T) {
	bus, ch := newTestBus(t)

	a := NewValued[string]("ConvA")
	var bCalls, cCalls atomic.Int64
	b := ChildOf(a, "ConvB", func(i int) string {
		bCalls.Add(1)
		return strconv.Itoa(i)
	})
	c := ChildOf(b, "ConvC", func(ok bool) int {
		cCalls.Add(1)
		if ok {
			return 1
		}
		return 0
	})

	var atA []string
	var atB []int
	var atC []bool
	require.NoError(t, ch.Observe(a, Accept(func(v string) error { atA = append(atA, v); return nil })))
	require.NoError(t, ch.Observe(b, Accept(func(v int) error { atB = append(atB, v); return nil })))
	require.NoError(t, ch.Observe(c, Accept(func(v bool) error { atC = append(atC, v); return nil })))

	out := c.DispatchOn(bus, true)
	assert.True(t, out)
	assert.Equal(t, []bool{true}, atC)
	assert.Equal(t, []int{1}, atB)
	assert.Equal(t, []string{"1"}, atA)
	// each converter ran exactly once even though three phases reuse the chain
	assert.EqualValues(t, 1, bCalls.Load())
	assert.EqualValues(t, 1, cCalls.Load())
}

func TestBlankAncestorAbsorbsValue(t *testing.T) {
	bus, ch := newTestBus(t)
	orders := NewBlank("Orders")
	orderPlaced := ValuedChild[int](orders, "OrderPlaced")

	var order []string
	require.NoError(t, ch.Observe(orders, func(_ Event, v any) error {
		assert.Nil(t, v)
		order = append(order, "orders-observer")
		return nil
	}))
	require.NoError(t, ch.Mutate(orderPlaced, Accept(func(id int) error {
		assert.Equal(t, 42, id)
		order = append(order, "placed-mutator")
		return nil
	})))

	got := orderPlaced.DispatchOn(bus, 42)
	assert.Equal(t, 42, got)
	// phases are fixed: observers run before mutators
	assert.Equal(t, []string{"orders-observer", "placed-mutator"}, order)
}

func TestPhaseOrderObserversMutatorsMonitors(t *testing.T) {
	bus, ch := newTestBus(t)
	evt := NewValued[*int]("PhaseOrder")

	var order []string
	require.NoError(t, ch.Monitor(evt, Accept(func(v *int) error {
		order = append(order, fmt.Sprintf("monitor:%d", *v))
		return nil
	})))
	require.NoError(t, ch.Mutate(evt, Accept(func(v *int) error {
		*v++
		order = append(order, fmt.Sprintf("mutator:%d", *v))
		return nil
	})))
	require.NoError(t, ch.Observe(evt, Accept(func(v *int) error {
		order = append(order, fmt.Sprintf("observer:%d", *v))
		return nil
	})))

	n := 0
	evt.DispatchOn(bus, &n)
	// monitors observe the post-mutation state
	assert.Equal(t, []string{"observer:0", "mutator:1", "monitor:1"}, order)
}

func TestMutatorOrderIsDeterministic(t *testing.T) {
	bus := NewBusBuilder().Build()
	ch1, err := bus.NewChannel(Sync)
	require.NoError(t, err)
	ch2, err := bus.NewChannel(Async) // mutators stay sequential even on async channels
	require.NoError(t, err)

	parent := NewValued[int]("MutOrderParent")
	child := parent.Child("MutOrderChild")

	var order []string
	mk := func(tag string) Listener {
		return func(Event, any) error {
			order = append(order, tag)
			return nil
		}
	}
	require.NoError(t, ch1.Mutate(child, mk("ch1-child-a")))
	require.NoError(t, ch1.Mutate(child, mk("ch1-child-b")))
	require.NoError(t, ch1.Mutate(parent, mk("ch1-parent")))
	require.NoError(t, ch2.Mutate(child, mk("ch2-child")))
	require.NoError(t, ch2.Mutate(parent, mk("ch2-parent")))

	want := []string{"ch1-child-a", "ch1-child-b", "ch1-parent", "ch2-child", "ch2-parent"}
	for i := 0; i < 50; i++ {
		order = order[:0]
		child.DispatchOn(bus, i)
		require.Equal(t, want, order, "dispatch %d", i)
	}
}

func TestListenerFailureIsIsolated(t *testing.T) {
	bus, ch := newTestBus(t)
	evt := NewValued[int]("FailureIsolation")

	var ran []string
	require.NoError(t, ch.Observe(evt, Run(func() error {
		ran = append(ran, "bad-observer")
		return errors.New("observer boom")
	})))
	require.NoError(t, ch.Observe(evt, Run(func() error { ran = append(ran, "good-observer"); return nil })))
	require.NoError(t, ch.Mutate(evt, Run(func() error { ran = append(ran, "mutator"); return nil })))
	require.NoError(t, ch.Monitor(evt, Run(func() error { ran = append(ran, "monitor"); return nil })))

	var recs []*DispatchError
	require.NoError(t, ch.Observe(ErrorEvent, Accept(func(d *DispatchError) error {
		recs = append(recs, d)
		return nil
	})))

	out := evt.DispatchOn(bus, 7)
	assert.Equal(t, 7, out)
	assert.Equal(t, []string{"bad-observer", "good-observer", "mutator", "monitor"}, ran)

	require.Len(t, recs, 1)
	assert.True(t, recs[0].Event == Event(evt))
	assert.ErrorContains(t, recs[0].Err, "observer boom")

	m := bus.Metrics()
	assert.EqualValues(t, 2, m.Dispatches) // original + error redispatch
	assert.EqualValues(t, 1, m.ListenerFailures)
	assert.EqualValues(t, 1, m.Redispatches)
	assert.EqualValues(t, 0, m.SinkWrites)
}

func TestListenerPanicBecomesErrorRecord(t *testing.T) {
	bus, ch := newTestBus(t)
	evt := NewBlank("PanicIsolation")

	survived := false
	require.NoError(t, ch.Observe(evt, Run(func() error { panic("kaboom") })))
	require.NoError(t, ch.Observe(evt, Run(func() error { survived = true; return nil })))

	var recs []*DispatchError
	require.NoError(t, ch.Observe(ErrorEvent, Accept(func(d *DispatchError) error {
		recs = append(recs, d)
		return nil
	})))

	assert.NotPanics(t, func() { evt.DispatchOn(bus) })
	assert.True(t, survived)
	require.Len(t, recs, 1)
	assert.ErrorContains(t, recs[0].Err, "kaboom")
	assert.False(t, recs[0].At.IsZero())
}

func TestErrorEventRecursionIsBounded(t *testing.T) {
	bus, ch := newTestBus(t)
	evt := NewValued[int]("RecursionSource")

	require.NoError(t, ch.Mutate(evt, Run(func() error { return errors.New("original failure") })))

	var errListenerCalls atomic.Int64
	require.NoError(t, ch.Observe(ErrorEvent, Run(func() error {
		errListenerCalls.Add(1)
		return errors.New("error listener also fails")
	})))

	done := make(chan struct{})
	go func() {
		evt.DispatchOn(bus, 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not terminate; error redispatch recursed")
	}

	// one failure, one redispatch attempt, then the sink
	assert.EqualValues(t, 1, errListenerCalls.Load())
	m := bus.Metrics()
	assert.EqualValues(t, 2, m.Dispatches)
	assert.EqualValues(t, 2, m.ListenerFailures)
	assert.EqualValues(t, 1, m.Redispatches)
	assert.EqualValues(t, 1, m.SinkWrites)
}

func TestDispatchingErrorEventDirectlyUsesSink(t *testing.T) {
	bus, ch := newTestBus(t)
	require.NoError(t, ch.Observe(ErrorEvent, Run(func() error { return errors.New("bad error listener") })))

	rec := &DispatchError{Event: NewBlank("SinkSource"), Err: errors.New("synthetic"), At: bus.Clock().Now()}
	out := ErrorEvent.DispatchOn(bus, rec)
	assert.Equal(t, rec, out)

	m := bus.Metrics()
	assert.EqualValues(t, 1, m.Dispatches)
	assert.EqualValues(t, 0, m.Redispatches)
	assert.EqualValues(t, 1, m.SinkWrites)
}

func TestConverterPanicSkipsValuedAncestorsOnly(t *testing.T) {
	bus, ch := newTestBus(t)

	blankTop := NewBlank("ConvFailTop")
	valuedMid := ValuedChild[string](blankTop, "ConvFailMid")
	leaf := ChildOf(valuedMid, "ConvFailLeaf", func(int) string { panic("converter broke") })

	var ran []string
	require.NoError(t, ch.Observe(leaf, Accept(func(int) error { ran = append(ran, "leaf"); return nil })))
	require.NoError(t, ch.Observe(valuedMid, Accept(func(string) error { ran = append(ran, "mid"); return nil })))
	require.NoError(t, ch.Observe(blankTop, Run(func() error { ran = append(ran, "top"); return nil })))

	var recs []*DispatchError
	require.NoError(t, ch.Observe(ErrorEvent, Accept(func(d *DispatchError) error {
		recs = append(recs, d)
		return nil
	})))

	leaf.DispatchOn(bus, 3)
	// the leaf still gets its own value, the blank depths never needed one,
	// and the valued ancestor whose value could not be produced is skipped
	assert.Equal(t, []string{"leaf", "top"}, ran)
	require.Len(t, recs, 1)
	assert.ErrorContains(t, recs[0].Err, "converter broke")
}

func TestAsyncChannelFanOutCompletesBeforeReturn(t *testing.T) {
	bus := NewBusBuilder().WithFanout(4).Build()
	ch, err := bus.NewChannel(Async)
	require.NoError(t, err)

	evt := NewBlank("AsyncFanOut")
	const listeners = 32
	var done atomic.Int64
	for i := 0; i < listeners; i++ {
		require.NoError(t, ch.Observe(evt, Run(func() error {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil
		})))
	}

	evt.DispatchOn(bus)
	// dispatch blocks until the whole fan-out has joined
	assert.EqualValues(t, listeners, done.Load())
}

func TestAsyncChannelFailuresAreAllCollected(t *testing.T) {
	bus := NewBusBuilder().Build()
	ch, err := bus.NewChannel(Async)
	require.NoError(t, err)

	evt := NewBlank("AsyncFailures")
	const bad = 8
	for i := 0; i < bad; i++ {
		require.NoError(t, ch.Observe(evt, Run(func() error { return errors.New("async boom") })))
	}

	var recs atomic.Int64
	require.NoError(t, ch.Observe(ErrorEvent, Run(func() error {
		recs.Add(1)
		return nil
	})))

	evt.DispatchOn(bus)
	assert.EqualValues(t, bad, recs.Load())
}

func TestDefaultBusFacade(t *testing.T) {
	SetDefault(NewBusBuilder().Build())

	ch, err := NewChannel(Sync)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	evt := NewValued[string]("FacadeTopic")
	var got string
	require.NoError(t, ch.Observe(evt, Accept(func(v string) error {
		got = v
		return nil
	})))

	out := evt.Dispatch("via default")
	assert.Equal(t, "via default", out)
	assert.Equal(t, "via default", got)
}

func TestDispatchWithNoChannelsIsHarmless(t *testing.T) {
	bus := NewBusBuilder().Build()
	evt := NewValued[int]("NobodyListens")
	assert.Equal(t, 9, evt.DispatchOn(bus, 9))
	assert.EqualValues(t, 1, bus.Metrics().Dispatches)
}
