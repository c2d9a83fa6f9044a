package xevent

import (
	"sort"
)

/*
Channel registry. Go has no weak references to lean on, so liveness is
explicit: a channel is live exactly while it is registered here, and Close
removes it. Mutation is serialized under the bus lock; dispatch iterates a
point-in-time copy so channel churn never blocks or is blocked by a dispatch
in flight.
*/

// NewChannel creates a channel, registers it, and returns it live.
//
// Channels are intended for groups of listeners that load and unload
// together; a handful per process is typical, not thousands.
func (b *Bus) NewChannel(m Mode) (*Channel, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	ch := &Channel{
		id:        b.nextID.Add(1),
		mode:      m,
		bus:       b,
		observers: newListenerCache(),
		mutators:  newListenerCache(),
		monitors:  newListenerCache(),
	}
	b.mu.Lock()
	b.channels[ch.id] = ch
	b.mu.Unlock()
	return ch, nil
}

func (b *Bus) active(ch *Channel) bool {
	b.mu.Lock()
	_, ok := b.channels[ch.id]
	b.mu.Unlock()
	return ok
}

func (b *Bus) destroy(ch *Channel) {
	b.mu.Lock()
	delete(b.channels, ch.id)
	b.mu.Unlock()
}

// snapshotChannels copies the live set, ordered by channel id (creation
// order). The order is what makes the mutator phase deterministic.
func (b *Bus) snapshotChannels() []*Channel {
	b.mu.Lock()
	chs := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		chs = append(chs, ch)
	}
	b.mu.Unlock()
	sort.Slice(chs, func(i, j int) bool { return chs[i].id < chs[j].id })
	return chs
}
