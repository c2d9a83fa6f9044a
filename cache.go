package xevent

import (
	"sync"
)

/*
The cache is tuned on the assumption that dispatches vastly outnumber
registrations: listeners usually arrive in bursts (process init, plugin
load) and are then iterated on every dispatch. Iteration speed wins.

A cache tree lazily mirrors the event tree: a node exists only if it has at
least one listener or is an ancestor of a node that does (the root node
always exists). Each node keeps its mutable listener list separate from a
baked snapshot; dispatch reads the snapshot, so a registration never tears a
list out from under an in-flight dispatch. A dispatched event only triggers
itself and its ancestors, so a parent node can ignore listeners added below
it, and the lookup path for any event is exactly its lineage.
*/

// listenerCache holds the listeners of one channel for one role.
type listenerCache struct {
	root *cacheNode
}

func newListenerCache() *listenerCache {
	return &listenerCache{root: newCacheNode(eventRoot)}
}

// lineageStage pairs a lineage depth (0 = the dispatched event) with the
// baked listeners registered at that depth.
type lineageStage struct {
	depth     int
	listeners []Listener
}

// add appends l to the node for e, materializing any missing ancestor nodes.
// Safe for concurrent use; if two registrations race to install the same
// missing node, exactly one wins and the other retries against it.
func (c *listenerCache) add(e Event, l Listener) {
	c.nodeFor(e.resolve()).add(l)
}

// lookup returns the baked listener snapshots along e's lineage, ordered
// self first, root last. It materializes no new nodes: if e itself was never
// registered, the walk simply starts at the nearest existing ancestor.
func (c *listenerCache) lookup(e Event) []lineageStage {
	lin := Lineage(e)

	// Walk root -> e as far as nodes exist, snapshotting each.
	stages := make([]lineageStage, 0, len(lin))
	cur := c.root
	stages = append(stages, lineageStage{depth: len(lin) - 1, listeners: cur.snapshot()})
	for idx := len(lin) - 1; idx > 0; idx-- {
		next := cur.childFor(lin[idx-1])
		if next == nil {
			break
		}
		cur = next
		stages = append(stages, lineageStage{depth: idx - 1, listeners: cur.snapshot()})
	}

	// Dispatch wants self-first ordering.
	for i, j := 0, len(stages)-1; i < j; i, j = i+1, j-1 {
		stages[i], stages[j] = stages[j], stages[i]
	}
	return stages
}

// nodeFor returns the node for e, installing the missing part of e's lineage
// if necessary.
func (c *listenerCache) nodeFor(e Event) *cacheNode {
	lin := Lineage(e)
	for {
		// Descend from the root along the existing part of the lineage.
		cur := c.root
		idx := len(lin) - 1
		for idx > 0 {
			next := cur.childFor(lin[idx-1])
			if next == nil {
				break
			}
			cur = next
			idx--
		}
		if idx == 0 {
			return cur
		}

		// Build the missing chain detached, then attach it in one step so a
		// racing registration sees either nothing or the whole chain.
		leaf := newCacheNode(lin[0])
		top := leaf
		for i := 1; i < idx; i++ {
			n := newCacheNode(lin[i])
			n.children = append(n.children, top) // unpublished, no lock needed
			top = n
		}
		if cur.addChild(top) {
			return leaf
		}
		// Lost the install race for lin[idx-1]; rebuild against the winner.
	}
}

type cacheNode struct {
	event Event

	mu        sync.Mutex
	listeners []Listener
	baked     []Listener
	dirty     bool

	childMu  sync.Mutex
	children []*cacheNode
}

func newCacheNode(e Event) *cacheNode {
	return &cacheNode{event: e.resolve()}
}

func (n *cacheNode) add(l Listener) {
	n.mu.Lock()
	n.listeners = append(n.listeners, l)
	n.dirty = true
	n.mu.Unlock()
}

// snapshot returns the baked listener list, rebaking first if a registration
// dirtied it. The returned slice is freshly allocated at bake time and never
// mutated afterwards, so callers can iterate it without holding the lock.
func (n *cacheNode) snapshot() []Listener {
	n.mu.Lock()
	if n.dirty {
		n.baked = append([]Listener(nil), n.listeners...)
		n.dirty = false
	}
	b := n.baked
	n.mu.Unlock()
	return b
}

// addChild installs child unless a node for the same event already exists.
func (n *cacheNode) addChild(child *cacheNode) bool {
	n.childMu.Lock()
	defer n.childMu.Unlock()
	for _, c := range n.children {
		if c.event == child.event {
			return false
		}
	}
	n.children = append(n.children, child)
	return true
}

func (n *cacheNode) childFor(e Event) *cacheNode {
	n.childMu.Lock()
	defer n.childMu.Unlock()
	for _, c := range n.children {
		if c.event == e {
			return c
		}
	}
	return nil
}
