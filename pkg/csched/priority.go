package csched

import (
	"container/heap"
	"sync"

	"github.com/cuemby/cn-csched/pkg/cn"
)

// priorityEntry is one node's membership in a single category index.
type priorityEntry struct {
	node   *cn.Node
	weight weight64
	index  int // heap.Interface bookkeeping
}

// priorityHeap is a max-heap ordered by weight alone. Ties are not
// broken: among entries with equal weight, which one comes first is
// whatever the heap's layout happens to be, and it can change as other
// entries are inserted or removed.
type priorityHeap []*priorityEntry

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	return h[i].weight > h[j].weight
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *priorityHeap) Push(x any) {
	e := x.(*priorityEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// priorityIndex is one of the seven ordered work-category indexes:
// insert, remove, first, next, each node at most once, re-insert with
// unchanged weight is a no-op.
type priorityIndex struct {
	mu      sync.Mutex
	h       priorityHeap
	entries map[*cn.Node]*priorityEntry
}

func newPriorityIndex() *priorityIndex {
	return &priorityIndex{entries: make(map[*cn.Node]*priorityEntry)}
}

// Insert adds or repositions n at weight w. Re-inserting with the
// same weight it already has is a no-op.
func (p *priorityIndex) Insert(n *cn.Node, w weight64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[n]; ok {
		if e.weight == w {
			return
		}
		e.weight = w
		heap.Fix(&p.h, e.index)
		return
	}

	e := &priorityEntry{node: n, weight: w}
	p.entries[n] = e
	heap.Push(&p.h, e)
}

// Remove drops n from the index if present; a no-op otherwise.
func (p *priorityIndex) Remove(n *cn.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[n]
	if !ok {
		return
	}
	heap.Remove(&p.h, e.index)
	delete(p.entries, n)
}

// Contains reports whether n currently participates in this index.
func (p *priorityIndex) Contains(n *cn.Node) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[n]
	return ok
}

// First returns the node with the greatest weight, or nil if empty.
func (p *priorityIndex) First() (*cn.Node, weight64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.h) == 0 {
		return nil, 0, false
	}
	top := p.h[0]
	return top.node, top.weight, true
}

// Len returns the number of nodes currently in the index.
func (p *priorityIndex) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.h)
}

// Snapshot returns every (node, weight) pair, highest weight first.
// It does not mutate the index.
func (p *priorityIndex) Snapshot() []struct {
	Node   *cn.Node
	Weight weight64
} {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make(priorityHeap, len(p.h))
	copy(cp, p.h)
	out := make([]struct {
		Node   *cn.Node
		Weight weight64
	}, 0, len(cp))
	for cp.Len() > 0 {
		top := heap.Pop(&cp).(*priorityEntry)
		out = append(out, struct {
			Node   *cn.Node
			Weight weight64
		}{top.node, top.weight})
	}
	return out
}
