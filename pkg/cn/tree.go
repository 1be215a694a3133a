package cn

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Params are the tree-level constants fixed at create time — the
// fanout ceiling and split size the original implementation keeps on
// the cn-tree handle rather than in the scheduler's runtime-mutable
// configuration. SplitKeys is carried but not read by the scheduler,
// whose split-keys threshold is config.LeafCompParams.SplitKeys.
type Params struct {
	FanoutCeiling int
	SplitSizeMiB  int64
	SplitKeys     int64
}

// Tree is an ordered sequence of nodes: Nodes[0] is always the root,
// Nodes[1:] are leaves ordered by edge key. The scheduler holds the
// read lock for the duration of classification and planning, and the
// write lock only to insert/remove nodes (split, join, shape trim).
type Tree struct {
	ID     string
	Params Params

	mu    sync.RWMutex
	nodes []*Node

	// ssMu is the per-tree split/join transition lock (ct_ss_lock),
	// held only while committing a split or join flag.
	ssMu sync.Mutex

	enabled atomic.Bool

	// ingestAlen/ingestWlen accumulate bytes reported by NotifyIngest
	// between monitor ticks; the monitor drains and zeroes them.
	ingestAlen atomic.Int64
	ingestWlen atomic.Int64

	inFlightJobs atomic.Int32

	// sgen is the per-tree monotonic root-spill generation counter
	// used to order concurrent root spills.
	sgen atomic.Uint64

	lastIngest atomic.Int64 // unix nanos
}

// NewTree creates a tree with a single empty root node.
func NewTree(id string, params Params) *Tree {
	t := &Tree{ID: id, Params: params}
	t.enabled.Store(true)
	root := NewNode(id+"-root", true, nil)
	t.nodes = []*Node{root}
	return t
}

// RLock/RUnlock/Lock/Unlock expose the tree's node-list lock directly
// so planner code can hold a read lock across a multi-step planning
// decision for the duration of that decision.
func (t *Tree) RLock()   { t.mu.RLock() }
func (t *Tree) RUnlock() { t.mu.RUnlock() }
func (t *Tree) Lock()    { t.mu.Lock() }
func (t *Tree) Unlock()  { t.mu.Unlock() }

// SSLock/SSUnlock guard split/join flag transitions (ct_ss_lock).
func (t *Tree) SSLock()   { t.ssMu.Lock() }
func (t *Tree) SSUnlock() { t.ssMu.Unlock() }

// Root returns the tree's root node. It takes the tree's read lock
// itself, so callers must not hold the write lock.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[0]
}

// Leaves returns the tree's leaf nodes in edge-key order. It takes the
// tree's read lock itself, so callers must not hold the write lock.
func (t *Tree) Leaves() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, len(t.nodes)-1)
	copy(out, t.nodes[1:])
	return out
}

// Nodes returns every node (root first). It takes the tree's read lock
// itself, so callers must not hold the write lock.
func (t *Tree) Nodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Fanout returns the current leaf count.
func (t *Tree) Fanout() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes) - 1
}

// Neighbors returns the left and right leaf neighbors of leaf n (nil
// if n has no such neighbor, e.g. it is the leftmost/rightmost leaf).
// Callers must already hold the tree's read lock.
func (t *Tree) Neighbors(n *Node) (left, right *Node) {
	idx := -1
	for i, c := range t.nodes {
		if c == n {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return nil, nil
	}
	if idx-1 >= 1 {
		left = t.nodes[idx-1]
	}
	if idx+1 < len(t.nodes) {
		right = t.nodes[idx+1]
	}
	return left, right
}

// InsertLeafAfter inserts a new leaf immediately after anchor. Callers
// must hold the tree's write lock.
func (t *Tree) InsertLeafAfter(anchor, leaf *Node) error {
	idx := -1
	for i, c := range t.nodes {
		if c == anchor {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("cn: anchor node not found in tree %s", t.ID)
	}
	out := make([]*Node, 0, len(t.nodes)+1)
	out = append(out, t.nodes[:idx+1]...)
	out = append(out, leaf)
	out = append(out, t.nodes[idx+1:]...)
	t.nodes = out
	return nil
}

// InsertLeafBefore inserts a new leaf immediately before anchor (used
// by split, whose new sibling takes the lower half of anchor's key
// range). Callers must hold the tree's write lock.
func (t *Tree) InsertLeafBefore(anchor, leaf *Node) error {
	idx := -1
	for i, c := range t.nodes {
		if c == anchor {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("cn: anchor node not found in tree %s", t.ID)
	}
	out := make([]*Node, 0, len(t.nodes)+1)
	out = append(out, t.nodes[:idx]...)
	out = append(out, leaf)
	out = append(out, t.nodes[idx:]...)
	t.nodes = out
	return nil
}

// RemoveNode drops a node from the tree's list (used by join
// finalization and the shape auditor's trailing-empty-node GC).
// Callers must hold the tree's write lock.
func (t *Tree) RemoveNode(victim *Node) error {
	for i, c := range t.nodes {
		if c == victim {
			t.nodes = append(t.nodes[:i], t.nodes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("cn: node %s not found in tree %s", victim.ID, t.ID)
}

// Enabled reports whether the tree is still accepting new work
// (false after TreeRemove, until it is fully quiesced and detached).
func (t *Tree) Enabled() bool     { return t.enabled.Load() }
func (t *Tree) SetEnabled(v bool) { t.enabled.Store(v) }

// AddIngest records bytes appended to the root by an ingest thread.
func (t *Tree) AddIngest(alen, wlen int64, nowUnixNano int64) {
	t.ingestAlen.Add(alen)
	t.ingestWlen.Add(wlen)
	t.lastIngest.Store(nowUnixNano)
}

// DrainIngest atomically reads and zeroes the accumulated ingest
// deltas; called once per monitor tick.
func (t *Tree) DrainIngest() (alen, wlen int64) {
	return t.ingestAlen.Swap(0), t.ingestWlen.Swap(0)
}

// LastIngestUnixNano returns the timestamp of the most recent
// NotifyIngest call, or 0 if none has occurred.
func (t *Tree) LastIngestUnixNano() int64 { return t.lastIngest.Load() }

// InFlightJobs returns the number of jobs currently submitted against
// any node of this tree.
func (t *Tree) InFlightJobs() int32          { return t.inFlightJobs.Load() }
func (t *Tree) AddInFlightJobs(delta int32)  { t.inFlightJobs.Add(delta) }

// NextSgen returns the next root-spill generation number for this
// tree, used to order concurrent root spills.
func (t *Tree) NextSgen() uint64 { return t.sgen.Add(1) }

// TrimTrailingEmpty implements the tree-shape auditor's rightmost
// empty-node GC: if the tree's rightmost leaf is empty and neither it
// nor its left neighbor is mid-spill, the left neighbor's edge key is
// extended out to the maximum sentinel key and the empty leaf is
// removed. Callers must not hold any lock on t; this acquires the
// write lock itself.
func (t *Tree) TrimTrailingEmpty(rm *RouteMap) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.nodes) < 2 {
		return false, nil
	}
	last := t.nodes[len(t.nodes)-1]
	if last.Stats().KvsetCount != 0 || last.SpillingCount() > 0 {
		return false, nil
	}

	var leftNeighbor *Node
	if len(t.nodes) >= 3 {
		leftNeighbor = t.nodes[len(t.nodes)-2]
		if leftNeighbor.SpillingCount() > 0 {
			return false, nil
		}
	}

	if rm != nil {
		if err := rm.Delete(last); err != nil {
			return false, err
		}
	}

	t.nodes = t.nodes[:len(t.nodes)-1]

	if leftNeighbor != nil {
		if rm != nil {
			if err := rm.ExtendKey(leftNeighbor, MaxSentinelKey); err != nil {
				return false, err
			}
		} else {
			leftNeighbor.EdgeKey = MaxSentinelKey
		}
	}
	return true, nil
}
