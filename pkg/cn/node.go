package cn

import (
	"sync"
	"sync/atomic"
)

// JoinRole is the tri-state split/join participation flag: a node
// absorbed into a join is Left or Right; Splitting is a separate bool
// because a node can be mid-split without any join role. splitting &&
// Role != RoleNone is a programming error.
type JoinRole int8

const (
	RoleNone  JoinRole = 0
	RoleLeft  JoinRole = -1
	RoleRight JoinRole = 1
)

// Node holds a newest-first list of kvsets plus the running stats and
// state flags the scheduler classifies against.
type Node struct {
	Tree *Tree
	ID   string

	// IsRoot is set once at construction; the root never moves from
	// index 0 of its tree's node list.
	IsRoot bool

	EdgeKey []byte // nil for the root; defines the leaf's partition

	mu     sync.RWMutex
	kvsets []*Kvset // newest first

	// routeValid is false once the node has been logically removed
	// (a null route pointer).
	routeValid atomic.Bool

	splitting    atomic.Bool
	joinRole     atomic.Int32 // JoinRole
	spillingCnt  atomic.Int32
	busy         atomic.Uint32 // packed: upper 16 active jobs, lower 16 claimed kvsets
	splitVisits  atomic.Int32  // split_cnt_max cooldown bookkeeping

	// cached aggregate stats, recomputed by recomputeStats whenever
	// the kvset list changes.
	stats NodeStats
}

// NodeStats are the running sums the classifier and planner consume.
type NodeStats struct {
	KvsetCount int
	Keys       int64
	KeysUniq   int64
	Tombs      int64
	PTombs     int64
	Alen       int64
	Clen       int64
	Wlen       int64
	VBlocks    int
	// Pcap is percent capacity relative to the node's split-size
	// threshold; computed by the caller (the classifier knows the
	// current thresholds, this struct only carries raw bytes).
}

// NewNode creates an empty leaf or root node.
func NewNode(id string, isRoot bool, edgeKey []byte) *Node {
	n := &Node{
		ID:      id,
		IsRoot:  isRoot,
		EdgeKey: edgeKey,
	}
	n.routeValid.Store(!isRoot) // roots aren't addressed by the route map
	return n
}

// Kvsets returns a snapshot of the node's kvset list, newest first.
// Callers must hold (at least) a read lock on the owning tree for the
// duration of any decision based on this snapshot.
func (n *Node) Kvsets() []*Kvset {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Kvset, len(n.kvsets))
	copy(out, n.kvsets)
	return out
}

// Stats returns a copy of the node's cached aggregate stats.
func (n *Node) Stats() NodeStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// PrependKvsets inserts newly-ingested kvsets at the newest end (index
// 0) of the list, as ingest does to a root.
func (n *Node) PrependKvsets(ks ...*Kvset) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kvsets = append(append([]*Kvset{}, ks...), n.kvsets...)
	n.recomputeStatsLocked()
}

// ReplaceKvsets atomically swaps out a contiguous run (by identity)
// for a replacement run (often a single compacted kvset, or two for a
// split/join). It panics if any of the victims are not present — a
// programming error, since the caller must have claimed them first.
func (n *Node) ReplaceKvsets(victims []*Kvset, replacement []*Kvset) {
	n.mu.Lock()
	defer n.mu.Unlock()

	victimSet := make(map[*Kvset]bool, len(victims))
	for _, v := range victims {
		victimSet[v] = true
	}

	out := make([]*Kvset, 0, len(n.kvsets)-len(victims)+len(replacement))
	inserted := false
	for _, k := range n.kvsets {
		if victimSet[k] {
			if !inserted {
				out = append(out, replacement...)
				inserted = true
			}
			continue
		}
		out = append(out, k)
	}
	if !inserted {
		out = append(out, replacement...)
	}
	n.kvsets = out
	n.recomputeStatsLocked()
}

func (n *Node) recomputeStatsLocked() {
	var s NodeStats
	s.KvsetCount = len(n.kvsets)
	for _, k := range n.kvsets {
		s.Keys += k.Keys
		s.KeysUniq += k.KeysUniq
		s.Tombs += k.Tombs
		s.PTombs += k.PTombs
		s.Alen += k.Alen
		s.Clen += k.Clen
		s.Wlen += k.Wlen
		s.VBlocks += k.VBlocks
	}
	n.stats = s
}

// Scatter returns how many times a vgroup already referenced by one of
// the node's kvsets is referenced again by another kvset (each repeat
// occurrence counts once).
func (n *Node) Scatter() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.kvsets) == 0 {
		return 0
	}
	return n.scatterLocked()
}

// RouteValid reports whether the node is still addressed by the
// routing map (false ⇒ it is a left join survivor awaiting removal).
func (n *Node) RouteValid() bool { return n.routeValid.Load() }

func (n *Node) SetRouteValid(v bool) { n.routeValid.Store(v) }

// Splitting reports whether a split is in flight on this node.
func (n *Node) Splitting() bool { return n.splitting.Load() }
func (n *Node) SetSplitting(v bool) { n.splitting.Store(v) }

// Role returns the node's current join role.
func (n *Node) Role() JoinRole { return JoinRole(n.joinRole.Load()) }
func (n *Node) SetRole(r JoinRole) { n.joinRole.Store(int32(r)) }

// SpillingCount returns the number of subspills currently in flight
// that touch this node.
func (n *Node) SpillingCount() int32        { return n.spillingCnt.Load() }
func (n *Node) AddSpillingCount(delta int32) int32 { return n.spillingCnt.Add(delta) }

// Busy counter: upper 16 bits active jobs, lower 16 bits claimed
// kvsets, updated together.
const (
	busyJobsShift  = 16
	busyKvsetsMask = 0x0000FFFF
)

func packBusy(jobs, kvsets uint16) uint32 {
	return uint32(jobs)<<busyJobsShift | uint32(kvsets)
}

func unpackBusy(v uint32) (jobs, kvsets uint16) {
	return uint16(v >> busyJobsShift), uint16(v & busyKvsetsMask)
}

// ActiveJobs returns the number of in-flight jobs on this node.
func (n *Node) ActiveJobs() int {
	jobs, _ := unpackBusy(n.busy.Load())
	return int(jobs)
}

// ClaimedKvsets returns the number of kvsets currently claimed by
// in-flight jobs on this node.
func (n *Node) ClaimedKvsets() int {
	_, kvsets := unpackBusy(n.busy.Load())
	return int(kvsets)
}

// AddBusy atomically advances both halves of the busy counter
// together. Negative deltas are used on job completion.
func (n *Node) AddBusy(jobsDelta, kvsetsDelta int32) {
	for {
		old := n.busy.Load()
		jobs, kvsets := unpackBusy(old)
		nj := int32(jobs) + jobsDelta
		nk := int32(kvsets) + kvsetsDelta
		if nj < 0 || nk < 0 {
			panic("cn: busy counter underflow")
		}
		next := packBusy(uint16(nj), uint16(nk))
		if n.busy.CompareAndSwap(old, next) {
			return
		}
	}
}

func (n *Node) scatterLocked() int {
	seen := make(map[uint32]bool)
	dup := 0
	for _, k := range n.kvsets {
		if k.vgroups == nil {
			continue
		}
		it := k.vgroups.Iterator()
		for it.HasNext() {
			g := it.Next()
			if seen[g] {
				dup++
			}
			seen[g] = true
		}
	}
	return dup
}
