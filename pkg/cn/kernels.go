package cn

import (
	"fmt"
	"time"
)

// Kernels simulate the actual merge/compaction work, which lives
// outside this scheduler. Each takes the kvsets a planner already
// claimed and produces the stat-accurate replacement the scheduler's
// samp estimator needs, plus a small synthetic delay standing in for
// real I/O so that throttle/backlog behavior has something to
// measure.

const simulatedIOLatency = 200 * time.Microsecond

// CompactK rewrites run's keys in place, dropping any entries that a
// real compaction would discard (ptomb-covered keys) while preserving
// values; values_bytes is carried forward, key_bytes shrinks by the
// fraction of keys that are tombstones or duplicates.
func CompactK(node *Node, run []*Kvset) (*Kvset, error) {
	if len(run) == 0 {
		return nil, fmt.Errorf("cn: compact-k with empty run")
	}
	time.Sleep(simulatedIOLatency)

	out := mergeStats(run)
	survivalFrac := survivingFraction(out)
	out.KeyBytes = int64(float64(out.KeyBytes) * survivalFrac)
	out.Wlen = out.KeyBytes + out.ValueBytes
	out.Tombs = 0
	out.PTombs = 0
	out.Keys = out.KeysUniq
	out.Alen = out.Wlen
	out.Clen = out.compressedLen()
	node.ReplaceKvsets(run, []*Kvset{out})
	return out, nil
}

// CompactKV rewrites both keys and values, the deeper of the two
// in-place rewrites: garbage (the alen/good-bytes gap) is fully
// collapsed.
func CompactKV(node *Node, run []*Kvset) (*Kvset, error) {
	if len(run) == 0 {
		return nil, fmt.Errorf("cn: compact-kv with empty run")
	}
	time.Sleep(simulatedIOLatency)

	out := mergeStats(run)
	survivalFrac := survivingFraction(out)
	out.KeyBytes = int64(float64(out.KeyBytes) * survivalFrac)
	out.ValueBytes = int64(float64(out.ValueBytes) * survivalFrac)
	out.Wlen = out.KeyBytes + out.ValueBytes
	out.Tombs = 0
	out.PTombs = 0
	out.Keys = out.KeysUniq
	out.Alen = out.Wlen
	out.Clen = out.compressedLen()
	node.ReplaceKvsets(run, []*Kvset{out})
	return out, nil
}

// Spill moves a contiguous, oldest-first run of unclaimed root kvsets
// down into the tree's leaves. Without real keys to route by, bytes
// are distributed evenly across current leaves; each leaf gets one
// freshly-minted kvset sized as its share. Returns every node the
// spill touched (the root plus every leaf), for dirty notification.
func Spill(tree *Tree, root *Node, run []*Kvset, nextID func() uint64) ([]*Node, error) {
	if len(run) == 0 {
		return nil, fmt.Errorf("cn: spill with empty run")
	}
	time.Sleep(simulatedIOLatency)

	leaves := tree.Leaves()
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cn: spill with no leaves to target")
	}

	agg := mergeStats(run)
	share := func(v int64) int64 { return v / int64(len(leaves)) }

	touched := make([]*Node, 0, len(leaves)+1)
	for _, leaf := range leaves {
		spilled := &Kvset{
			ID:         nextID(),
			Dgen:       agg.Dgen,
			Keys:       share(agg.Keys),
			KeysUniq:   share(agg.KeysUniq),
			Tombs:      share(agg.Tombs),
			PTombs:     share(agg.PTombs),
			Alen:       share(agg.Alen),
			Wlen:       share(agg.Wlen),
			KeyBytes:   share(agg.KeyBytes),
			ValueBytes: share(agg.ValueBytes),
			VBlocks:    1,
			vgroups:    agg.vgroups,
			payload:    make([]byte, 256),
		}
		spilled.Clen = spilled.compressedLen()
		leaf.PrependKvsets(spilled)
		touched = append(touched, leaf)
	}

	root.ReplaceKvsets(run, nil)
	touched = append(touched, root)
	return touched, nil
}

// Split divides node's kvset list roughly in half by count, creating
// a new left sibling that takes the lower half of node's key range.
// Must be called with the tree's write lock held.
func Split(tree *Tree, node *Node, nextNodeID func() string) (left, right *Node, err error) {
	time.Sleep(simulatedIOLatency)

	leftNeighbor, _ := tree.Neighbors(node)
	low := uint64(0)
	if leftNeighbor != nil {
		low = DecodeKey(leftNeighbor.EdgeKey)
	}
	high := DecodeKey(node.EdgeKey)
	mid := low + (high-low)/2
	if mid <= low {
		mid = low + 1
	}
	if mid >= high {
		mid = high - 1
	}

	node.mu.Lock()
	all := node.kvsets
	half := len(all) / 2
	leftKvsets := append([]*Kvset{}, all[half:]...)
	rightKvsets := append([]*Kvset{}, all[:half]...)
	node.kvsets = rightKvsets
	node.recomputeStatsLocked()
	node.mu.Unlock()

	newLeft := NewNode(nextNodeID(), false, EncodeKey(mid))
	newLeft.kvsets = leftKvsets
	newLeft.recomputeStatsLocked()
	newLeft.SetRouteValid(true)

	if err := tree.InsertLeafBefore(node, newLeft); err != nil {
		return nil, nil, err
	}

	return newLeft, node, nil
}

// Join merges left's kvsets into right, leaving left an empty shell
// with its route pointer cleared — the left survivor lingers until
// the monitor's dirty-drain write section physically removes it.
// Must be called with the tree's write lock held.
func Join(tree *Tree, left, right *Node) error {
	time.Sleep(simulatedIOLatency)

	left.mu.Lock()
	victims := left.kvsets
	left.kvsets = nil
	left.recomputeStatsLocked()
	left.mu.Unlock()

	right.PrependKvsets(victims...)

	left.SetRouteValid(false)
	left.SetRole(RoleNone)
	right.SetRole(RoleNone)
	return nil
}

// mergeStats sums a run's stats into a synthetic placeholder kvset
// used only to carry intermediate totals between kernel steps.
func mergeStats(run []*Kvset) *Kvset {
	out := &Kvset{}
	maxDgen := uint64(0)
	for _, k := range run {
		out.Keys += k.Keys
		out.KeysUniq += k.KeysUniq
		out.Tombs += k.Tombs
		out.PTombs += k.PTombs
		out.Alen += k.Alen
		out.Wlen += k.Wlen
		out.KeyBytes += k.KeyBytes
		out.ValueBytes += k.ValueBytes
		out.VBlocks += k.VBlocks
		out.vgroups = out.vgroupUnion(k)
		if k.Dgen > maxDgen {
			maxDgen = k.Dgen
		}
	}
	out.Dgen = maxDgen
	out.payload = make([]byte, 256)
	return out
}

// survivingFraction estimates the fraction of key bytes that remain
// after garbage is dropped: any tombstone or duplicate key collapses
// one key's worth of bytes.
func survivingFraction(agg *Kvset) float64 {
	if agg.Keys == 0 {
		return 1
	}
	garbage := agg.Keys - agg.KeysUniq + agg.Tombs
	if garbage < 0 {
		garbage = 0
	}
	frac := 1 - float64(garbage)/float64(agg.Keys)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac
}
