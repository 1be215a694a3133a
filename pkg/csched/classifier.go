package csched

import (
	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/config"
)

// categoryIndexes holds one priorityIndex per work category, the
// scheduler-wide structure the classifier updates and the planner
// reads from.
type categoryIndexes struct {
	idx [categoryCount]*priorityIndex
}

func newCategoryIndexes() *categoryIndexes {
	ci := &categoryIndexes{}
	for i := range ci.idx {
		ci.idx[i] = newPriorityIndex()
	}
	return ci
}

func (ci *categoryIndexes) of(c WorkCategory) *priorityIndex { return ci.idx[c] }

func (ci *categoryIndexes) removeFromAll(n *cn.Node) {
	for _, idx := range ci.idx {
		idx.Remove(n)
	}
}

func (ci *categoryIndexes) removeFromLeafCategories(n *cn.Node) {
	ci.of(CategoryLength).Remove(n)
	ci.of(CategoryScatter).Remove(n)
	ci.of(CategoryGarbage).Remove(n)
	ci.of(CategorySplit).Remove(n)
	ci.of(CategoryJoin).Remove(n)
}

// classify recomputes every priority-index membership for a single
// node n. Idempotent: classifying twice with unchanged stats yields the same
// memberships, because every branch ends in either Insert (a no-op if
// the weight is unchanged) or Remove (a no-op if already absent).
func classify(ci *categoryIndexes, tree *cn.Tree, n *cn.Node, params config.Params) {
	if n.IsRoot {
		classifyRoot(ci, n, params)
		classifyIdle(ci, n, params)
		return
	}

	if n.Splitting() || n.Role() != cn.RoleNone {
		ci.removeFromLeafCategories(n)
		classifyIdle(ci, n, params)
		return
	}

	stats := n.Stats()

	if stats.KvsetCount == 0 {
		ci.removeFromLeafCategories(n)
		classifyEmptyLeafJoinAnchor(ci, tree, n, params)
		classifyIdle(ci, n, params)
		return
	}

	if n.ActiveJobs() > 0 {
		classifyIdle(ci, n, params)
		return
	}

	classifyScatterLengthGarbage(ci, n, stats, params)
	classifySplit(ci, tree, n, stats, params)
	classifyJoin(ci, tree, n, params)
	classifyIdle(ci, n, params)
}

func classifyRoot(ci *categoryIndexes, root *cn.Node, params config.Params) {
	unclaimed := countUnclaimed(root)
	if unclaimed >= params.Rspill.RunlenMin && root.ActiveJobs() < 3 {
		ci.of(CategoryRoot).Insert(root, packWeight(uint32(unclaimed), 0))
	} else {
		ci.of(CategoryRoot).Remove(root)
	}
}

func countUnclaimed(n *cn.Node) int {
	count := 0
	for _, k := range n.Kvsets() {
		if k.WorkID() == 0 {
			count++
		}
	}
	return count
}

func garbagePct(alen, good int64) int64 {
	if alen == 0 {
		return 0
	}
	return (alen - good) * 100 / alen
}

// classifyScatterLengthGarbage implements the scatter/length/garbage
// legs of the non-pending leaf rule set.
func classifyScatterLengthGarbage(ci *categoryIndexes, n *cn.Node, stats cn.NodeStats, params config.Params) {
	good := stats.Clen
	garbagePercent := garbagePct(stats.Alen, good)
	scatter := n.Scatter()

	if scatter > 0 {
		ci.of(CategoryScatter).Insert(n, packWeight(uint32(scatter), uint32(garbagePercent)))
	} else {
		ci.of(CategoryScatter).Remove(n)
	}

	if stats.KvsetCount >= params.LeafLen.RunlenMin {
		ci.of(CategoryLength).Insert(n, packWeight(uint32(stats.KvsetCount), maxUint32-uint32(scatter)))
		if stats.KvsetCount > 2*params.LeafLen.RunlenMax {
			ci.of(CategoryScatter).Remove(n)
		}
	} else {
		ci.of(CategoryLength).Remove(n)
	}

	if stats.Tombs*100 > stats.KeysUniq*95 || stats.Keys == 0 {
		garbagePercent = 100
		ci.removeFromLeafCategories(n)
		ci.of(CategoryGarbage).Insert(n, packWeight(100, uint32(stats.Alen>>20)))
	} else if garbagePercent > 0 {
		ci.of(CategoryGarbage).Insert(n, packWeight(uint32(garbagePercent), uint32(stats.Alen>>20)))
	} else {
		ci.of(CategoryGarbage).Remove(n)
	}
}

func classifySplit(ci *categoryIndexes, tree *cn.Tree, n *cn.Node, stats cn.NodeStats, params config.Params) {
	splittable := isSplittable(tree, n, stats, params)
	if splittable && tree.Fanout() < tree.Params.FanoutCeiling {
		ci.of(CategorySplit).Insert(n, packWeight(uint32(stats.Keys>>32), uint32(stats.Keys)))
		if stats.Keys > params.LeafComp.SplitKeys {
			ci.of(CategoryLength).Remove(n)
		}
		ci.of(CategoryScatter).Remove(n)
		garbagePercent := garbagePct(stats.Alen, stats.Clen)
		if garbagePercent < 100 {
			ci.of(CategoryGarbage).Remove(n)
		}
	} else {
		ci.of(CategorySplit).Remove(n)
	}
}

// isSplittable implements the split eligibility rule.
func isSplittable(tree *cn.Tree, n *cn.Node, stats cn.NodeStats, params config.Params) bool {
	if n.Splitting() || n.Role() != cn.RoleNone {
		return false
	}
	if stats.KvsetCount == 0 {
		return false
	}
	splitSizeBytes := tree.Params.SplitSizeMiB << 20
	return stats.Clen >= splitSizeBytes || stats.KeysUniq >= params.LeafComp.SplitKeys
}

func classifyJoin(ci *categoryIndexes, tree *cn.Tree, n *cn.Node, params config.Params) {
	left, _ := tree.Neighbors(n)
	if left == nil {
		ci.of(CategoryJoin).Remove(n)
		return
	}
	if !joinable(tree, left, n, params) {
		ci.of(CategoryJoin).Remove(n)
		return
	}
	leftKvsets := left.Stats().KvsetCount
	if leftKvsets == 0 {
		ci.removeFromLeafCategories(n)
	}
	w := weight64(maxUint64 - uint64(leftKvsets))
	ci.of(CategoryJoin).Insert(n, w)
}

// joinable implements the left-joinable predicate.
func joinable(tree *cn.Tree, left, right *cn.Node, params config.Params) bool {
	if left.Splitting() || right.Splitting() {
		return false
	}
	if !left.RouteValid() {
		return false
	}
	rightStats := right.Stats()
	if rightStats.KvsetCount == 0 {
		return false
	}
	leftStats := left.Stats()
	if leftStats.KvsetCount == 0 {
		return true
	}
	splitSizeBytes := tree.Params.SplitSizeMiB << 20
	wlenLimit := splitSizeBytes * int64(params.LeafComp.JoinPct) / 100
	keysLimit := params.LeafComp.SplitKeys * int64(params.LeafComp.JoinPct) / 100
	wlenOK := leftStats.Wlen+rightStats.Wlen <= wlenLimit
	keysOK := leftStats.KeysUniq+rightStats.KeysUniq <= keysLimit
	return wlenOK && keysOK
}

// classifyEmptyLeafJoinAnchor implements the empty-leaf rule: an empty
// n contributes nothing to any category itself, but if
// its right neighbor is a valid join anchor for which n is the
// joinable left, the right neighbor is inserted into join instead.
func classifyEmptyLeafJoinAnchor(ci *categoryIndexes, tree *cn.Tree, n *cn.Node, params config.Params) {
	_, right := tree.Neighbors(n)
	if right == nil {
		return
	}
	if !joinable(tree, n, right, params) {
		return
	}
	rightKvsets := right.Stats().KvsetCount
	w := weight64(maxUint64 - uint64(rightKvsets))
	ci.of(CategoryJoin).Insert(right, w)
}

// classifyIdle handles the idle category, applicable to any leaf or
// root.
func classifyIdle(ci *categoryIndexes, n *cn.Node, params config.Params) {
	stats := n.Stats()
	if n.Splitting() || n.Role() != cn.RoleNone ||
		stats.KvsetCount < params.LeafLen.Idlec || params.LeafLen.Idlem <= 0 || n.ActiveJobs() >= 1 {
		ci.of(CategoryIdle).Remove(n)
		return
	}
	ttlSeconds := int64(params.LeafLen.Idlem) * 60 / 4
	if stats.PTombs > 0 {
		ttlSeconds = 60 / 4
	}
	expiry := ttlSeconds // no clock is read: the weight ranks by TTL length, not by absolute expiry time
	ci.of(CategoryIdle).Insert(n, packWeight(uint32(maxUint32-uint32(expiry)), uint32(stats.KvsetCount)))
}
