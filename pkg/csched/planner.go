package csched

import (
	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/config"
)

// vblockMax stands in for the source's VBLOCK_MAX constant: the
// media block size above which a run is considered "big enough" to
// stop accumulating for a spill or compaction.
const vblockMax int64 = 32 << 20

// plan takes a node selected from category c's priority index and
// produces a WorkItem or declines. The caller must already hold the
// tree's read lock for the duration.
func plan(tree *cn.Tree, n *cn.Node, c WorkCategory, params config.Params) (WorkItem, PlanResult) {
	switch c {
	case CategoryRoot:
		return planRoot(tree, n, params)
	case CategoryIdle:
		return planIdle(tree, n, params)
	case CategoryLength:
		return planLength(tree, n, params)
	case CategoryGarbage:
		return planGarbage(tree, n, params)
	case CategoryScatter:
		return planScatter(tree, n, params)
	case CategorySplit:
		return planSplit(tree, n, params)
	case CategoryJoin:
		return planJoin(tree, n, params)
	default:
		return WorkItem{}, Drop
	}
}

// oldestUnclaimedRun returns the contiguous run of unclaimed kvsets
// starting from the oldest (the end of the newest-first list) and its
// accumulated wlen.
func oldestUnclaimedRun(n *cn.Node) ([]*cn.Kvset, int64) {
	all := n.Kvsets()
	start := len(all)
	for start > 0 && all[start-1].WorkID() == 0 {
		start--
	}
	run := all[start:]
	var wlen int64
	for _, k := range run {
		wlen += k.Wlen
	}
	return run, wlen
}

func planRoot(tree *cn.Tree, root *cn.Node, params config.Params) (WorkItem, PlanResult) {
	run, wlen := oldestUnclaimedRun(root)
	if len(run) < params.Rspill.RunlenMin {
		return WorkItem{Rule: "tspill"}, Drop
	}
	if wlen < vblockMax && len(run) < params.Rspill.RunlenMax {
		return WorkItem{Rule: "tspill"}, Resched
	}
	if len(run) > params.Rspill.RunlenMax {
		excess := len(run) - params.Rspill.RunlenMax
		if len(run)-excess < params.Rspill.RunlenMin {
			excess = len(run) - params.Rspill.RunlenMin
		}
		run = run[:len(run)-excess]
	}
	if len(run) > params.Rspill.RunlenMax {
		run = run[:params.Rspill.RunlenMax]
	}
	return WorkItem{
		Tree: tree, Node: root, Kvsets: run,
		Action: ActionSpill, Category: CategoryRoot, Rule: "rspill",
	}, Planned
}

func planIdle(tree *cn.Tree, n *cn.Node, params config.Params) (WorkItem, PlanResult) {
	if n.IsRoot {
		run, _ := oldestUnclaimedRun(n)
		if len(run) == 0 {
			return WorkItem{}, Drop
		}
		return WorkItem{Tree: tree, Node: n, Kvsets: run, Action: ActionSpill, Category: CategoryIdle, Rule: "idle-rspill"}, Planned
	}

	stats := n.Stats()
	all := n.Kvsets()

	if stats.Keys == 0 {
		return WorkItem{Tree: tree, Node: n, Kvsets: all, Action: ActionCompactK, Category: CategoryIdle, Rule: "idle-empty"}, Planned
	}

	if stats.Tombs*2 > stats.Keys {
		tail := skipYoungestNoTomb(all)
		if len(tail) >= 2 {
			return WorkItem{Tree: tree, Node: n, Kvsets: tail, Action: ActionCompactK, Category: CategoryIdle, Rule: "idle-tombskip"}, Planned
		}
	}

	if stats.VBlocks < stats.KvsetCount {
		tail := skipOldestWideKvsets(all, params.LeafComp.SplitKeys/2)
		if len(tail) > 0 {
			return WorkItem{Tree: tree, Node: n, Kvsets: tail, Action: ActionCompactKV, Category: CategoryIdle, Rule: "idle-vblocks"}, Planned
		}
	}

	if stats.Clen < vblockMax {
		return WorkItem{Tree: tree, Node: n, Kvsets: all, Action: ActionCompactKV, Category: CategoryIdle, Rule: "idle-clen"}, Planned
	}

	if stats.PTombs > 0 {
		tail := skipYoungestNoTomb(all)
		if len(tail) >= 2 {
			return WorkItem{Tree: tree, Node: n, Kvsets: tail, Action: ActionCompactK, Category: CategoryIdle, Rule: "idle-ptombskip"}, Planned
		}
	}

	return WorkItem{Rule: "idle-decline"}, Drop
}

func skipYoungestNoTomb(all []*cn.Kvset) []*cn.Kvset {
	i := 0
	for i < len(all) && all[i].Tombs == 0 && all[i].PTombs == 0 {
		i++
	}
	return all[i:]
}

func skipOldestWideKvsets(all []*cn.Kvset, budget int64) []*cn.Kvset {
	end := len(all)
	for end > 0 && all[end-1].Keys > budget {
		end--
	}
	return all[:end]
}

func planLength(tree *cn.Tree, n *cn.Node, params config.Params) (WorkItem, PlanResult) {
	all := n.Kvsets()
	stats := n.Stats()

	run := findEqualCompcRun(all, params.LeafLen.RunlenMin)
	if run == nil {
		return planLengthFallback(tree, n, all, params)
	}
	if len(run) > params.LeafLen.RunlenMax {
		run = run[:params.LeafLen.RunlenMax]
	}

	var wlen, valueWlen int64
	for _, k := range run {
		wlen += k.Wlen
		valueWlen += k.ValueBytes
	}

	if stats.Clen < vblockMax {
		return WorkItem{Tree: tree, Node: n, Kvsets: all, Action: ActionCompactKV, Category: CategoryLength, Rule: "clen"}, Planned
	}
	if wlen < vblockMax {
		return WorkItem{Tree: tree, Node: n, Kvsets: run, Action: ActionCompactKV, Category: CategoryLength, Rule: "wlen"}, Planned
	}
	if valueWlen < vblockMax {
		return WorkItem{Tree: tree, Node: n, Kvsets: run, Action: ActionCompactKV, Category: CategoryLength, Rule: "vwlen"}, Planned
	}
	if len(run) > params.LeafLen.RunlenMax {
		return WorkItem{Tree: tree, Node: n, Kvsets: run, Action: ActionCompactK, Category: CategoryLength, Rule: "lenmax"}, Planned
	}
	return WorkItem{Tree: tree, Node: n, Kvsets: run, Action: ActionCompactK, Category: CategoryLength, Rule: "lenmin"}, Planned
}

// findEqualCompcRun finds the first oldest-first run of ≥ runlenMin
// kvsets sharing the same compc.
func findEqualCompcRun(all []*cn.Kvset, runlenMin int) []*cn.Kvset {
	// all is newest-first; walk from the oldest end.
	for start := len(all) - 1; start >= 0; {
		compc := all[start].Compc
		end := start
		for end >= 0 && all[end].Compc == compc {
			end--
		}
		runLen := start - end
		if runLen >= runlenMin {
			return all[end+1 : start+1]
		}
		start = end
	}
	return nil
}

// planLengthFallback handles unusually-wide nodes of tiny kvsets: scan
// from oldest, accumulate while per-kvset keys is under a budget.
func planLengthFallback(tree *cn.Tree, n *cn.Node, all []*cn.Kvset, params config.Params) (WorkItem, PlanResult) {
	budget := params.LeafComp.SplitKeys / 10
	if budget <= 0 {
		budget = 1
	}
	tail := skipOldestWideKvsets(all, budget)
	if len(tail) < params.LeafLen.RunlenMin {
		return WorkItem{Rule: "compc"}, Drop
	}
	return WorkItem{Tree: tree, Node: n, Kvsets: tail, Action: ActionCompactK, Category: CategoryLength, Rule: "index"}, Planned
}

func planGarbage(tree *cn.Tree, n *cn.Node, params config.Params) (WorkItem, PlanResult) {
	item, result := planIdle(tree, n, params)
	if result == Planned {
		item.Rule = "garbage"
		item.Category = CategoryGarbage
		return item, Planned
	}

	all := n.Kvsets()
	run := all
	if len(run) > params.LeafComp.RunlenMax {
		run = run[len(run)-params.LeafComp.RunlenMax:]
	}
	if len(run) == 0 {
		return WorkItem{Rule: "garbage-decline"}, Drop
	}
	return WorkItem{Tree: tree, Node: n, Kvsets: run, Action: ActionCompactKV, Category: CategoryGarbage, Rule: "garbage"}, Planned
}

func planScatter(tree *cn.Tree, n *cn.Node, params config.Params) (WorkItem, PlanResult) {
	all := n.Kvsets()
	var run []*cn.Kvset
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].VGroupCount() > 1 {
			run = all[i:]
			break
		}
	}
	if run == nil {
		return WorkItem{Rule: "scatter-decline"}, Drop
	}
	if len(run) > params.LscatRunlenMax {
		run = run[len(run)-params.LscatRunlenMax:]
	}
	return WorkItem{Tree: tree, Node: n, Kvsets: run, Action: ActionCompactKV, Category: CategoryScatter, Rule: "scatter"}, Planned
}

// planSplit handles the split planning branch.
func planSplit(tree *cn.Tree, n *cn.Node, params config.Params) (WorkItem, PlanResult) {
	stats := n.Stats()
	if !isSplittable(tree, n, stats, params) {
		return WorkItem{Rule: "split-not-eligible"}, Drop
	}

	tree.SSLock()
	defer tree.SSUnlock()

	if tree.Fanout() >= tree.Params.FanoutCeiling {
		return WorkItem{Rule: "split-fanout-capped"}, Drop
	}

	if !n.Splitting() {
		n.SetSplitting(true)
	}

	if n.SpillingCount() != 0 {
		return WorkItem{Rule: "split-pending-spill"}, Resched
	}

	return WorkItem{
		Tree: tree, Node: n, Kvsets: n.Kvsets(),
		Action: ActionSplit, Category: CategorySplit, Rule: "split",
	}, Planned
}

// planJoin handles the join planning branch.
func planJoin(tree *cn.Tree, n *cn.Node, params config.Params) (WorkItem, PlanResult) {
	left, _ := tree.Neighbors(n)
	if left == nil || !joinable(tree, left, n, params) {
		return WorkItem{Rule: "join-not-eligible"}, Drop
	}

	tree.SSLock()
	defer tree.SSUnlock()

	acquired := left.Role() == cn.RoleNone && n.Role() == cn.RoleNone
	if !acquired {
		return WorkItem{Rule: "join-token-busy"}, Resched
	}

	left.SetRole(cn.RoleLeft)
	n.SetRole(cn.RoleRight)

	if left.SpillingCount() != 0 || n.SpillingCount() != 0 {
		return WorkItem{Rule: "join-pending-spill"}, Resched
	}

	run := left.Kvsets()
	return WorkItem{
		Tree: tree, Node: n, Other: left, Kvsets: run,
		Action: ActionJoin, Category: CategoryJoin, Rule: "join",
	}, Planned
}
