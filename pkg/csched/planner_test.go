package csched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/config"
)

func TestPlanRootDropsBelowRunlenMin(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	root := tree.Root()
	root.PrependKvsets(cn.NewKvset(1, 1, 10, 0, 0, 1<<10, 1<<10, nil))

	item, result := planRoot(tree, root, params)
	require.Equal(t, Drop, result)
	require.Equal(t, "tspill", item.Rule)
}

func TestPlanRootProducesSpillOnceRunlenMinMet(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	root := tree.Root()
	for i := 0; i < params.Rspill.RunlenMax+2; i++ {
		root.PrependKvsets(cn.NewKvset(uint64(i+1), 1, 10, 0, 0, 8<<20, 8<<20, nil))
	}

	item, result := planRoot(tree, root, params)
	require.Equal(t, Planned, result)
	require.Equal(t, ActionSpill, item.Action)
	require.LessOrEqual(t, len(item.Kvsets), params.Rspill.RunlenMax)
}

func TestPlanIdleEmptyLeafCompactsAwayTombstones(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{
		cn.NewKvset(1, 1, 0, 0, 0, 1<<10, 1<<10, nil),
	})

	item, result := planIdle(tree, leaf, params)
	require.Equal(t, Planned, result)
	require.Equal(t, "idle-empty", item.Rule)
	require.Equal(t, ActionCompactK, item.Action)
}

func TestPlanSplitDeclinesWhenNotEligible(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{
		cn.NewKvset(1, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})

	_, result := planSplit(tree, leaf, params)
	require.Equal(t, Drop, result)
}

func TestPlanSplitProducesSplitWorkItem(t *testing.T) {
	tree := cn.NewTree("t1", cn.Params{FanoutCeiling: 32, SplitSizeMiB: 1, SplitKeys: 1000})
	params := config.Default()
	params.LeafComp.SplitKeys = 1000
	big :=cn.NewKvset(1, 1, 2000, 0, 0, 4<<20, 4<<20, nil)
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{big})

	item, result := planSplit(tree, leaf, params)
	require.Equal(t, Planned, result)
	require.Equal(t, ActionSplit, item.Action)
	require.True(t, leaf.Splitting())
}

func TestPlanJoinNotEligibleWithoutLeftNeighbor(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{
		cn.NewKvset(1, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})

	_, result := planJoin(tree, leaf, params)
	require.Equal(t, Drop, result)
}

func TestPlanJoinProducesJoinWorkItem(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()

	left := newTestLeaf(t, tree, "left", tree.Root(), []*cn.Kvset{
		cn.NewKvset(1, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})
	right := newTestLeaf(t, tree, "right", left, []*cn.Kvset{
		cn.NewKvset(2, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})
	left.SetRouteValid(true)

	item, result := planJoin(tree, right, params)
	require.Equal(t, Planned, result)
	require.Equal(t, ActionJoin, item.Action)
	require.Same(t, left, item.Other)
	require.Equal(t, cn.RoleLeft, left.Role())
	require.Equal(t, cn.RoleRight, right.Role())
}

func TestPlanGarbageFallsBackToKVCompaction(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	// Enough non-tomb, non-empty kvsets with one vblock each and large
	// Clen so planIdle declines and planGarbage falls back to its
	// kv-compact branch.
	var kvsets []*cn.Kvset
	for i := 0; i < 3; i++ {
		kvsets = append(kvsets, cn.NewKvset(uint64(i+1), 1, 100, 0, 0, 1<<30, 1<<30, []uint32{1}))
	}
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), kvsets)
	for _, k := range leaf.Kvsets() {
		_ = k
	}

	item, result := planGarbage(tree, leaf, params)
	require.NotEqual(t, Resched, result)
	require.Equal(t, ActionCompactKV, item.Action)
}
