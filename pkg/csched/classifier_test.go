package csched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/config"
)

func testTreeParams() cn.Params {
	return cn.Params{FanoutCeiling: 32, SplitSizeMiB: 256, SplitKeys: 1_000_000}
}

func newTestLeaf(t *testing.T, tree *cn.Tree, id string, after *cn.Node, keys []*cn.Kvset) *cn.Node {
	t.Helper()
	leaf := cn.NewNode(id, false, cn.EncodeKey(uint64(len(id))+1000))
	require.NoError(t, tree.InsertLeafAfter(after, leaf))
	leaf.PrependKvsets(keys...)
	return leaf
}

func TestClassifyRootInsertsWhenUnclaimedMeetsMinimum(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	root := tree.Root()
	for i := 0; i < params.Rspill.RunlenMin; i++ {
		root.PrependKvsets(cn.NewKvset(uint64(i+1), 1, 10, 0, 0, 1<<20, 1<<20, nil))
	}

	ci := newCategoryIndexes()
	classify(ci, tree, root, params)

	assert := require.New(t)
	assert.True(ci.of(CategoryRoot).Contains(root))
}

func TestClassifyEmptyLeafClearsLeafCategories(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), nil)

	ci := newCategoryIndexes()
	ci.of(CategoryLength).Insert(leaf, packWeight(1, 0))

	classify(ci, tree, leaf, params)

	require.False(t, ci.of(CategoryLength).Contains(leaf))
}

func TestClassifyGarbageHeavyTombstonedLeaf(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	// Tombs dominate keysUniq: garbage-heavy branch forces garbagePercent=100.
	k := cn.NewKvset(1, 1, 100, 98, 0, 10<<20, 10<<20, nil)
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{k})

	ci := newCategoryIndexes()
	classify(ci, tree, leaf, params)

	require.True(t, ci.of(CategoryGarbage).Contains(leaf))
	require.False(t, ci.of(CategoryLength).Contains(leaf))
}

func TestClassifySplittableLeafEntersSplitCategory(t *testing.T) {
	tree := cn.NewTree("t1", cn.Params{FanoutCeiling: 32, SplitSizeMiB: 1, SplitKeys: 1000})
	params := config.Default()
	params.LeafComp.SplitKeys = 1000
	big := cn.NewKvset(1, 1, 2000, 0, 0, 4<<20, 4<<20, nil)
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{big})

	ci := newCategoryIndexes()
	classify(ci, tree, leaf, params)

	require.True(t, ci.of(CategorySplit).Contains(leaf))
}

func TestClassifyJoinableNeighborsEnterJoinCategory(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()

	left := newTestLeaf(t, tree, "left", tree.Root(), []*cn.Kvset{
		cn.NewKvset(1, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})
	right := newTestLeaf(t, tree, "right", left, []*cn.Kvset{
		cn.NewKvset(2, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})
	left.SetRouteValid(true)

	ci := newCategoryIndexes()
	classify(ci, tree, right, params)

	require.True(t, ci.of(CategoryJoin).Contains(right))
}

func TestClassifyIdleRequiresMinimumKvsetCount(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	params := config.Default()
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{
		cn.NewKvset(1, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})

	ci := newCategoryIndexes()
	classify(ci, tree, leaf, params)

	require.False(t, ci.of(CategoryIdle).Contains(leaf), "below idlec threshold")
}
