package cn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{FanoutCeiling: 32, SplitSizeMiB: 256, SplitKeys: 1_000_000}
}

func TestNewTreeHasSingleRoot(t *testing.T) {
	tree := NewTree("t1", testParams())
	assert.Equal(t, 0, tree.Fanout())
	root := tree.Root()
	assert.True(t, root.IsRoot)
	assert.True(t, tree.Enabled())
}

func TestInsertLeafAfterAndBefore(t *testing.T) {
	tree := NewTree("t1", testParams())
	leafA := NewNode("a", false, EncodeKey(100))
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leafA))
	assert.Equal(t, 1, tree.Fanout())

	leafB := NewNode("b", false, EncodeKey(200))
	require.NoError(t, tree.InsertLeafAfter(leafA, leafB))

	leafC := NewNode("c", false, EncodeKey(50))
	require.NoError(t, tree.InsertLeafBefore(leafA, leafC))

	nodes := tree.Nodes()
	require.Len(t, nodes, 4)
	assert.Equal(t, []string{"t1-root", "c", "a", "b"}, []string{nodes[0].ID, nodes[1].ID, nodes[2].ID, nodes[3].ID})
}

func TestInsertLeafAfterUnknownAnchorErrors(t *testing.T) {
	tree := NewTree("t1", testParams())
	stray := NewNode("stray", false, nil)
	err := tree.InsertLeafAfter(stray, NewNode("x", false, nil))
	assert.Error(t, err)
}

func TestNeighbors(t *testing.T) {
	tree := NewTree("t1", testParams())
	leafA := NewNode("a", false, EncodeKey(100))
	leafB := NewNode("b", false, EncodeKey(200))
	leafC := NewNode("c", false, EncodeKey(300))
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leafA))
	require.NoError(t, tree.InsertLeafAfter(leafA, leafB))
	require.NoError(t, tree.InsertLeafAfter(leafB, leafC))

	left, right := tree.Neighbors(leafB)
	assert.Equal(t, leafA, left)
	assert.Equal(t, leafC, right)

	left, _ = tree.Neighbors(leafA)
	assert.Nil(t, left, "leftmost leaf has no left leaf neighbor")

	_, right = tree.Neighbors(leafC)
	assert.Nil(t, right)
}

func TestRemoveNode(t *testing.T) {
	tree := NewTree("t1", testParams())
	leafA := NewNode("a", false, EncodeKey(100))
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leafA))
	require.NoError(t, tree.RemoveNode(leafA))
	assert.Equal(t, 0, tree.Fanout())

	err := tree.RemoveNode(leafA)
	assert.Error(t, err, "removing twice is an error")
}

func TestDrainIngestZeroesAccumulator(t *testing.T) {
	tree := NewTree("t1", testParams())
	tree.AddIngest(100, 200, 1)
	tree.AddIngest(50, 60, 2)

	alen, wlen := tree.DrainIngest()
	assert.Equal(t, int64(150), alen)
	assert.Equal(t, int64(260), wlen)
	assert.Equal(t, int64(2), tree.LastIngestUnixNano())

	alen, wlen = tree.DrainIngest()
	assert.Zero(t, alen)
	assert.Zero(t, wlen)
}

func TestNextSgenIsMonotonic(t *testing.T) {
	tree := NewTree("t1", testParams())
	first := tree.NextSgen()
	second := tree.NextSgen()
	assert.Equal(t, first+1, second)
}

func TestTrimTrailingEmptyRemovesEmptyRightmostLeaf(t *testing.T) {
	tree := NewTree("t1", testParams())
	leafA := NewNode("a", false, EncodeKey(100))
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leafA))
	leafA.PrependKvsets(NewKvset(1, 1, 10, 0, 0, 1000, 1000, nil))

	empty := NewNode("empty", false, MaxSentinelKey)
	require.NoError(t, tree.InsertLeafAfter(leafA, empty))

	rm := NewRouteMap(nil)
	require.NoError(t, rm.Insert(leafA))
	require.NoError(t, rm.Insert(empty))

	trimmed, err := tree.TrimTrailingEmpty(rm)
	require.NoError(t, err)
	assert.True(t, trimmed)
	assert.Equal(t, 1, tree.Fanout())
	assert.Equal(t, MaxSentinelKey, leafA.EdgeKey)
	assert.Same(t, leafA, rm.Lookup(MaxSentinelKey))
}

func TestTrimTrailingEmptyNoopWhenRightmostNotEmpty(t *testing.T) {
	tree := NewTree("t1", testParams())
	leafA := NewNode("a", false, MaxSentinelKey)
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leafA))
	leafA.PrependKvsets(NewKvset(1, 1, 10, 0, 0, 1000, 1000, nil))

	trimmed, err := tree.TrimTrailingEmpty(nil)
	require.NoError(t, err)
	assert.False(t, trimmed)
	assert.Equal(t, 1, tree.Fanout())
}

func TestTrimTrailingEmptyNoopWhenSpilling(t *testing.T) {
	tree := NewTree("t1", testParams())
	leafA := NewNode("a", false, EncodeKey(100))
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leafA))

	empty := NewNode("empty", false, MaxSentinelKey)
	empty.AddSpillingCount(1)
	require.NoError(t, tree.InsertLeafAfter(leafA, empty))

	trimmed, err := tree.TrimTrailingEmpty(nil)
	require.NoError(t, err)
	assert.False(t, trimmed)
	assert.Equal(t, 2, tree.Fanout())
}
