package cn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactKDropsTombstonesKeepsValueBytes(t *testing.T) {
	n := NewNode("n1", false, EncodeKey(100))
	k1 := NewKvset(1, 1, 100, 10, 0, 1000, 1000, nil)
	k2 := NewKvset(2, 1, 50, 5, 0, 500, 500, nil)
	n.PrependKvsets(k2, k1)

	out, err := CompactK(n, []*Kvset{k1, k2})
	require.NoError(t, err)
	assert.Zero(t, out.Tombs)
	assert.Zero(t, out.PTombs)
	assert.Equal(t, out.ValueBytes, k1.ValueBytes+k2.ValueBytes, "compact-k never touches value bytes")

	stats := n.Stats()
	assert.Equal(t, 1, stats.KvsetCount)
}

func TestCompactKVCollapsesGarbageInBothHalves(t *testing.T) {
	n := NewNode("n1", false, EncodeKey(100))
	k1 := NewKvset(1, 1, 100, 20, 0, 2000, 2000, nil)
	n.PrependKvsets(k1)

	out, err := CompactKV(n, []*Kvset{k1})
	require.NoError(t, err)
	assert.Less(t, out.Wlen, k1.Wlen, "compact-kv should shrink written bytes when garbage exists")
}

func TestCompactKRejectsEmptyRun(t *testing.T) {
	n := NewNode("n1", false, EncodeKey(100))
	_, err := CompactK(n, nil)
	assert.Error(t, err)
}

func TestSpillDistributesBytesAcrossLeaves(t *testing.T) {
	tree := NewTree("t1", testParams())
	leafA := NewNode("a", false, EncodeKey(100))
	leafB := NewNode("b", false, MaxSentinelKey)
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leafA))
	require.NoError(t, tree.InsertLeafAfter(leafA, leafB))

	root := tree.Root()
	k1 := NewKvset(1, 1, 1000, 0, 0, 10_000, 10_000, nil)
	root.PrependKvsets(k1)

	nextID := uint64(100)
	touched, err := Spill(tree, root, []*Kvset{k1}, func() uint64 {
		nextID++
		return nextID
	})
	require.NoError(t, err)
	assert.Len(t, touched, 3, "two leaves plus the root")

	assert.Equal(t, 1, leafA.Stats().KvsetCount)
	assert.Equal(t, 1, leafB.Stats().KvsetCount)
	assert.Zero(t, root.Stats().KvsetCount)
}

func TestSpillRejectsEmptyRunAndNoLeaves(t *testing.T) {
	tree := NewTree("t1", testParams())
	root := tree.Root()
	k1 := NewKvset(1, 1, 10, 0, 0, 100, 100, nil)
	root.PrependKvsets(k1)

	_, err := Spill(tree, root, nil, func() uint64 { return 1 })
	assert.Error(t, err)

	_, err = Spill(tree, root, []*Kvset{k1}, func() uint64 { return 1 })
	assert.Error(t, err, "no leaves to target")
}

func TestSplitCreatesLowerSiblingBeforeNode(t *testing.T) {
	tree := NewTree("t1", testParams())
	leaf := NewNode("leaf", false, EncodeKey(1000))
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leaf))

	k1 := NewKvset(1, 1, 10, 0, 0, 100, 100, nil)
	k2 := NewKvset(2, 1, 10, 0, 0, 100, 100, nil)
	leaf.PrependKvsets(k2, k1)

	nextID := 0
	newLeft, right, err := Split(tree, leaf, func() string {
		nextID++
		return "split-node"
	})
	require.NoError(t, err)
	assert.Equal(t, leaf, right)
	assert.True(t, DecodeKey(newLeft.EdgeKey) < DecodeKey(leaf.EdgeKey))

	nodes := tree.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, newLeft, nodes[1])
	assert.Equal(t, leaf, nodes[2])

	totalKvsets := newLeft.Stats().KvsetCount + right.Stats().KvsetCount
	assert.Equal(t, 2, totalKvsets)
}

func TestJoinAbsorbsLeftIntoRight(t *testing.T) {
	tree := NewTree("t1", testParams())
	left := NewNode("left", false, EncodeKey(100))
	right := NewNode("right", false, EncodeKey(200))
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), left))
	require.NoError(t, tree.InsertLeafAfter(left, right))

	k1 := NewKvset(1, 1, 10, 0, 0, 100, 100, nil)
	left.PrependKvsets(k1)
	left.SetRole(RoleLeft)
	right.SetRole(RoleRight)

	err := Join(tree, left, right)
	require.NoError(t, err)

	assert.Zero(t, left.Stats().KvsetCount)
	assert.False(t, left.RouteValid())
	assert.Equal(t, RoleNone, left.Role())
	assert.Equal(t, RoleNone, right.Role())
	assert.Equal(t, 1, right.Stats().KvsetCount)
	assert.Equal(t, EncodeKey(200), right.EdgeKey, "right keeps its own edge key")
}
