package csched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cn-csched/pkg/cn"
)

func TestShapeAuditFlagsBadRootLength(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	root := tree.Root()
	for i := 0; i < badShapeRootLen+1; i++ {
		root.PrependKvsets(cn.NewKvset(uint64(i+1), 1, 10, 0, 0, 1<<10, 1<<10, nil))
	}

	a := newShapeAuditor()
	summary := a.Audit([]*cn.Tree{tree})
	assert.True(t, summary.BadShape)
	assert.Equal(t, badShapeRootLen+1, summary.LongestRoot)
}

func TestShapeAuditTransitionCountsOnlyOnRisingEdge(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	root := tree.Root()
	for i := 0; i < badShapeRootLen+1; i++ {
		root.PrependKvsets(cn.NewKvset(uint64(i+1), 1, 10, 0, 0, 1<<10, 1<<10, nil))
	}

	a := newShapeAuditor()
	a.Audit([]*cn.Tree{tree})
	a.Audit([]*cn.Tree{tree})
	assert.Equal(t, uint64(1), a.BadTransitions(), "repeated bad audits without recovery count once")
}

func TestShapeAuditGoodShapeReportsFalse(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	a := newShapeAuditor()
	summary := a.Audit([]*cn.Tree{tree})
	assert.False(t, summary.BadShape)
}

func TestShapeTrimRemovesEmptyTrailingLeaf(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	leafA := cn.NewNode("a", false, cn.EncodeKey(100))
	require.NoError(t, tree.InsertLeafAfter(tree.Root(), leafA))

	routes := cn.NewRouteMap(nil)
	require.NoError(t, routes.Insert(leafA))
	st := newSpTree(tree, routes)

	a := newShapeAuditor()
	trimmed, err := a.Trim(st)
	require.NoError(t, err)
	assert.True(t, trimmed)
	assert.Equal(t, 0, tree.Fanout())
}
