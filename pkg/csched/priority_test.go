package csched

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/cn-csched/pkg/cn"
)

func TestPriorityIndexFirstReturnsHighestWeight(t *testing.T) {
	idx := newPriorityIndex()
	a := cn.NewNode("a", false, nil)
	b := cn.NewNode("b", false, nil)
	c := cn.NewNode("c", false, nil)

	idx.Insert(a, packWeight(1, 0))
	idx.Insert(b, packWeight(5, 0))
	idx.Insert(c, packWeight(3, 0))

	top, w, ok := idx.First()
	assert.True(t, ok)
	assert.Same(t, b, top)
	assert.Equal(t, packWeight(5, 0), w)
	assert.Equal(t, 3, idx.Len())
}

func TestPriorityIndexReinsertSameWeightIsNoop(t *testing.T) {
	idx := newPriorityIndex()
	a := cn.NewNode("a", false, nil)
	idx.Insert(a, packWeight(2, 0))
	idx.Insert(a, packWeight(2, 0))
	assert.Equal(t, 1, idx.Len())
}

func TestPriorityIndexReinsertNewWeightRepositions(t *testing.T) {
	idx := newPriorityIndex()
	a := cn.NewNode("a", false, nil)
	b := cn.NewNode("b", false, nil)
	idx.Insert(a, packWeight(1, 0))
	idx.Insert(b, packWeight(2, 0))

	idx.Insert(a, packWeight(9, 0))
	top, _, _ := idx.First()
	assert.Same(t, a, top)
}

func TestPriorityIndexRemove(t *testing.T) {
	idx := newPriorityIndex()
	a := cn.NewNode("a", false, nil)
	idx.Insert(a, packWeight(1, 0))
	idx.Remove(a)
	assert.False(t, idx.Contains(a))
	_, _, ok := idx.First()
	assert.False(t, ok)

	idx.Remove(a) // no-op
}

func TestCategoryIndexesRemoveFromAll(t *testing.T) {
	ci := newCategoryIndexes()
	a := cn.NewNode("a", false, nil)
	for c := WorkCategory(0); c < categoryCount; c++ {
		ci.of(c).Insert(a, packWeight(1, 0))
	}
	ci.removeFromAll(a)
	for c := WorkCategory(0); c < categoryCount; c++ {
		assert.False(t, ci.of(c).Contains(a))
	}
}
