package csched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cn-csched/pkg/cn"
)

func newTestDispatcher() (*dispatcher, *dirtyList, *completionList, *sampEstimator) {
	dirty := newDirtyList()
	completions := newCompletionList()
	samp := newSampEstimator()
	wake := make(chan struct{}, 1)
	var qthreads [categoryCount]int
	for i := range qthreads {
		qthreads[i] = 2
	}
	d := newDispatcher(qthreads, dirty, completions, samp, wake)
	return d, dirty, completions, samp
}

func TestDispatcherSubmitRunsCompactionAndMarksDirty(t *testing.T) {
	d, dirty, completions, _ := newTestDispatcher()
	defer d.Close()

	tree := cn.NewTree("t1", testTreeParams())
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{
		cn.NewKvset(1, 1, 10, 0, 0, 1<<10, 1<<10, nil),
		cn.NewKvset(2, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})

	item := WorkItem{Tree: tree, Node: leaf, Kvsets: leaf.Kvsets(), Action: ActionCompactK, Category: CategoryIdle, Rule: "idle-empty"}
	ok := d.Submit(item)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return len(completions.Drain()) > 0 || d.jobsCompleted.Load() > 0
	}, time.Second, time.Millisecond)

	drained := dirty.Drain()
	assert.Contains(t, drained.nodes, leaf)
}

func TestDispatcherQFullReflectsPoolState(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	defer d.Close()
	assert.False(t, d.QFull(CategoryIdle))
}

func TestClaimAndReleaseForDispatchRoundTrip(t *testing.T) {
	tree := cn.NewTree("t1", testTreeParams())
	leaf := newTestLeaf(t, tree, "leaf-a", tree.Root(), []*cn.Kvset{
		cn.NewKvset(1, 1, 10, 0, 0, 1<<10, 1<<10, nil),
	})
	item := WorkItem{JobID: 7, Node: leaf, Kvsets: leaf.Kvsets(), Action: ActionCompactK}

	claimForDispatch(item)
	assert.Equal(t, 1, leaf.ActiveJobs())
	assert.Equal(t, uint64(7), leaf.Kvsets()[0].WorkID())

	releaseForDispatch(item)
	assert.Equal(t, 0, leaf.ActiveJobs())
	assert.Equal(t, uint64(0), leaf.Kvsets()[0].WorkID())
}
