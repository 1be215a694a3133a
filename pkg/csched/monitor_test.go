package csched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/config"
)

func TestDispatchRoundSubmitsPlannedRootSpill(t *testing.T) {
	s := Create("dispatch-test", config.Default(), nil, nil)
	defer func() {
		s.mu.Lock()
		for id, st := range s.trees {
			st.tree.SetEnabled(false)
			delete(s.trees, id)
		}
		s.mu.Unlock()
		require.Eventually(t, func() bool { return s.Destroy() == nil }, 2*time.Second, 5*time.Millisecond)
	}()

	tree := cn.NewTree("t1", testTreeParams())
	params := s.Params()
	root := tree.Root()
	for i := 0; i < params.Rspill.RunlenMax+2; i++ {
		root.PrependKvsets(cn.NewKvset(uint64(i+1), 1, 10, 0, 0, 8<<20, 8<<20, nil))
	}

	st := newSpTree(tree, cn.NewRouteMap(nil))
	s.mu.Lock()
	s.trees["t1"] = st
	s.mu.Unlock()
	s.registerNode(st, root)
	s.samp.AddTree(aggregateTreeSampStats(tree))

	tree.RLock()
	classify(s.ci, tree, root, params)
	tree.RUnlock()

	require.True(t, s.ci.of(CategoryRoot).Contains(root))

	s.dispatchRound(params)

	require.Eventually(t, func() bool {
		return root.ActiveJobs() > 0 || root.ClaimedKvsets() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestComputeWorstBacklogNilWhenNoExcess(t *testing.T) {
	s := Create("backlog-test", config.Default(), nil, nil)
	defer func() {
		require.Eventually(t, func() bool { return s.Destroy() == nil }, 2*time.Second, 5*time.Millisecond)
	}()

	worst, holdEligible := s.computeWorstBacklog(s.Params())
	assert.Nil(t, worst)
	assert.False(t, holdEligible)
}

func TestComputeWorstBacklogReportsExcess(t *testing.T) {
	s := Create("backlog-test-2", config.Default(), nil, nil)
	defer func() {
		s.mu.Lock()
		for id, st := range s.trees {
			st.tree.SetEnabled(false)
			delete(s.trees, id)
		}
		s.mu.Unlock()
		require.Eventually(t, func() bool { return s.Destroy() == nil }, 2*time.Second, 5*time.Millisecond)
	}()

	tree := cn.NewTree("t1", testTreeParams())
	params := s.Params()
	root := tree.Root()
	for i := 0; i < params.Rspill.RunlenMax*3; i++ {
		root.PrependKvsets(cn.NewKvset(uint64(i+1), 1, 10, 0, 0, 8<<20, 8<<20, nil))
	}

	st := newSpTree(tree, cn.NewRouteMap(nil))
	s.mu.Lock()
	s.trees["t1"] = st
	s.mu.Unlock()

	worst, _ := s.computeWorstBacklog(params)
	require.NotNil(t, worst)
	assert.Greater(t, worst.excessKvsets, 0)
}
