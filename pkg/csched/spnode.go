package csched

import (
	"sync"

	"github.com/cuemby/cn-csched/pkg/cn"
)

// spNode is the scheduler's per-node satellite: bookkeeping the
// classifier/planner need between ticks beyond what lives on cn.Node
// itself.
type spNode struct {
	node *cn.Node
}

func newSpNode(n *cn.Node) *spNode {
	return &spNode{node: n}
}

// spTree is the scheduler's per-tree satellite: routing map handle and
// the set of nodes the scheduler currently tracks for this tree, used
// to bulk-forget them when the tree is pruned. Round-robin category
// selection and per-category cooldowns are scheduler-global, since the
// seven priority indexes mix nodes from every monitored tree.
type spTree struct {
	tree *cn.Tree

	// routes is this tree's edge-key routing map; the shape auditor's
	// trim step keeps it in sync when it removes a trailing empty
	// leaf. May be nil — routing persistence is an external
	// collaborator, and trim still works without it.
	routes *cn.RouteMap

	mu      sync.Mutex
	spNodes map[*cn.Node]*spNode
}

func newSpTree(t *cn.Tree, routes *cn.RouteMap) *spTree {
	return &spTree{tree: t, routes: routes, spNodes: make(map[*cn.Node]*spNode)}
}

func (st *spTree) spNodeFor(n *cn.Node) *spNode {
	st.mu.Lock()
	defer st.mu.Unlock()
	sn, ok := st.spNodes[n]
	if !ok {
		sn = newSpNode(n)
		st.spNodes[n] = sn
	}
	return sn
}

func (st *spTree) forgetNode(n *cn.Node) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.spNodes, n)
}

func (st *spTree) allSpNodes() []*spNode {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*spNode, 0, len(st.spNodes))
	for _, sn := range st.spNodes {
		out = append(out, sn)
	}
	return out
}
