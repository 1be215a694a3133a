package csched

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/cn-csched/pkg/cn"
)

// dirtyList is a double-buffered pending-node set: two buffers
// selected by an atomic index. Producers (ingest, completion
// callbacks, add/remove tree) enqueue under a short lock into
// whichever buffer the index currently names; the monitor flips the
// index, then drains the now-stable other side without holding the
// lock against producers.
type dirtyList struct {
	mu      sync.Mutex
	idx     atomic.Int32
	buffers [2]map[*cn.Node]struct{}
	trees   [2]map[*cn.Tree]struct{}
}

func newDirtyList() *dirtyList {
	d := &dirtyList{}
	d.buffers[0] = make(map[*cn.Node]struct{})
	d.buffers[1] = make(map[*cn.Node]struct{})
	d.trees[0] = make(map[*cn.Tree]struct{})
	d.trees[1] = make(map[*cn.Tree]struct{})
	return d
}

// MarkNode enqueues a node (and its owning tree) as dirty. A no-op if
// the node is already on the active side's list.
func (d *dirtyList) MarkNode(t *cn.Tree, n *cn.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	side := d.idx.Load()
	d.buffers[side][n] = struct{}{}
	d.trees[side][t] = struct{}{}
}

// MarkTree enqueues a tree as dirty without any particular node.
func (d *dirtyList) MarkTree(t *cn.Tree) {
	d.mu.Lock()
	defer d.mu.Unlock()
	side := d.idx.Load()
	d.trees[side][t] = struct{}{}
}

// drainResult is the stable snapshot handed to the monitor after a
// flip; the monitor owns it exclusively, no lock needed to read it.
type drainResult struct {
	nodes map[*cn.Node]struct{}
	trees map[*cn.Tree]struct{}
}

// Drain flips the active index, then clears and returns the side that
// was active before the flip. Must be called only from the monitor
// goroutine.
func (d *dirtyList) Drain() drainResult {
	d.mu.Lock()
	prev := d.idx.Load()
	next := prev ^ 1
	d.idx.Store(next)
	nodes := d.buffers[prev]
	trees := d.trees[prev]
	d.buffers[prev] = make(map[*cn.Node]struct{})
	d.trees[prev] = make(map[*cn.Tree]struct{})
	d.mu.Unlock()
	return drainResult{nodes: nodes, trees: trees}
}

// completionList is the short-locked MPSC queue of finished work items
// that worker callbacks append to and the monitor drains wholesale.
type completionList struct {
	mu    sync.Mutex
	items []completedWork
}

// completedWork pairs a finished WorkItem with the before/after stats
// snapshots the samp estimator needs to compute its diff.
type completedWork struct {
	item     WorkItem
	preRoot  bool
	preAlen  int64
	preWlen  int64
	preGood  int64
	postAlen int64
	postWlen int64
	postGood int64
	touched  []*cn.Node
	err      error
}

func newCompletionList() *completionList {
	return &completionList{}
}

func (c *completionList) Append(w completedWork) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, w)
}

// Drain returns and clears every completed item since the last drain.
func (c *completionList) Drain() []completedWork {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return nil
	}
	out := c.items
	c.items = nil
	return out
}

// newTreeList is the short-locked pending-add list (new_tlist_lock):
// trees registered via TreeAdd wait here until the monitor promotes
// them onto the monitored list.
type newTreeList struct {
	mu    sync.Mutex
	trees []*cn.Tree
}

func newNewTreeList() *newTreeList {
	return &newTreeList{}
}

func (l *newTreeList) Add(t *cn.Tree) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trees = append(l.trees, t)
}

func (l *newTreeList) Drain() []*cn.Tree {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.trees) == 0 {
		return nil
	}
	out := l.trees
	l.trees = nil
	return out
}
