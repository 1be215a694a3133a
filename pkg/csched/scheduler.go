package csched

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/config"
	"github.com/cuemby/cn-csched/pkg/log"
	"github.com/cuemby/cn-csched/pkg/metrics"
)

// CompactFlags are the bits accepted by CompactRequest.
type CompactFlags uint8

const (
	CompactCancel  CompactFlags = 1 << iota // stop a running user compaction
	CompactSampLWM                          // start one, targeting samp_lwm
)

// Scheduler is the public handle: one per storage pool, monitoring
// any number of trees added via TreeAdd.
type Scheduler struct {
	name string

	mu    sync.RWMutex
	trees map[string]*spTree

	params atomic.Pointer[config.Params]

	ci          *categoryIndexes
	nodeOwners  map[*cn.Node]*spTree
	nodeOwnersMu sync.Mutex

	newTrees    *newTreeList
	dirty       *dirtyList
	completions *completionList
	samp        *sampEstimator
	throttle    *throttleAdvisor
	shape       *shapeAuditor
	disp        *dispatcher
	userCompact *userCompactController

	routeStore cn.RouteStore
	healthFn   func() bool

	// roundRobinCursor and categoryCooldownUntil are scheduler-global
	// because the seven priority indexes mix nodes from every
	// monitored tree; dispatch fairness and cooldown gating are
	// properties of the category, not of any one tree.
	roundRobinCursor     atomic.Int32
	categoryCooldownUntil [categoryCount]atomic.Int64 // unix nanos

	running      atomic.Bool
	healthy      atomic.Bool
	idle         atomic.Bool
	lastActivity atomic.Int64 // unix nanos

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// Create constructs a Scheduler for one storage pool and starts its
// monitor loop. routeStore may be nil (routing persistence is an
// external collaborator; see pkg/metalog). health may be nil, in
// which case the scheduler always considers itself healthy.
func Create(name string, params config.Params, health func() bool, routeStore cn.RouteStore) *Scheduler {
	clamped, notes := config.Clamp(params)
	for _, n := range notes {
		log.WithComponent("csched").Warn().Str("tree", name).Msg(n.String())
	}

	s := &Scheduler{
		name:        name,
		trees:       make(map[string]*spTree),
		ci:          newCategoryIndexes(),
		nodeOwners:  make(map[*cn.Node]*spTree),
		newTrees:    newNewTreeList(),
		dirty:       newDirtyList(),
		completions: newCompletionList(),
		samp:        newSampEstimator(),
		throttle:    newThrottleAdvisor(),
		shape:       newShapeAuditor(),
		routeStore:  routeStore,
		healthFn:    health,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.params.Store(&clamped)
	s.userCompact = newUserCompactController(s.samp)
	s.disp = newDispatcher(clamped.QThreads, s.dirty, s.completions, s.samp, s.wake)
	s.healthy.Store(true)
	s.running.Store(true)
	s.lastActivity.Store(time.Now().UnixNano())

	go s.monitorLoop()
	return s
}

func (s *Scheduler) Params() config.Params { return *s.params.Load() }

// SetParams applies a new configuration, clamping it first:
// out-of-range input is never rejected, only clamped.
func (s *Scheduler) SetParams(params config.Params) []config.ClampNote {
	clamped, notes := config.Clamp(params)
	s.params.Store(&clamped)
	for i, n := range clamped.QThreads {
		_ = s.disp.pool.Resize(i, n)
	}
	return notes
}

// Destroy tears the scheduler down, requiring every tree to have
// already been removed.
func (s *Scheduler) Destroy() error {
	s.mu.RLock()
	n := len(s.trees)
	s.mu.RUnlock()
	if n > 0 {
		return fmt.Errorf("csched: destroy called with %d trees still attached", n)
	}
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.stop)
	<-s.done
	s.disp.Close()
	return nil
}

// TreeAdd implements tree_add: the tree becomes monitored
// asynchronously, promoted by the monitor's next iteration.
func (s *Scheduler) TreeAdd(tree *cn.Tree) {
	s.newTrees.Add(tree)
	s.wakeMonitor()
}

// TreeRemove implements tree_remove: marks the tree disabled; the
// monitor keeps servicing its in-flight jobs until none remain, then
// detaches it. cancel is accepted for interface parity with the
// source's soft-cancel semantics; this design always drains rather
// than discarding in-flight work.
func (s *Scheduler) TreeRemove(tree *cn.Tree, cancel bool) {
	_ = cancel
	tree.SetEnabled(false)
	s.wakeMonitor()
}

// NotifyIngest implements notify_ingest. alen+wlen must be positive.
func (s *Scheduler) NotifyIngest(tree *cn.Tree, alen, wlen int64) error {
	if alen+wlen <= 0 {
		return fmt.Errorf("csched: notify_ingest requires alen+wlen > 0")
	}
	tree.AddIngest(alen, wlen, time.Now().UnixNano())
	s.dirty.MarkNode(tree, tree.Root())
	s.markActivity()
	s.wakeMonitor()
	return nil
}

// SetThrottleSensor implements throttle_sensor: registers the output
// sensor callback invoked whenever the advisor recomputes sval.
func (s *Scheduler) SetThrottleSensor(fn func(sval int64)) {
	s.throttle.SetSensor(fn)
}

// CompactRequest implements compact_request.
func (s *Scheduler) CompactRequest(flags CompactFlags) {
	if flags&CompactCancel != 0 {
		s.userCompact.Cancel()
	}
	if flags&CompactSampLWM != 0 {
		s.userCompact.Start()
	}
	s.wakeMonitor()
}

// CompactStatusGet implements compact_status_get.
func (s *Scheduler) CompactStatusGet() CompactStatus {
	return s.userCompact.Status(s.samp.Snapshot())
}

// Healthy reports the scheduler's last observed external health flag.
func (s *Scheduler) Healthy() bool { return s.healthy.Load() }

// Idle reports whether the monitor loop currently considers the
// scheduler quiesced: no recent activity and no jobs in flight.
func (s *Scheduler) Idle() bool { return s.idle.Load() }

// ShapeSummary exposes the tree-shape auditor's last observations.
func (s *Scheduler) ShapeSummary() ShapeSummary { return s.shape.Snapshot() }

func (s *Scheduler) markActivity() { s.lastActivity.Store(time.Now().UnixNano()) }

func (s *Scheduler) wakeMonitor() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// aggregateTreeSampStats sums a tree's current stats into the global
// samp accumulator shape (root bytes vs. leaf bytes/good-bytes).
func aggregateTreeSampStats(t *cn.Tree) TreeSampStats {
	root := t.Root().Stats()
	ts := TreeSampStats{RootAlen: root.Alen, RootWlen: root.Wlen}
	for _, leaf := range t.Leaves() {
		stats := leaf.Stats()
		ts.LeafAlen += stats.Alen
		ts.LeafGood += stats.Clen
	}
	return ts
}

// registerNode associates n with its owning spTree so that a node
// pulled off a (tree-agnostic) priority index can be mapped back to
// its tree at dispatch time.
func (s *Scheduler) registerNode(st *spTree, n *cn.Node) {
	s.nodeOwnersMu.Lock()
	s.nodeOwners[n] = st
	s.nodeOwnersMu.Unlock()
	st.spNodeFor(n)
}

func (s *Scheduler) ownerOf(n *cn.Node) (*spTree, bool) {
	s.nodeOwnersMu.Lock()
	st, ok := s.nodeOwners[n]
	s.nodeOwnersMu.Unlock()
	return st, ok
}

// forgetNode drops n from the global owner index, its owning spTree's
// node set, and every priority index.
func (s *Scheduler) forgetNode(n *cn.Node) {
	s.nodeOwnersMu.Lock()
	st, ok := s.nodeOwners[n]
	delete(s.nodeOwners, n)
	s.nodeOwnersMu.Unlock()
	if ok {
		st.forgetNode(n)
	}
	s.ci.removeFromAll(n)
}

func (s *Scheduler) updateSampMetrics(snap SampSnapshot) {
	metrics.SampCurrentX10000.Set(float64(snap.CurrX10000))
	metrics.SampTargetX10000.Set(float64(snap.TargetX10000))
	metrics.SampHWMX10000.Set(float64(snap.HWMX10000))
	metrics.SampLWMX10000.Set(float64(snap.LWMX10000))
	if snap.Reduce {
		metrics.SampReduce.Set(1)
	} else {
		metrics.SampReduce.Set(0)
	}
	for c := WorkCategory(0); c < categoryCount; c++ {
		metrics.QueueDepth.WithLabelValues(c.String()).Set(float64(s.disp.QDepth(c)))
	}
}
