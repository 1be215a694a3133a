package csched

import (
	"sync/atomic"

	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/log"
	"github.com/cuemby/cn-csched/pkg/metrics"
	"github.com/cuemby/cn-csched/pkg/worker"
)

// dispatcher turns a planned WorkItem into a running job, claims its
// kvsets and busy counters before submission, and releases/reconciles
// them from the worker callback.
type dispatcher struct {
	pool *worker.Pool

	nextJobID     atomic.Uint64
	jobsStarted   atomic.Uint64
	jobsCompleted atomic.Uint64
	nextKvsetID   atomic.Uint64
	nextNodeSeq   atomic.Uint64

	dirty       *dirtyList
	completions *completionList
	samp        *sampEstimator

	wake chan struct{}
}

func newDispatcher(qthreads [categoryCount]int, dirty *dirtyList, completions *completionList, samp *sampEstimator, wake chan struct{}) *dispatcher {
	concurrency := make([]int, categoryCount)
	for i, n := range qthreads {
		concurrency[i] = n
	}
	pool := worker.NewPool("csched", concurrency, func(format string, args ...any) {
		log.Logger.Debug().Msgf(format, args...)
	})
	return &dispatcher{pool: pool, dirty: dirty, completions: completions, samp: samp, wake: wake}
}

func (d *dispatcher) Close() { d.pool.Destroy() }

func (d *dispatcher) QFull(c WorkCategory) bool { return d.pool.QFull(int(c)) }

func (d *dispatcher) QDepth(c WorkCategory) int { return d.pool.QDepth(int(c)) }

// Submit assigns a job id, claims kvsets/busy counters, records the
// wip samp estimate, and hands the item to the worker pool.
func (d *dispatcher) Submit(item WorkItem) bool {
	item.JobID = d.nextJobID.Add(1)
	estimateSampWIP(&item)
	claimForDispatch(item)
	d.samp.SubmitWIP(item)

	ok := d.pool.Submit(int(item.Category), func() { d.run(item) })
	if !ok {
		releaseForDispatch(item)
		d.samp.ApplyCompletion(item.Node.IsRoot, 0, 0, 0, item)
		return false
	}
	d.jobsStarted.Add(1)
	metrics.JobsStartedTotal.WithLabelValues(item.Category.String()).Inc()
	return true
}

// estimateSampWIP fills a cheap wip estimate for garbage-reducing
// actions: the run's allocated bytes are expected to shrink toward
// its currently-compacted bytes. Spill/split/join relocate bytes
// without reducing garbage, so their wip estimate is zero.
func estimateSampWIP(item *WorkItem) {
	switch item.Action {
	case ActionCompactK, ActionCompactKV:
		var alen, clen int64
		for _, k := range item.Kvsets {
			alen += k.Alen
			clen += k.Clen
		}
		item.SampDeltaAlen = clen - alen
	}
}

func claimForDispatch(item WorkItem) {
	switch item.Action {
	case ActionJoin:
		for _, k := range item.Kvsets {
			k.Claim(item.JobID)
		}
		item.Other.AddBusy(1, int32(len(item.Kvsets)))
		item.Node.AddBusy(1, 0)
	default:
		for _, k := range item.Kvsets {
			k.Claim(item.JobID)
		}
		item.Node.AddBusy(1, int32(len(item.Kvsets)))
	}
	if item.Action == ActionSpill {
		item.Node.AddSpillingCount(1)
	}
}

func releaseForDispatch(item WorkItem) {
	switch item.Action {
	case ActionJoin:
		for _, k := range item.Kvsets {
			k.Release()
		}
		item.Other.AddBusy(-1, -int32(len(item.Kvsets)))
		item.Node.AddBusy(-1, 0)
	default:
		for _, k := range item.Kvsets {
			k.Release()
		}
		item.Node.AddBusy(-1, -int32(len(item.Kvsets)))
	}
	if item.Action == ActionSpill {
		item.Node.AddSpillingCount(-1)
	}
}

// run executes the action kernel for item and records its outcome.
// There is no separate per-node compaction token: for every action,
// including spills, the item's kvset claims and busy counts are held
// while the kernel runs and released as soon as it returns, before the
// completion is queued for the monitor.
func (d *dispatcher) run(item WorkItem) {
	preRoot := item.Node.Stats()
	var preOther cn.NodeStats
	if item.Other != nil {
		preOther = item.Other.Stats()
	}

	touched, err := d.executeKernel(item)
	releaseForDispatch(item)

	if err != nil {
		log.WithJobID(item.JobID).Error().Str("rule", item.Rule).Err(err).Msg("csched: job failed")
		metrics.JobsCompletedTotal.WithLabelValues(item.Category.String(), "error").Inc()
	} else {
		metrics.JobsCompletedTotal.WithLabelValues(item.Category.String(), "ok").Inc()
	}

	postNode := item.Node.Stats()
	deltaAlen := postNode.Alen - preRoot.Alen
	deltaGood := postNode.Clen - preRoot.Clen
	if item.Other != nil {
		postOther := item.Other.Stats()
		deltaAlen += postOther.Alen - preOther.Alen
		deltaGood += postOther.Clen - preOther.Clen
	}
	d.samp.ApplyCompletion(item.Node.IsRoot, deltaAlen, 0, deltaGood, item)

	for _, n := range touched {
		d.dirty.MarkNode(item.Tree, n)
	}
	d.completions.Append(completedWork{item: item, touched: touched, err: err})
	d.jobsCompleted.Add(1)

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) executeKernel(item WorkItem) ([]*cn.Node, error) {
	switch item.Action {
	case ActionCompactK:
		_, err := cn.CompactK(item.Node, item.Kvsets)
		return []*cn.Node{item.Node}, err
	case ActionCompactKV:
		_, err := cn.CompactKV(item.Node, item.Kvsets)
		return []*cn.Node{item.Node}, err
	case ActionSpill:
		return cn.Spill(item.Tree, item.Node, item.Kvsets, func() uint64 { return d.nextKvsetID.Add(1) })
	case ActionSplit:
		item.Tree.Lock()
		left, right, err := cn.Split(item.Tree, item.Node, func() string {
			return item.Tree.ID + "-n" + itoa(d.nextNodeSeq.Add(1))
		})
		item.Tree.Unlock()
		if err != nil {
			return nil, err
		}
		item.Node.SetSplitting(false)
		return []*cn.Node{left, right}, nil
	case ActionJoin:
		item.Tree.Lock()
		err := cn.Join(item.Tree, item.Other, item.Node)
		item.Tree.Unlock()
		return []*cn.Node{item.Other, item.Node}, err
	default:
		return nil, nil
	}
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
