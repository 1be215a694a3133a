package csched

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/cn-csched/pkg/config"
)

// sampScale is the internal fixed-point factor for derived scaling:
// every ratio tracked here is an integer representing the true value
// multiplied by sampScale.
const sampScale = 10000

// TreeSampStats is the aggregate a caller sums from a tree's node
// stats to feed the estimator; "internal" bytes are aliased to root
// bytes since this design has no internal tree levels, only a root
// and leaves.
type TreeSampStats struct {
	RootAlen int64
	RootWlen int64
	LeafAlen int64
	LeafGood int64 // leaf Clen: non-garbage bytes
}

// SampSnapshot is the read-only view exposed to CompactStatusGet and
// the metrics exporter.
type SampSnapshot struct {
	CurrX10000   int64
	TargetX10000 int64
	LWMX10000    int64
	HWMX10000    int64
	LPctX10000   int64
	Reduce       bool
}

// sampEstimator holds global running accumulators plus a
// work-in-progress shadow of submitted-but-unfinished jobs, and
// derives samp_curr/samp_target/samp_reduce from them.
type sampEstimator struct {
	mu sync.Mutex

	rAlen, rWlen int64
	lAlen, lGood int64

	wipAlen, wipWlen, wipGood int64

	sampCurrX10000   int64
	sampTargetX10000 int64
	lpctX10000       int64
	hwmX10000        int64
	lwmX10000        int64

	hystereticReduce atomic.Bool
	userForcedReduce atomic.Bool
}

func newSampEstimator() *sampEstimator {
	return &sampEstimator{}
}

// AddIngest implements the "on every ingest notification" rule: bytes
// appended to a root go straight into the root accumulators.
func (s *sampEstimator) AddIngest(alen, wlen int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rAlen += alen
	s.rWlen += wlen
}

// AddTree folds a newly monitored tree's stats into the global
// accumulators.
func (s *sampEstimator) AddTree(ts TreeSampStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rAlen += ts.RootAlen
	s.rWlen += ts.RootWlen
	s.lAlen += ts.LeafAlen
	s.lGood += ts.LeafGood
}

// RemoveTree reverses AddTree when a tree is pruned.
func (s *sampEstimator) RemoveTree(ts TreeSampStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rAlen -= ts.RootAlen
	s.rWlen -= ts.RootWlen
	s.lAlen -= ts.LeafAlen
	s.lGood -= ts.LeafGood
}

// ApplyCompletion applies stats_post - stats_pre for a finished work
// item to the correct bucket (root or leaf) and removes the item's
// estimated delta from wip.
func (s *sampEstimator) ApplyCompletion(root bool, deltaAlen, deltaWlen, deltaGood int64, item WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if root {
		s.rAlen += deltaAlen
		s.rWlen += deltaWlen
	} else {
		s.lAlen += deltaAlen
		s.lGood += deltaGood
	}
	s.wipAlen -= item.SampDeltaAlen
	s.wipWlen -= item.SampDeltaWlen
	s.wipGood -= item.SampDeltaGood
}

// SubmitWIP records a job's estimated samp delta at dispatch time.
func (s *sampEstimator) SubmitWIP(item WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipAlen += item.SampDeltaAlen
	s.wipWlen += item.SampDeltaWlen
	s.wipGood += item.SampDeltaGood
}

// thresholds computes the derived fixed-point samp_lwm/samp_hwm
// thresholds from configured params.
func thresholds(params config.Params) (lwmX10000, hwmX10000 int64) {
	// Params percent fields are already stored ×100 (0..10000 for
	// 0.00%..100.00%), which is numerically the same fixed-point base
	// as sampScale; no further scaling is needed.
	sampMaxX10000 := int64(params.SampMaxX100)
	leafX10000 := int64(params.LeafPctX100)
	rX10000 := sampScale - leafX10000

	goodMinX10000 := (sampScale + rX10000) * sampScale / sampMaxX10000
	rangeX10000 := sampScale - goodMinX10000

	lwmPctX10000 := int64(params.LoThPctX100)
	hwmPctX10000 := int64(params.HiThPctX100)

	goodLWM := goodMinX10000 + (sampScale-lwmPctX10000)*rangeX10000/sampScale
	goodHWM := goodMinX10000 + (sampScale-hwmPctX10000)*rangeX10000/sampScale

	if goodLWM <= 0 {
		goodLWM = 1
	}
	if goodHWM <= 0 {
		goodHWM = 1
	}

	lwmX10000 = (sampScale + rX10000) * sampScale / goodLWM
	hwmX10000 = (sampScale + rX10000) * sampScale / goodHWM
	return lwmX10000, hwmX10000
}

// Recompute derives a fresh snapshot each monitor tick, including the
// hysteretic samp_reduce transition.
func (s *sampEstimator) Recompute(params config.Params) SampSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lwmX10000, s.hwmX10000 = thresholds(params)

	iAlen := s.rAlen
	denomCurr := iAlen + s.lGood
	if denomCurr <= 0 {
		s.sampCurrX10000 = sampScale
	} else {
		s.sampCurrX10000 = (iAlen + s.lAlen) * sampScale / denomCurr
	}

	targetIAlen := iAlen + s.wipAlen
	targetLAlen := s.lAlen + s.wipAlen
	targetLGood := s.lGood + s.wipGood
	denomTarget := targetIAlen + targetLGood
	if denomTarget <= 0 {
		s.sampTargetX10000 = s.sampCurrX10000
	} else {
		s.sampTargetX10000 = (targetIAlen + targetLAlen) * sampScale / denomTarget
	}

	lpctDenom := iAlen + s.lAlen
	if lpctDenom <= 0 {
		s.lpctX10000 = 0
	} else {
		s.lpctX10000 = s.lAlen * sampScale / lpctDenom
	}

	if s.sampTargetX10000 > s.hwmX10000 {
		s.hystereticReduce.Store(true)
	} else if s.sampTargetX10000 < s.lwmX10000 {
		s.hystereticReduce.Store(false)
	}

	return s.snapshotLocked()
}

func (s *sampEstimator) snapshotLocked() SampSnapshot {
	return SampSnapshot{
		CurrX10000:   s.sampCurrX10000,
		TargetX10000: s.sampTargetX10000,
		LWMX10000:    s.lwmX10000,
		HWMX10000:    s.hwmX10000,
		LPctX10000:   s.lpctX10000,
		Reduce:       s.hystereticReduce.Load() || s.userForcedReduce.Load(),
	}
}

// Snapshot returns the current state without recomputing it.
func (s *sampEstimator) Snapshot() SampSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SampReduce reports whether either the hysteretic loop or a user
// compaction request currently wants garbage-biased scheduling.
func (s *sampEstimator) SampReduce() bool {
	return s.hystereticReduce.Load() || s.userForcedReduce.Load()
}

// ForceReduce handles a user-initiated "start": the flag stays set
// regardless of hysteresis until ClearForcedReduce is called by the
// controller that owns the lwm/idle exit condition.
func (s *sampEstimator) ForceReduce() { s.userForcedReduce.Store(true) }

// ClearForcedReduce implements "cancel", or the controller's own
// samp_lwm/idle exit condition.
func (s *sampEstimator) ClearForcedReduce() { s.userForcedReduce.Store(false) }

func (s *sampEstimator) SampCurrX10000() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampCurrX10000
}

func (s *sampEstimator) SampLWMX10000() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lwmX10000
}
