package csched

import (
	"sync"
	"sync/atomic"
	"time"
)

// userCompactController forces samp-reduction until samp_curr drops
// below samp_lwm or the scheduler goes idle; cancel clears it early.
// Reports are rate limited to once per 5 seconds.
type userCompactController struct {
	samp *sampEstimator

	active   atomic.Bool
	canceled atomic.Bool

	mu           sync.Mutex
	lastReportAt time.Time
}

func newUserCompactController(samp *sampEstimator) *userCompactController {
	return &userCompactController{samp: samp}
}

// Start implements compact_request's SAMP_LWM flag.
func (c *userCompactController) Start() {
	c.active.Store(true)
	c.canceled.Store(false)
	c.samp.ForceReduce()
}

// Cancel implements compact_request's CANCEL flag.
func (c *userCompactController) Cancel() {
	c.canceled.Store(true)
	c.active.Store(false)
	c.samp.ClearForcedReduce()
}

// CheckExit evaluates the exit condition ("samp_curr < samp_lwm or the
// scheduler is idle") every monitor tick while a user compaction is
// active, clearing the forced flag once satisfied.
func (c *userCompactController) CheckExit(snap SampSnapshot, idle bool) {
	if !c.active.Load() {
		return
	}
	if snap.CurrX10000 < snap.LWMX10000 || idle {
		c.active.Store(false)
		c.samp.ClearForcedReduce()
	}
}

// ShouldReport rate-limits status reports to at most once per 5 s.
func (c *userCompactController) ShouldReport(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastReportAt) < 5*time.Second {
		return false
	}
	c.lastReportAt = now
	return true
}

// CompactStatus is the compact_status_get output struct.
type CompactStatus struct {
	Active         bool
	Canceled       bool
	SampCurrX100   int64
	SampLWMX100    int64
	SampHWMX100    int64
}

// Status fills the compact_status_get output from the current samp
// snapshot.
func (c *userCompactController) Status(snap SampSnapshot) CompactStatus {
	return CompactStatus{
		Active:       c.active.Load(),
		Canceled:     c.canceled.Load(),
		SampCurrX100: snap.CurrX10000 / 100,
		SampLWMX100:  snap.LWMX10000 / 100,
		SampHWMX100:  snap.HWMX10000 / 100,
	}
}
