package csched

import (
	"sync/atomic"
	"time"
)

// throttleAdvisor computes a sensor value derived from each monitored
// tree's root backlog, clamped according to how critical the backlog
// is.
type throttleAdvisor struct {
	sensor atomic.Int64 // scaled 0..~110, last computed sval

	// minNonZero tracks the smallest nonzero sval the backlog formula
	// has produced since the last decay. While a root stays long and
	// recently ingested but its backlog formula has nothing to compute
	// (no excess run), Compute holds this value instead of decaying
	// straight to zero; it resets to zero once the hold condition lapses.
	minNonZero atomic.Int64

	sensorFn atomic.Pointer[func(int64)]
}

func newThrottleAdvisor() *throttleAdvisor {
	return &throttleAdvisor{}
}

// SetSensor registers the output sensor callback.
func (a *throttleAdvisor) SetSensor(fn func(sval int64)) {
	a.sensorFn.Store(&fn)
}

// rootBacklog is one tree's root backlog observation, computed by the
// monitor from the root's unclaimed-kvset run and the rspill jobs
// currently executing against it.
type rootBacklog struct {
	excessKvsets  int
	maxLatencySec float64
	clenBytes     int64
	lastIngest    time.Time
	anyCriticallyLong bool
	anySpillBlocked   bool
}

const (
	fullScale         = 100
	normalClampPct    = 90
	criticalClampPct  = 110
	minLatencySeconds = 16
	maxLatencySeconds = 80
)

// Compute applies the sensor formula and clamping rules over the
// worst observed backlog among monitored trees. holdEligible reports
// whether any monitored root currently has clen beyond 1 GiB with
// ingest inside the last 60 seconds; when the backlog formula itself
// has nothing to compute, that condition is what keeps the sensor
// from dropping straight to zero.
func (a *throttleAdvisor) Compute(worst *rootBacklog, rspillRunlenMin int, holdEligible bool) int64 {
	if worst == nil || worst.excessKvsets <= 0 {
		sval := int64(0)
		if holdEligible {
			sval = a.minNonZero.Load()
		} else {
			a.minNonZero.Store(0)
		}
		a.sensor.Store(sval)
		if fn := a.sensorFn.Load(); fn != nil {
			(*fn)(sval)
		}
		return sval
	}

	latency := worst.maxLatencySec
	if latency < minLatencySeconds {
		latency = minLatencySeconds
	}
	if latency > maxLatencySeconds {
		latency = maxLatencySeconds
	}

	r := 100 * int64(worst.excessKvsets)
	k := int64((100*latency + 475*64) / 64)

	var sval int64
	if k+r > 0 {
		sval = 3 * k * r / (k + r)
	}

	clampPct := int64(normalClampPct)
	if worst.anyCriticallyLong || worst.anySpillBlocked {
		clampPct = criticalClampPct
	}
	maxVal := fullScale * clampPct / 100
	if sval > maxVal {
		sval = maxVal
	}

	if sval > 0 {
		for {
			cur := a.minNonZero.Load()
			if cur != 0 && cur <= sval {
				break
			}
			if a.minNonZero.CompareAndSwap(cur, sval) {
				break
			}
		}
	}

	a.sensor.Store(sval)
	if fn := a.sensorFn.Load(); fn != nil {
		(*fn)(sval)
	}
	return sval
}

func (a *throttleAdvisor) Current() int64 { return a.sensor.Load() }
