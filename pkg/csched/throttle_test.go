package csched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleComputeZeroWithNoBacklog(t *testing.T) {
	a := newThrottleAdvisor()
	sval := a.Compute(nil, 4, false)
	assert.Equal(t, int64(0), sval)
}

func TestThrottleComputeClampsToNormalCeiling(t *testing.T) {
	a := newThrottleAdvisor()
	worst := &rootBacklog{excessKvsets: 10_000, maxLatencySec: 1000}
	sval := a.Compute(worst, 4, false)
	assert.LessOrEqual(t, sval, int64(fullScale*normalClampPct/100))
}

func TestThrottleComputeClampsHigherWhenCritical(t *testing.T) {
	a := newThrottleAdvisor()
	worst := &rootBacklog{excessKvsets: 10_000, maxLatencySec: 1000, anyCriticallyLong: true}
	sval := a.Compute(worst, 4, false)
	assert.LessOrEqual(t, sval, int64(fullScale*criticalClampPct/100))
}

func TestThrottleSetSensorInvokedOnCompute(t *testing.T) {
	a := newThrottleAdvisor()
	var got int64 = -1
	a.SetSensor(func(sval int64) { got = sval })
	a.Compute(&rootBacklog{excessKvsets: 5, maxLatencySec: 20}, 4, false)
	assert.NotEqual(t, int64(-1), got)
}

func TestThrottleLatencyClampedToBounds(t *testing.T) {
	a1 := newThrottleAdvisor()
	lowLatency := a1.Compute(&rootBacklog{excessKvsets: 5, maxLatencySec: 1}, 4, false)

	a2 := newThrottleAdvisor()
	clampedLatency := a2.Compute(&rootBacklog{excessKvsets: 5, maxLatencySec: minLatencySeconds}, 4, false)

	assert.Equal(t, clampedLatency, lowLatency, "sub-minimum latency clamps to the same sval as the minimum")
}

func TestThrottleHoldsMinNonZeroAfterBacklogClears(t *testing.T) {
	a := newThrottleAdvisor()
	a.Compute(&rootBacklog{excessKvsets: 5, maxLatencySec: 20}, 4, false)
	first := a.Current()
	require.Greater(t, first, int64(0))

	held := a.Compute(nil, 4, true)
	assert.Equal(t, first, held, "hold-eligible tick with no backlog keeps the minimum nonzero sval")
}

func TestThrottleDecaysToZeroWhenHoldConditionLapses(t *testing.T) {
	a := newThrottleAdvisor()
	a.Compute(&rootBacklog{excessKvsets: 5, maxLatencySec: 20}, 4, false)
	require.Greater(t, a.Current(), int64(0))

	sval := a.Compute(nil, 4, false)
	assert.Equal(t, int64(0), sval)
	assert.Equal(t, int64(0), a.Current())
}
