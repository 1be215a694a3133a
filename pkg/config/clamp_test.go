package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampStoresBoundNotUserValue(t *testing.T) {
	p := Default()
	p.LoThPctX100 = 96_00 // above CSCHED_LO_TH_PCT_MAX equivalent (95%)

	clamped, notes := Clamp(p)
	assert.Equal(t, thPctHi*100, clamped.LoThPctX100)
	assert.NotEmpty(t, notes)

	found := false
	for _, n := range notes {
		if n.Field == "lo_th_pct_x100" {
			found = true
			assert.Equal(t, 96_00, n.Input)
			assert.Equal(t, thPctHi*100, n.Clamped)
		}
	}
	assert.True(t, found)
}

func TestClampLeavesInBoundsValuesUntouched(t *testing.T) {
	p := Default()
	clamped, notes := Clamp(p)
	assert.Empty(t, notes)
	assert.Equal(t, p, clamped)
}

func TestClampQThreadsFloorsAtOne(t *testing.T) {
	p := Default()
	p.QThreads[2] = 0
	clamped, notes := Clamp(p)
	assert.Equal(t, 1, clamped.QThreads[2])
	assert.NotEmpty(t, notes)
}

func TestClampGCPctBounds(t *testing.T) {
	p := Default()
	p.GCPct = 150
	clamped, _ := Clamp(p)
	assert.Equal(t, 100, clamped.GCPct)

	p.GCPct = -5
	clamped, _ = Clamp(p)
	assert.Equal(t, 0, clamped.GCPct)
}
