package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	// Class 0's ceiling admits all ten jobs at once: Submit refuses work
	// beyond qjobs_max rather than queueing it.
	p := NewPool("t", []int{10, 2}, nil)
	defer p.Destroy()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		ok := p.Submit(0, func() {
			defer wg.Done()
			n.Add(1)
		})
		require.True(t, ok)
	}
	wg.Wait()
	assert.EqualValues(t, 10, n.Load())
}

func TestPoolQFullAtCeiling(t *testing.T) {
	release := make(chan struct{})
	p := NewPool("t", []int{1}, nil)
	defer func() {
		close(release)
		p.Destroy()
	}()

	require.True(t, p.Submit(0, func() { <-release }))
	require.Eventually(t, func() bool { return p.QFull(0) }, time.Second, time.Millisecond)
	assert.False(t, p.Submit(0, func() {}))
}

func TestPoolSubmitUnknownClassFails(t *testing.T) {
	p := NewPool("t", []int{1}, nil)
	defer p.Destroy()
	assert.False(t, p.Submit(5, func() {}))
}

func TestPoolResizeRaisesCeiling(t *testing.T) {
	p := NewPool("t", []int{1}, nil)
	defer p.Destroy()
	require.NoError(t, p.Resize(0, 4))
	assert.Equal(t, 4, p.qjobsMax[0])
}

func TestPoolDestroyWaitsForInFlight(t *testing.T) {
	p := NewPool("t", []int{1}, nil)
	var done atomic.Bool
	require.True(t, p.Submit(0, func() {
		time.Sleep(10 * time.Millisecond)
		done.Store(true)
	}))
	p.Destroy()
	assert.True(t, done.Load())
}
