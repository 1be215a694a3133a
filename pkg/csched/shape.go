package csched

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/metrics"
)

// Bad-shape thresholds.
const (
	badShapeRootLen    = 48
	badShapeLeafLen    = 20
	badShapeLeafPcapX1 = 140 // percent, unscaled
)

// ShapeSummary is a snapshot of the auditor's running observations,
// exposed for status reporting.
type ShapeSummary struct {
	LongestRoot     int
	LongestLeaf     int
	LargestLeafPcap int64 // percent x100
	BadShape        bool
}

// shapeAuditor tracks the longest root, longest leaf, and largest
// leaf pcap across monitored trees, and trims trailing empty leaves.
type shapeAuditor struct {
	mu sync.Mutex

	longestRoot     int
	longestLeaf     int
	largestLeafPcap int64
	wasBad          bool

	badTransitions atomic.Uint64
}

func newShapeAuditor() *shapeAuditor {
	return &shapeAuditor{}
}

// Audit recomputes the shape summary across every monitored tree and
// records a bad-shape transition if thresholds are newly exceeded.
func (a *shapeAuditor) Audit(trees []*cn.Tree) ShapeSummary {
	var longestRoot, longestLeaf int
	var largestPcap int64

	for _, t := range trees {
		root := t.Root()
		if n := root.Stats().KvsetCount; n > longestRoot {
			longestRoot = n
		}
		splitSizeBytes := t.Params.SplitSizeMiB << 20
		for _, leaf := range t.Leaves() {
			stats := leaf.Stats()
			if stats.KvsetCount > longestLeaf {
				longestLeaf = stats.KvsetCount
			}
			if splitSizeBytes > 0 {
				pcap := stats.Clen * 10000 / splitSizeBytes
				if pcap > largestPcap {
					largestPcap = pcap
				}
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.longestRoot = longestRoot
	a.longestLeaf = longestLeaf
	a.largestLeafPcap = largestPcap

	bad := longestRoot > badShapeRootLen || longestLeaf > badShapeLeafLen || largestPcap > badShapeLeafPcapX1*100
	if bad && !a.wasBad {
		a.badTransitions.Add(1)
		metrics.ShapeBadTransitionsTotal.Inc()
	}
	a.wasBad = bad

	metrics.ShapeLongestRoot.Set(float64(longestRoot))
	metrics.ShapeLongestLeaf.Set(float64(longestLeaf))
	metrics.ShapeLargestLeafPcap.Set(float64(largestPcap))
	metrics.MonitoredTrees.Set(float64(len(trees)))

	return ShapeSummary{
		LongestRoot:     longestRoot,
		LongestLeaf:     longestLeaf,
		LargestLeafPcap: largestPcap,
		BadShape:        bad,
	}
}

// Trim removes a trailing empty leaf from the given tree if it has
// one, under the tree's own write lock.
func (a *shapeAuditor) Trim(st *spTree) (bool, error) {
	return st.tree.TrimTrailingEmpty(st.routes)
}

func (a *shapeAuditor) Snapshot() ShapeSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ShapeSummary{
		LongestRoot:     a.longestRoot,
		LongestLeaf:     a.longestLeaf,
		LargestLeafPcap: a.largestLeafPcap,
		BadShape:        a.wasBad,
	}
}

func (a *shapeAuditor) BadTransitions() uint64 { return a.badTransitions.Load() }
