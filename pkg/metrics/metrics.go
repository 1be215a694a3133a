package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Samp metrics
	SampCurrentX10000 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_samp_current_x10000",
			Help: "Current space-amp estimate, fixed-point scale 10000",
		},
	)

	SampTargetX10000 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_samp_target_x10000",
			Help: "Target space-amp (live + wip), fixed-point scale 10000",
		},
	)

	SampHWMX10000 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_samp_hwm_x10000",
			Help: "Samp high water mark, fixed-point scale 10000",
		},
	)

	SampLWMX10000 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_samp_lwm_x10000",
			Help: "Samp low water mark, fixed-point scale 10000",
		},
	)

	SampReduce = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_samp_reduce",
			Help: "Whether samp_reduce is currently set (1) or not (0)",
		},
	)

	// Queue depth and throttle metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "csched_queue_depth",
			Help: "Live job count by work category queue",
		},
		[]string{"category"},
	)

	ThrottleSensorValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_throttle_sensor_value",
			Help: "Most recently computed throttle sensor value",
		},
	)

	// Job accounting
	JobsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csched_jobs_started_total",
			Help: "Total number of jobs submitted by work category",
		},
		[]string{"category"},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csched_jobs_completed_total",
			Help: "Total number of jobs completed by work category and outcome",
		},
		[]string{"category", "outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "csched_job_duration_seconds",
			Help:    "Action-kernel execution duration in seconds by category",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"category"},
	)

	MonitorIterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "csched_monitor_iteration_duration_seconds",
			Help:    "Time taken by one monitor loop iteration",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Tree-shape auditor
	ShapeLongestRoot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_shape_longest_root_kvsets",
			Help: "Longest observed root kvset count across monitored trees",
		},
	)

	ShapeLongestLeaf = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_shape_longest_leaf_kvsets",
			Help: "Longest observed leaf kvset count across monitored trees",
		},
	)

	ShapeLargestLeafPcap = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_shape_largest_leaf_pcap_x100",
			Help: "Largest observed leaf percent-capacity across monitored trees, x100",
		},
	)

	ShapeBadTransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "csched_shape_bad_transitions_total",
			Help: "Total number of bad-shape transitions flagged by the auditor",
		},
	)

	MonitoredTrees = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "csched_monitored_trees",
			Help: "Number of trees currently on the monitored list",
		},
	)
)

func init() {
	prometheus.MustRegister(SampCurrentX10000)
	prometheus.MustRegister(SampTargetX10000)
	prometheus.MustRegister(SampHWMX10000)
	prometheus.MustRegister(SampLWMX10000)
	prometheus.MustRegister(SampReduce)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(ThrottleSensorValue)
	prometheus.MustRegister(JobsStartedTotal)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(MonitorIterationDuration)
	prometheus.MustRegister(ShapeLongestRoot)
	prometheus.MustRegister(ShapeLongestLeaf)
	prometheus.MustRegister(ShapeLargestLeafPcap)
	prometheus.MustRegister(ShapeBadTransitionsTotal)
	prometheus.MustRegister(MonitoredTrees)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
