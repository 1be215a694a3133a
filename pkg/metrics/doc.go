/*
Package metrics provides Prometheus metrics collection and exposition for Warren.

The metrics package defines and registers all Warren metrics using the Prometheus
client library, providing observability into cluster health, resource utilization,
operation latency, and system performance. Metrics are exposed via HTTP endpoint
for scraping by Prometheus servers.

# Architecture

Warren's metrics system follows Prometheus best practices with comprehensive
instrumentation across all components:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (node count)         │          │
	│  │  Counter: Monotonic increases (requests)    │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  │  Summary: Quantiles (percentiles)           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Samp: current, target, lwm, hwm, reduce    │          │
	│  │  Queues: depth per category, throttle value │          │
	│  │  Jobs: started, completed, duration         │          │
	│  │  Monitor: iteration duration, tree count    │          │
	│  │  Shape: longest root/leaf, pcap, transitions│          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics every 15s               │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: samp estimate, queue depth, monitored trees
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: jobs started, jobs completed, bad-shape transitions
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: job duration, monitor iteration duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Samp Metrics (fixed-point, scale 10000):

csched_samp_current_x10000:
  - Type: Gauge
  - Description: Current space-amp estimate

csched_samp_target_x10000:
  - Type: Gauge
  - Description: Target space-amp, counting work in progress

csched_samp_hwm_x10000, csched_samp_lwm_x10000:
  - Type: Gauge
  - Description: High and low water marks derived from the configuration

csched_samp_reduce:
  - Type: Gauge
  - Description: 1 while samp reduction is set, else 0

Queue and Throttle Metrics:

csched_queue_depth{category}:
  - Type: Gauge
  - Description: Live job count of each work category's queue
  - Labels: category

csched_throttle_sensor_value:
  - Type: Gauge
  - Description: Most recently computed throttle sensor value

Job Metrics:

csched_jobs_started_total{category}:
  - Type: Counter
  - Description: Jobs submitted, by work category

csched_jobs_completed_total{category, outcome}:
  - Type: Counter
  - Description: Jobs completed, by work category and outcome ("ok" or "error")

csched_job_duration_seconds{category}:
  - Type: Histogram
  - Description: Action-kernel duration by category; registered, but the
    scheduler does not observe it
  - Buckets: Default Prometheus buckets

csched_monitor_iteration_duration_seconds:
  - Type: Histogram
  - Description: Duration of one monitor loop iteration
  - Buckets: Default Prometheus buckets

Tree-Shape Metrics:

csched_shape_longest_root_kvsets, csched_shape_longest_leaf_kvsets:
  - Type: Gauge
  - Description: Longest root and leaf kvset counts across monitored trees

csched_shape_largest_leaf_pcap_x100:
  - Type: Gauge
  - Description: Largest leaf percent-capacity, x100 (10000 is 100%)

csched_shape_bad_transitions_total:
  - Type: Counter
  - Description: Bad-shape transitions flagged by the auditor

csched_monitored_trees:
  - Type: Gauge
  - Description: Number of trees on the monitored list

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/cn-csched/pkg/metrics"

	// Set absolute value
	metrics.SampCurrentX10000.Set(float64(snap.CurrX10000))
	metrics.QueueDepth.WithLabelValues(c.String()).Set(float64(depth))

	// Increment/decrement
	metrics.MonitoredTrees.Inc()
	metrics.MonitoredTrees.Dec()

Updating Counter Metrics:

	// Increment by 1
	metrics.JobsStartedTotal.WithLabelValues(item.Category.String()).Inc()

	// Add arbitrary value
	metrics.JobsCompletedTotal.WithLabelValues(item.Category.String(), "ok").Add(1)

Recording Histogram Observations:

	// Direct observation
	metrics.MonitorIterationDuration.Observe(0.002) // 2ms

	// Using Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.MonitorIterationDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.JobDuration, item.Category.String())

Complete Example:

	package main

	import (
		"net/http"
		"time"
		"github.com/cuemby/cn-csched/pkg/metrics"
	)

	func main() {
		// Update a gauge
		metrics.MonitoredTrees.Set(1)

		// Time an operation
		timer := metrics.NewTimer()
		runIteration()
		timer.ObserveDuration(metrics.MonitorIterationDuration)

		// Expose metrics endpoint
		http.Handle("/metrics", metrics.Handler())
		http.ListenAndServe(":9090", nil)
	}

	func runIteration() {
		// One unit of monitored work
		time.Sleep(100 * time.Millisecond)
	}

# Integration Points

This package integrates with:

  - pkg/csched: Sets the samp, queue, throttle, job, monitor and shape metrics
  - cmd/csched-demo: Serves Handler() on /metrics
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (IDs, timestamps)
  - Document label values in metric description
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any Warren package
  - Thread-safe concurrent updates
  - No initialization required by callers

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Labels: +100ns per label value
  - Negligible impact on hot path

Memory Usage:
  - Per metric: ~1KB baseline
  - Per label combination: ~100 bytes
  - Histogram buckets: ~50 bytes each
  - Total: ~1-5MB for typical Warren cluster

Scrape Performance:
  - Metrics gathering: ~1-5ms for full scrape
  - HTTP response: ~10ms for typical metric set
  - Recommendation: Scrape interval ≥ 15s
  - Concurrent scrapes: Safe (read-only)

Cardinality Management:
  - Low cardinality: role, status, state (< 10 values)
  - Medium cardinality: method, host (< 100 values)
  - Avoid: task IDs, timestamps (unbounded)
  - Best practice: Aggregate high-cardinality in logs

# Troubleshooting

Common Issues:

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify metric variable is exported

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Using IDs or unbounded values as labels
  - Check: Label cardinality (count unique combinations)
  - Solution: Remove high-cardinality labels, aggregate differently

Histogram Bucket Mismatch:
  - Symptom: No data in desired percentiles
  - Cause: Buckets don't cover observed value range
  - Check: Histogram sum / count for average
  - Solution: Customize buckets for value range

Stale Metrics:
  - Symptom: Metrics not updating
  - Cause: Code not calling metric update methods
  - Check: Add logging around metric updates
  - Solution: Instrument code paths correctly

# Monitoring

Prometheus Queries (PromQL):

Space Amplification:
  - Current estimate: csched_samp_current_x10000
  - Thresholds: csched_samp_lwm_x10000, csched_samp_hwm_x10000
  - Reduction active: csched_samp_reduce == 1

Jobs and Queues:
  - Start rate: sum by (category) (rate(csched_jobs_started_total[1m]))
  - Error rate: sum by (category) (rate(csched_jobs_completed_total{outcome="error"}[5m]))
  - Queue depth: csched_queue_depth
  - p95 iteration time: histogram_quantile(0.95, csched_monitor_iteration_duration_seconds_bucket)

Tree Shape:
  - Longest root run: csched_shape_longest_root_kvsets
  - Bad-shape transitions: increase(csched_shape_bad_transitions_total[10m])

# Alerting Rules

Recommended Prometheus alerts:

Job Failures:
  - Alert: sum(rate(csched_jobs_completed_total{outcome="error"}[5m])) > 0
  - Description: Action kernels are returning errors
  - Action: Check the log for "csched: job failed"

Space Amplification Above High Water Mark:
  - Alert: csched_samp_current_x10000 > csched_samp_hwm_x10000
  - Description: Estimated space amplification exceeds the high water mark
  - Action: Check queue depths and the throttle sensor value

# Grafana Dashboards

Recommended dashboard panels:

  - Time series: samp current, lwm and hwm
  - Time series: queue depth by category
  - Time series: jobs started and completed by category
  - Single stat: monitored trees
  - Time series: longest root and leaf kvset counts

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
