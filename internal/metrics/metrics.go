package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outcome 标签取值
const (
	OutcomeEmitted     = "emitted"
	OutcomeSkipped     = "skipped"
	OutcomeWriteFailed = "write_failed"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distill_requests_total",
			Help: "Total number of expanded demonstration requests by outcome",
		},
		[]string{"outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distill_cache_lookups_total",
			Help: "Demonstration cache lookups by result",
		},
		[]string{"result"},
	)

	TeacherCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distill_teacher_calls_total",
			Help: "Teacher model invocations for demonstrations by status",
		},
		[]string{"status"},
	)

	TeacherLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distill_teacher_latency_seconds",
			Help:    "Teacher model call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	SeedFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distill_seed_failures_total",
			Help: "Model-backed seed generations that failed and were skipped",
		},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distill_active_runs",
			Help: "Number of pipeline runs in progress",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distill_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "distill_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)
)
