// Package metrics exposes the Prometheus instrumentation of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline Metrics
	DatasetLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmetric_dataset_loads_total",
			Help: "Total number of dataset loads from the configured source",
		},
		[]string{"source", "result"},
	)

	DatasetLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openmetric_dataset_load_duration_seconds",
			Help:    "Duration of dataset loads in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	Recomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmetric_recomputes_total",
			Help: "Total number of metrics pipeline runs",
		},
		[]string{"window", "result"},
	)

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openmetric_recompute_duration_seconds",
			Help:    "Duration of the filter, aggregate and assemble pipeline",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// Memo cache Metrics
	MemoCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openmetric_memo_cache_hits_total",
			Help: "Total number of memoized metric results served",
		},
	)

	MemoCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openmetric_memo_cache_misses_total",
			Help: "Total number of memo cache misses",
		},
	)

	MemoCacheExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openmetric_memo_cache_expired_total",
			Help: "Total number of memo cache entries removed by cleanup",
		},
	)

	// HTTP Metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmetric_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openmetric_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openmetric_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	SuspiciousRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openmetric_suspicious_requests_total",
			Help: "Total number of requests matching known attack patterns",
		},
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openmetric_ws_connections_active",
			Help: "Current number of open streaming connections",
		},
	)

	WSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmetric_ws_messages_total",
			Help: "Total number of streaming messages by kind",
		},
		[]string{"kind"}, // "request", "response", "error", "ping"
	)

	// Ingest Metrics
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmetric_ingest_messages_total",
			Help: "Total number of ingest messages handled",
		},
		[]string{"kind", "result"}, // result: "stored", "dropped", "requeued"
	)
)

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// RecordDatasetLoad records one source read.
func RecordDatasetLoad(source string, started time.Time, err error) {
	DatasetLoads.WithLabelValues(source, result(err)).Inc()
	DatasetLoadDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
}

// RecordRecompute records one pipeline run.
func RecordRecompute(window string, started time.Time, err error) {
	Recomputes.WithLabelValues(window, result(err)).Inc()
	RecomputeDuration.Observe(time.Since(started).Seconds())
}

// RecordHTTPRequest records a finished HTTP request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
