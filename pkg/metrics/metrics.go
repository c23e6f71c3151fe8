// Package metrics defines the Prometheus metric collectors used by the
// indexer, the loaders and the comparison driver, and exposes an HTTP
// handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	PostOperationsTotal   *prometheus.CounterVec
	PostOperationDuration *prometheus.HistogramVec
	TreeHeight            *prometheus.GaugeVec
	TreeNodes             *prometheus.GaugeVec
	TreapRotationsTotal   prometheus.Counter
	IngestRecordsTotal    *prometheus.CounterVec
	EventsConsumedTotal   *prometheus.CounterVec
	ComparisonRunsTotal   *prometheus.CounterVec
	ReportCacheHitsTotal  prometheus.Counter
	ReportCacheMissTotal  prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		PostOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "post_operations_total",
				Help: "Tree operations by engine, operation and result (ok, miss, error).",
			},
			[]string{"engine", "op", "result"},
		),
		PostOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "post_operation_duration_seconds",
				Help:    "Tree operation latency in seconds.",
				Buckets: []float64{1e-7, 1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 0.1, 1},
			},
			[]string{"engine", "op"},
		),
		TreeHeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tree_height",
				Help: "Height of the tree as of the last stats refresh.",
			},
			[]string{"engine"},
		),
		TreeNodes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tree_nodes",
				Help: "Number of posts held by the tree.",
			},
			[]string{"engine"},
		),
		TreapRotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "treap_rotations_total",
				Help: "Total treap rotations performed.",
			},
		),
		IngestRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Dataset records by engine and status (loaded, skipped, rejected).",
			},
			[]string{"engine", "status"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "post_events_consumed_total",
				Help: "Post events consumed from Kafka by operation and result.",
			},
			[]string{"op", "result"},
		),
		ComparisonRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comparison_runs_total",
				Help: "Comparison runs by status (ok, error, cached).",
			},
			[]string{"status"},
		),
		ReportCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "report_cache_hits_total",
				Help: "Total number of report cache hits.",
			},
		),
		ReportCacheMissTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "report_cache_misses_total",
				Help: "Total number of report cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PostOperationsTotal,
		m.PostOperationDuration,
		m.TreeHeight,
		m.TreeNodes,
		m.TreapRotationsTotal,
		m.IngestRecordsTotal,
		m.EventsConsumedTotal,
		m.ComparisonRunsTotal,
		m.ReportCacheHitsTotal,
		m.ReportCacheMissTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
