// Package metrics defines the Prometheus collectors used across the platform
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ForecastsTotal       *prometheus.CounterVec
	DocumentsIngested    *prometheus.CounterVec
	ChunksIngestedTotal  prometheus.Counter
	RankResultsCount     prometheus.Histogram
	ChatMessagesTotal    *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	UpstreamFailures     *prometheus.CounterVec
	UpstreamLatency      *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ForecastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esg_forecasts_total",
				Help: "Forecasts computed by resulting trend (increasing, decreasing, stable, error).",
			},
			[]string{"trend"},
		),
		DocumentsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esg_documents_ingested_total",
				Help: "Documents ingested by source (api, upload, kafka, rpc).",
			},
			[]string{"source"},
		),
		ChunksIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "esg_chunks_ingested_total",
				Help: "Total chunks produced by ingestion.",
			},
		),
		RankResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "esg_rank_results_count",
				Help:    "Number of chunks with a non-zero score per ranking.",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
			},
		),
		ChatMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esg_chat_messages_total",
				Help: "Chat turns by outcome (answered, no_context, fallback).",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of prediction cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of prediction cache misses.",
			},
		),
		UpstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_failures_total",
				Help: "Failed calls to external collaborators (inference, extractor).",
			},
			[]string{"upstream"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_request_duration_seconds",
				Help:    "Latency of calls to external collaborators.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"upstream"},
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
		m.ForecastsTotal,
		m.DocumentsIngested,
		m.ChunksIngestedTotal,
		m.RankResultsCount,
		m.ChatMessagesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.UpstreamFailures,
		m.UpstreamLatency,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
