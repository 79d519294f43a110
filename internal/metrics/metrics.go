// Package metrics exposes Prometheus collectors for the lead pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineRunDurationSeconds prometheus.Histogram
	searchesTotal              *prometheus.CounterVec
	cardsTotal                 *prometheus.CounterVec
	enrichmentsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_pipeline_runs_total",
				Help: "Total number of pipeline runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadgen_pipeline_run_duration_seconds",
				Help:    "Histogram of end-to-end pipeline run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_searches_total",
				Help: "Total number of search queries executed, labeled by status.",
			},
			[]string{"status"},
		)

		cardsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_cards_total",
				Help: "Total number of cards handled at ingestion, labeled by disposition.",
			},
			[]string{"disposition"},
		)

		enrichmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgen_enrichments_total",
				Help: "Total number of enrichment attempts, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records the outcome and duration of a pipeline run.
func ObserveRun(outcome string, duration time.Duration) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
	pipelineRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveSearch increments the search counter for the given status.
func ObserveSearch(status string) {
	searchesTotal.WithLabelValues(status).Inc()
}

// ObserveCard increments the card counter for the given disposition.
// Dispositions are "persisted", "duplicate", "filtered" and "error".
func ObserveCard(disposition string) {
	cardsTotal.WithLabelValues(disposition).Inc()
}

// ObserveEnrichment increments the enrichment counter for the given status.
func ObserveEnrichment(status string) {
	enrichmentsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
