// Package metrics exposes Prometheus instrumentation for the ingestion and
// retrieval pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure Metrics implements the interface.
var _ driven.Metrics = (*Metrics)(nil)

const namespace = "legalvault"

// Metrics holds every collector used by the pipeline.
type Metrics struct {
	DocumentsIngested *prometheus.CounterVec
	StageFailures     *prometheus.CounterVec
	IngestDuration    prometheus.Histogram
	EmbeddingRequests *prometheus.CounterVec
	EmbeddingLatency  *prometheus.HistogramVec
	RetrievalResults  prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		DocumentsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Total ingestion attempts by outcome.",
			},
			[]string{"status"},
		),
		StageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_stage_failures_total",
				Help:      "Total document failures by pipeline stage.",
			},
			[]string{"stage"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Wall time of a single document ingestion.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		EmbeddingRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_requests_total",
				Help:      "Embedding service calls by operation and status.",
			},
			[]string{"op", "status"},
		),
		EmbeddingLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_latency_seconds",
				Help:      "Embedding service call latency.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
			},
			[]string{"op"},
		),
		RetrievalResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_results",
				Help:      "Reference blocks returned per retrieval.",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.DocumentsIngested,
		m.StageFailures,
		m.IngestDuration,
		m.EmbeddingRequests,
		m.EmbeddingLatency,
		m.RetrievalResults,
	)
	return m
}

// ObserveIngest records one finished ingestion attempt.
func (m *Metrics) ObserveIngest(status domain.IngestStatus, duration time.Duration) {
	m.DocumentsIngested.WithLabelValues(string(status)).Inc()
	m.IngestDuration.Observe(duration.Seconds())
}

// ObserveStageFailure records a failure at the given stage.
func (m *Metrics) ObserveStageFailure(stage domain.Stage) {
	m.StageFailures.WithLabelValues(string(stage)).Inc()
}

// ObserveEmbedding records one embedding call.
func (m *Metrics) ObserveEmbedding(op string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EmbeddingRequests.WithLabelValues(op, status).Inc()
	m.EmbeddingLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveRetrieval records the number of blocks returned for a query.
func (m *Metrics) ObserveRetrieval(results int) {
	m.RetrievalResults.Observe(float64(results))
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
