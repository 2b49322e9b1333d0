// Package prometheus records operational metrics with the Prometheus client.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Recorder implements the interface.
var _ driven.MetricsRecorder = (*Recorder)(nil)

const namespace = "recall"

// Recorder owns a private registry so several recorders can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	queries         *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	confidence      prometheus.Histogram
	iterations      prometheus.Histogram
	retrievedChunks prometheus.Histogram
	securityFlags   *prometheus.CounterVec
	errors          *prometheus.CounterVec
	backups         *prometheus.CounterVec
}

// New creates a recorder with its collectors registered, plus Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Answered queries by completeness.",
		}, []string{"completeness"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_confidence",
			Help:      "Confidence of synthesised answers.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_iterations",
			Help:      "Search rounds per retrieval.",
			Buckets:   []float64{1, 2, 3, 5, 8, 12, 20},
		}),
		retrievedChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_chunks",
			Help:      "Unique chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		securityFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_flags_total",
			Help:      "Chunks flagged by the content validator, by reason.",
		}, []string{"reason"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Classified errors by kind and component.",
		}, []string{"kind", "component"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Finished backups by status.",
		}, []string{"status"}),
	}

	r.registry.MustRegister(
		r.queries, r.queryDuration, r.confidence, r.iterations, r.retrievedChunks,
		r.securityFlags, r.errors, r.backups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveQuery records a finished query.
func (r *Recorder) ObserveQuery(completeness domain.Completeness, confidence float64, duration time.Duration) {
	r.queries.WithLabelValues(string(completeness)).Inc()
	r.confidence.Observe(confidence)
	r.queryDuration.Observe(duration.Seconds())
}

// ObserveRetrieval records the shape of a retrieval run.
func (r *Recorder) ObserveRetrieval(iterations, chunks int) {
	r.iterations.Observe(float64(iterations))
	r.retrievedChunks.Observe(float64(chunks))
}

// IncSecurityFlag counts a chunk flagged by the content validator.
func (r *Recorder) IncSecurityFlag(reason string) {
	r.securityFlags.WithLabelValues(reason).Inc()
}

// IncError counts a classified error.
func (r *Recorder) IncError(kind domain.ErrorKind, component string) {
	r.errors.WithLabelValues(string(kind), component).Inc()
}

// IncBackup counts a finished backup.
func (r *Recorder) IncBackup(status domain.BackupStatus) {
	r.backups.WithLabelValues(string(status)).Inc()
}

// Registry exposes the registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
