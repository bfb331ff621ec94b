// Package metrics provides Prometheus metrics for the screening engine.
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the engine's Prometheus collectors.
type Metrics struct {
	screeningsTotal      *prometheus.CounterVec
	classifierRequests   *prometheus.CounterVec
	classifierDuration   *prometheus.HistogramVec
	evidenceOperations   *prometheus.CounterVec
	pipelineSubmissions  *prometheus.CounterVec
	sessionLoads         *prometheus.CounterVec
	previewHandles       prometheus.Gauge
	normalizationRejects prometheus.Counter
}

// New creates the engine metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.screeningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tayyib_screenings_total",
			Help: "Total number of product assessments produced, by initial overall status",
		},
		[]string{"overall_status"},
	)

	m.classifierRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tayyib_classifier_requests_total",
			Help: "Total number of classifier calls",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	m.classifierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "tayyib_classifier_duration_seconds",
			Help: "Time taken by classifier calls",
			// 250ms to ~2m
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"provider"},
	)

	m.evidenceOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tayyib_evidence_operations_total",
			Help: "Total number of evidence attach and remove operations",
		},
		[]string{"operation", "result"},
	)

	m.pipelineSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tayyib_pipeline_submissions_total",
			Help: "Total number of assessments handed to the certification pipeline",
		},
		[]string{"stage", "priority"},
	)

	m.sessionLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tayyib_session_loads_total",
			Help: "Total number of session cache loads by outcome",
		},
		[]string{"result"}, // hit, miss, stale, corrupt
	)

	m.previewHandles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tayyib_evidence_preview_handles",
			Help: "Number of evidence preview handles currently open",
		},
	)

	m.normalizationRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tayyib_normalization_rejects_total",
			Help: "Total number of classifier records rejected during normalization",
		},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.screeningsTotal,
		m.classifierRequests,
		m.classifierDuration,
		m.evidenceOperations,
		m.pipelineSubmissions,
		m.sessionLoads,
		m.previewHandles,
		m.normalizationRejects,
	}
}

// RecordScreening counts a newly assembled assessment.
func (m *Metrics) RecordScreening(overallStatus string) {
	if m == nil {
		return
	}
	m.screeningsTotal.WithLabelValues(overallStatus).Inc()
}

// RecordClassifier counts a classifier call and observes its latency.
func (m *Metrics) RecordClassifier(provider string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.classifierRequests.WithLabelValues(provider, status).Inc()
	m.classifierDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordEvidence counts an evidence ledger operation.
func (m *Metrics) RecordEvidence(operation, result string) {
	if m == nil {
		return
	}
	m.evidenceOperations.WithLabelValues(operation, result).Inc()
}

// RecordSubmission counts a pipeline handoff.
func (m *Metrics) RecordSubmission(stage, priority string) {
	if m == nil {
		return
	}
	m.pipelineSubmissions.WithLabelValues(stage, priority).Inc()
}

// RecordSessionLoad counts a session cache load outcome.
func (m *Metrics) RecordSessionLoad(result string) {
	if m == nil {
		return
	}
	m.sessionLoads.WithLabelValues(result).Inc()
}

// SetPreviewHandles reports the number of open preview handles.
func (m *Metrics) SetPreviewHandles(n int) {
	if m == nil {
		return
	}
	m.previewHandles.Set(float64(n))
}

// RecordNormalizationRejects counts classifier records dropped as malformed.
func (m *Metrics) RecordNormalizationRejects(n int) {
	if m == nil || n == 0 {
		return
	}
	m.normalizationRejects.Add(float64(n))
}

// Handler serves the metrics gathered by reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
