// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConsultationsTotal counts submissions by consultation type and outcome.
	ConsultationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_total",
			Help: "Consultation submissions by outcome",
		},
		[]string{"type", "status"},
	)

	// ConsultationDuration tracks how long the backend took to produce a reply.
	ConsultationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consultation_duration_seconds",
			Help:    "Time from submission to persisted reply",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type", "status"},
	)

	// FeedbackTotal counts feedback writes.
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultation_feedback_total",
			Help: "Feedback writes by value and outcome",
		},
		[]string{"value", "status"},
	)

	// UploadsTotal counts files offered to upload collectors.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Files offered to upload collectors by outcome",
		},
		[]string{"outcome"},
	)

	// AnalysesTotal counts simulated analysis runs by bundle.
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_total",
			Help: "Simulated document analyses by bundle",
		},
		[]string{"bundle"},
	)

	// WorkspacesActive tracks open consultation workspaces.
	WorkspacesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workspaces_active",
			Help: "Number of open consultation workspaces",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordConsultation records one submission outcome.
func RecordConsultation(kind, status string, duration float64) {
	ConsultationsTotal.WithLabelValues(kind, status).Inc()
	ConsultationDuration.WithLabelValues(kind, status).Observe(duration)
}

// RecordFeedback records one feedback write.
func RecordFeedback(value, status string) {
	FeedbackTotal.WithLabelValues(value, status).Inc()
}

// RecordUploads adds n files with the given outcome.
func RecordUploads(outcome string, n int) {
	UploadsTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordAnalysis records a simulated analysis run.
func RecordAnalysis(bundle string) {
	AnalysesTotal.WithLabelValues(bundle).Inc()
}
