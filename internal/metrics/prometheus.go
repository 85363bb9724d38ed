package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the escrow engine
type PrometheusMetrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	RejectionsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Confirmation metrics
	ConfirmationDuration prometheus.Histogram
	PollAttempts         prometheus.Histogram
	PendingOutcomesTotal prometheus.Counter

	// State metrics
	TransitionsTotal *prometheus.CounterVec
	EscrowBalance    *prometheus.GaugeVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ComponentHealth *prometheus.GaugeVec
}

// NewPrometheusMetrics creates and registers all metrics on the registry
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fairlens_operations_total",
				Help: "Total number of escrow operations by outcome",
			},
			[]string{"operation", "outcome"},
		),

		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fairlens_rejections_total",
				Help: "Total number of rejected escrow operations by error code",
			},
			[]string{"operation", "code"},
		),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fairlens_operation_duration_seconds",
				Help:    "End-to-end duration of escrow operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ConfirmationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fairlens_confirmation_duration_seconds",
				Help:    "Time from submission to confirmation",
				Buckets: prometheus.DefBuckets,
			},
		),

		PollAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fairlens_confirmation_poll_attempts",
				Help:    "Number of confirmation polls per transaction",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),

		PendingOutcomesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fairlens_pending_outcomes_total",
				Help: "Operations whose confirmation stayed undetermined locally",
			},
		),

		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fairlens_milestone_transitions_total",
				Help: "Milestone status transitions applied",
			},
			[]string{"status"},
		),

		EscrowBalance: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fairlens_escrow_balance",
				Help: "Current escrow account balance per contract",
			},
			[]string{"contract_id"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fairlens_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fairlens_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fairlens_component_health",
				Help: "Component health (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordOperation records one escrow operation outcome
func (m *PrometheusMetrics) RecordOperation(operation, outcome string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRejection records a typed rejection
func (m *PrometheusMetrics) RecordRejection(operation, code string) {
	m.RejectionsTotal.WithLabelValues(operation, code).Inc()
}

// RecordHTTPRequest records one HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateComponentHealth sets a component health gauge
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(v)
}
