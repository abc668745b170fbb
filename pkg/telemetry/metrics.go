package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for cascade runs. A Metrics created with
// metrics disabled, or a nil *Metrics, accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	workflowsExecuted *prometheus.CounterVec
	workflowsSkipped  *prometheus.CounterVec
	workflowDuration  *prometheus.HistogramVec

	configWarnings prometheus.Counter
	errorsByCode   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		workflowsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_executed_total",
				Help:      "Total number of workflow executions",
			},
			[]string{"outcome"},
		),
		workflowsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_skipped_total",
				Help:      "Total number of workflows skipped",
			},
			[]string{"reason"},
		),
		workflowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Duration of workflow executions in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),

		configWarnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_warnings_total",
				Help:      "Total number of configuration source warnings",
			},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.workflowsExecuted,
		m.workflowsSkipped,
		m.workflowDuration,
		m.configWarnings,
		m.errorsByCode,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordRunCompleted records a finished run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordWorkflowExecuted records one executor invocation.
func (m *Metrics) RecordWorkflowExecuted(outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.workflowsExecuted.WithLabelValues(outcome).Inc()
	m.workflowDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordWorkflowSkipped records a workflow that did not need to run.
func (m *Metrics) RecordWorkflowSkipped(reason string) {
	if !m.enabled() {
		return
	}
	m.workflowsSkipped.WithLabelValues(reason).Inc()
}

// RecordConfigWarnings adds n configuration warnings.
func (m *Metrics) RecordConfigWarnings(n int) {
	if !m.enabled() || n <= 0 {
		return
	}
	m.configWarnings.Add(float64(n))
}

// RecordError records an error by code.
func (m *Metrics) RecordError(code string) {
	if !m.enabled() {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes all metrics in the Prometheus text format to the
// configured path, for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile() error {
	if !m.enabled() || m.config.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Timer measures elapsed time for an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
