package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Compilation status label values.
const (
	StatusCompiled    = "compiled"
	StatusUnsupported = "unsupported"
	StatusRejected    = "rejected"
	StatusFailed      = "failed"
)

// Metrics provides Prometheus metrics for catalog compilation.
type Metrics struct {
	config MetricsConfig

	compilations      *prometheus.CounterVec
	compileDuration   *prometheus.HistogramVec
	resourcesDeclared *prometheus.GaugeVec
	policyViolations  *prometheus.CounterVec
	errorsByCode      *prometheus.CounterVec
	lastCompilation   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// A private registry keeps Go runtime collectors out of the textfile.
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		compilations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compilations_total",
				Help:      "Total number of catalog compilations",
			},
			[]string{"family", "status"},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Duration of catalog compilation in seconds",
				Buckets:   buckets,
			},
			[]string{"family"},
		),
		resourcesDeclared: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_declared",
				Help:      "Number of resources in the last compiled catalog by kind",
			},
			[]string{"kind"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy findings by policy and severity",
			},
			[]string{"policy", "severity"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
		lastCompilation: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_compilation_timestamp_seconds",
				Help:      "Unix time of the last successful compilation",
			},
		),
	}

	registry.MustRegister(
		m.compilations,
		m.compileDuration,
		m.resourcesDeclared,
		m.policyViolations,
		m.errorsByCode,
		m.lastCompilation,
	)

	return m, nil
}

// RecordCompilation records one compilation with its outcome and duration.
func (m *Metrics) RecordCompilation(family, status string, duration time.Duration) {
	if m.compilations == nil {
		return
	}
	m.compilations.WithLabelValues(family, status).Inc()
	m.compileDuration.WithLabelValues(family).Observe(duration.Seconds())
	if status == StatusCompiled {
		m.lastCompilation.SetToCurrentTime()
	}
}

// SetResourcesDeclared replaces the per-kind resource counts.
func (m *Metrics) SetResourcesDeclared(counts map[string]int) {
	if m.resourcesDeclared == nil {
		return
	}
	m.resourcesDeclared.Reset()
	for kind, n := range counts {
		m.resourcesDeclared.WithLabelValues(kind).Set(float64(n))
	}
}

// RecordPolicyViolation records a policy finding.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// RecordError records an error by code.
func (m *Metrics) RecordError(code string) {
	if m.errorsByCode == nil || code == "" {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
