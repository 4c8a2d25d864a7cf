package report

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/example/paygate/tools/flowcheck/internal/workflow"
)

// metricNamespace prefixes every exported metric.
const metricNamespace = "flowcheck"

// Exporter publishes run metrics via an HTTP endpoint for Prometheus to
// scrape. Useful when the tool runs on a schedule and a dashboard tracks
// verdicts over time.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Exporter struct {
	mu sync.RWMutex

	// Configuration
	config ExporterConfig

	// Prometheus registry
	registry *prometheus.Registry

	// Metrics
	runsTotal           *prometheus.CounterVec
	stepsTotal          *prometheus.CounterVec
	stepDurationSeconds *prometheus.HistogramVec
	lastRunSuccess      prometheus.Gauge
	lastRunDuration     prometheus.Gauge

	// HTTP server
	server *http.Server
	ln     net.Listener

	// State tracking
	running bool

	// Error handling
	lastError error
}

// ExporterConfig holds configuration for the Prometheus exporter.
type ExporterConfig struct {
	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int

	// Path is the URL path for the metrics endpoint.
	// Default: /metrics
	Path string

	// HistogramBuckets are the histogram buckets for step duration.
	// Default: prometheus.DefBuckets
	HistogramBuckets []float64
}

// DefaultExporterConfig returns default configuration.
func DefaultExporterConfig() ExporterConfig {
	return ExporterConfig{
		Port:             9090,
		Path:             "/metrics",
		HistogramBuckets: prometheus.DefBuckets,
	}
}

// NewExporter creates a new Prometheus exporter.
func NewExporter(config ExporterConfig) *Exporter {
	if config.Port == 0 {
		config.Port = 9090
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = prometheus.DefBuckets
	}

	// Own registry to avoid conflicts with default metrics
	registry := prometheus.NewRegistry()

	exporter := &Exporter{
		config:   config,
		registry: registry,
	}

	exporter.initMetrics()

	return exporter
}

// initMetrics initializes all Prometheus metrics.
func (e *Exporter) initMetrics() {
	e.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "runs_total",
			Help:      "Total workflow runs by verdict.",
		},
		[]string{"verdict"},
	)

	e.stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "steps_total",
			Help:      "Total step results by step name and outcome.",
		},
		[]string{"step", "outcome"},
	)

	e.stepDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of dispatched workflow steps in seconds.",
			Buckets:   e.config.HistogramBuckets,
		},
		[]string{"step"},
	)

	e.lastRunSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "last_run_success",
			Help:      "Whether the most recent run passed (1) or failed (0).",
		},
	)

	e.lastRunDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall-clock duration of the most recent run in seconds.",
		},
	)

	e.registry.MustRegister(
		e.runsTotal,
		e.stepsTotal,
		e.stepDurationSeconds,
		e.lastRunSuccess,
		e.lastRunDuration,
	)
}

// Start starts the HTTP server for the metrics endpoint.
func (e *Exporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	addr := fmt.Sprintf(":%d", e.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("starting Prometheus exporter: %w", err)
	}
	e.ln = ln

	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Store error for retrieval via LastError()
			e.mu.Lock()
			e.lastError = err
			e.mu.Unlock()
		}
	}()

	e.running = true
	return nil
}

// Stop stops the HTTP server.
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}

	e.running = false

	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

// RecordStep records a single step result.
func (e *Exporter) RecordStep(step workflow.StepReport) {
	e.stepsTotal.WithLabelValues(step.StepName, string(step.Outcome)).Inc()

	// Skipped steps never ran, so they carry no meaningful duration.
	if step.Outcome != workflow.OutcomeSkipped {
		e.stepDurationSeconds.WithLabelValues(step.StepName).Observe(step.Duration.Seconds())
	}
}

// RecordRun records a completed run.
func (e *Exporter) RecordRun(report *workflow.Report) {
	verdict := "pass"
	success := 1.0
	if !report.Success {
		verdict = "fail"
		success = 0
	}

	e.runsTotal.WithLabelValues(verdict).Inc()
	e.lastRunSuccess.Set(success)
	e.lastRunDuration.Set(report.Duration.Seconds())
}

// GetPort returns the configured port.
func (e *Exporter) GetPort() int {
	return e.config.Port
}

// GetPath returns the configured path.
func (e *Exporter) GetPath() string {
	return e.config.Path
}

// GetAddress returns the full address for the metrics endpoint.
func (e *Exporter) GetAddress() string {
	return fmt.Sprintf("http://localhost:%d%s", e.config.Port, e.config.Path)
}

// IsRunning returns whether the exporter is running.
func (e *Exporter) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastError returns the last error from the HTTP server, if any.
func (e *Exporter) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

// Registry returns the Prometheus registry (for testing).
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Gather collects all metrics from the registry (for testing).
// Returns metric families for inspection.
func (e *Exporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}
