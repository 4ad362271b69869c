// Package metrics records Canopy file and lift activity as Prometheus
// metrics.
//
// Canopy runs as a short-lived command, so metrics live in a private
// registry and are written to a node_exporter textfile at exit rather than
// served over HTTP.
//
// # Basic Usage
//
//	m := metrics.New()
//	start := time.Now()
//	rec, diags, err := adat.ReadFile(path, opts)
//	m.ObserveRead(time.Since(start), diags, err)
//	...
//	if err := m.WriteTextfile("/var/lib/node_exporter/canopy.prom"); err != nil {
//	    logger.Warn("failed to write metrics", zap.Error(err))
//	}
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/errors"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the Canopy collectors and the registry they belong to.
// Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	FilesRead         *prometheus.CounterVec
	FilesWritten      *prometheus.CounterVec
	Diagnostics       *prometheus.CounterVec
	Lifts             *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// FilesRead counts ADAT and annotations files read.
		// Labels: result (success/failure)
		FilesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_files_read_total",
				Help: "Total number of files read",
			},
			[]string{"result"},
		),

		// FilesWritten counts ADAT and export files written.
		// Labels: result (success/failure)
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_files_written_total",
				Help: "Total number of files written",
			},
			[]string{"result"},
		),

		// Diagnostics counts reader and annotations warnings.
		// Labels: kind (missing_row_metadata, legacy_seqid, ...)
		Diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_diagnostics_total",
				Help: "Total number of diagnostics reported while reading",
			},
			[]string{"kind"},
		),

		// Lifts counts lift attempts.
		// Labels: result (success/failure)
		Lifts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_lift_total",
				Help: "Total number of signal space lifts",
			},
			[]string{"result"},
		),

		// OperationDuration tracks how long each operation takes.
		// Labels: operation (read/write/lift/export)
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "canopy_operation_duration_seconds",
				Help: "Operation duration in seconds",
				Buckets: []float64{
					0.001, // 1ms - small files
					0.01,  // 10ms
					0.1,   // 100ms - typical plate
					1,     // 1s - large studies
					10,    // 10s
					60,    // 1m
				},
			},
			[]string{"operation"},
		),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide Metrics.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRead records a completed file read and its diagnostics.
func (m *Metrics) ObserveRead(d time.Duration, diags adat.Diagnostics, err error) {
	m.FilesRead.WithLabelValues(result(err)).Inc()
	m.OperationDuration.WithLabelValues("read").Observe(d.Seconds())
	m.ObserveDiagnostics(diags)
}

// ObserveDiagnostics counts diagnostics by kind.
func (m *Metrics) ObserveDiagnostics(diags adat.Diagnostics) {
	for _, d := range diags {
		m.Diagnostics.WithLabelValues(string(d.Kind)).Inc()
	}
}

// ObserveWrite records a completed write. operation is "write" for ADAT
// output and "export" for columnar output.
func (m *Metrics) ObserveWrite(operation string, d time.Duration, err error) {
	m.FilesWritten.WithLabelValues(result(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveLift records a lift attempt.
func (m *Metrics) ObserveLift(d time.Duration, err error) {
	m.Lifts.WithLabelValues(result(err)).Inc()
	m.OperationDuration.WithLabelValues("lift").Observe(d.Seconds())
}

// WriteTextfile writes every collector in the Prometheus text format,
// replacing path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write metrics textfile").WithDetail("path", path)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
