// Package metrics counts what a run did and writes the counters as a
// Prometheus textfile so a node exporter can pick them up after the run.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
)

const namespace = "enrollsync"

// Metrics holds the collectors of one run on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	records     *prometheus.CounterVec
	events      *prometheus.CounterVec
	chunkErrors *prometheus.CounterVec
	stageErrors *prometheus.CounterVec
	duration    prometheus.Gauge
	lastRun     prometheus.Gauge
}

// New registers a fresh set of collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records decided per stage, target and action.",
		}, []string{"stage", "target", "action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Change events settled per resulting status.",
		}, []string{"stage", "status"}),
		chunkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_errors_total",
			Help:      "Batch write chunks rejected by the record store.",
		}, []string{"target", "operation"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stages that ended with an error.",
		}, []string{"stage"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	m.registry.MustRegister(m.records, m.events, m.chunkErrors, m.stageErrors, m.duration, m.lastRun)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Record counts one record decision.
func (m *Metrics) Record(stage, target, action string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(stage, target, action).Inc()
}

// Records counts n record decisions at once.
func (m *Metrics) Records(stage, target, action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(stage, target, action).Add(float64(n))
}

// Event counts one settled change event.
func (m *Metrics) Event(stage, status string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(stage, status).Inc()
}

// ChunkError counts one rejected chunk.
func (m *Metrics) ChunkError(target, operation string) {
	if m == nil {
		return
	}
	m.chunkErrors.WithLabelValues(target, operation).Inc()
}

// StageError counts one failed stage.
func (m *Metrics) StageError(stage string) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage).Inc()
}

// Finish stamps the run duration and completion time.
func (m *Metrics) Finish(started, finished time.Time) {
	if m == nil {
		return
	}
	m.duration.Set(finished.Sub(started).Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes all collectors to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
