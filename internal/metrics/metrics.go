// Package metrics records run statistics on a private Prometheus registry
// and writes them to a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "frauddwh"

// Metrics groups the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	rows          *prometheus.CounterVec
	candidates    *prometheus.CounterVec
	reported      prometheus.Counter
	published     prometheus.Counter
	runs          *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_total",
				Help:      "Rows written per table and operation",
			},
			[]string{"table", "op"},
		),
		candidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fraud_candidates_total",
				Help:      "Candidate events produced per fraud rule",
			},
			[]string{"event_type"},
		),
		reported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_reported_total",
			Help:      "Events appended to the fraud report",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_published_total",
			Help:      "Report rows inserted into the external report store",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by outcome",
			},
			[]string{"status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of pipeline phases",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
	m.registry.MustRegister(m.rows, m.candidates, m.reported, m.published, m.runs, m.phaseDuration, m.lastSuccess)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// AddRows counts n rows written to table by op.
func (m *Metrics) AddRows(table, op string, n int64) {
	if n > 0 {
		m.rows.WithLabelValues(table, op).Add(float64(n))
	}
}

// AddCandidates counts rule output.
func (m *Metrics) AddCandidates(eventType string, n int64) {
	if n > 0 {
		m.candidates.WithLabelValues(eventType).Add(float64(n))
	}
}

// AddReported counts rows that passed the dedup gate.
func (m *Metrics) AddReported(n int64) {
	if n > 0 {
		m.reported.Add(float64(n))
	}
}

// AddPublished counts rows inserted by the report publisher.
func (m *Metrics) AddPublished(n int64) {
	if n > 0 {
		m.published.Add(float64(n))
	}
}

// ObservePhase records how long phase took.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RunFinished records the outcome of a run.
func (m *Metrics) RunFinished(at time.Time, err error) {
	if err != nil {
		m.runs.WithLabelValues("failed").Inc()
		return
	}
	m.runs.WithLabelValues("succeeded").Inc()
	m.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry to path; the directory is created.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
