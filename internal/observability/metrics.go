package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bucket definitions.
var (
	commitDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	sweepDurationBuckets  = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}
	restoreRecordBuckets  = []float64{10, 100, 1000, 10000, 100000}
)

// Metrics holds all Prometheus metric instruments for the lifecycle core.
type Metrics struct {
	// Transition metrics
	TransitionsTotal        *prometheus.CounterVec
	TransitionCommitSeconds *prometheus.HistogramVec
	GuardViolationsTotal    *prometheus.CounterVec
	ConflictRetriesTotal    prometheus.Counter

	// Scheduler metrics
	SweepsTotal           prometheus.Counter
	SweepDurationSeconds  prometheus.Histogram
	SweepActivationsTotal *prometheus.CounterVec
	SweepFailuresTotal    *prometheus.CounterVec

	// Archive metrics
	ExportsTotal        *prometheus.CounterVec
	RestoresTotal       *prometheus.CounterVec
	RestoreRecordsTotal *prometheus.CounterVec
	RestoreRecordCount  prometheus.Histogram
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_transitions_total",
			Help: "Total number of committed workflow transitions.",
		}, []string{"action", "to_state"}),
		TransitionCommitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veridoc_transition_commit_duration_seconds",
			Help:    "Transition commit duration in seconds.",
			Buckets: commitDurationBuckets,
		}, []string{"action"}),
		GuardViolationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_guard_violations_total",
			Help: "Total number of rejected transitions by guard.",
		}, []string{"action"}),
		ConflictRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_conflict_retries_total",
			Help: "Total number of optimistic-lock retries during commits.",
		}),

		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_sweeps_total",
			Help: "Total number of scheduler sweeps.",
		}),
		SweepDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "veridoc_sweep_duration_seconds",
			Help:    "Scheduler sweep duration in seconds.",
			Buckets: sweepDurationBuckets,
		}),
		SweepActivationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_sweep_activations_total",
			Help: "Total number of date-due activations applied by sweeps.",
		}, []string{"to_state"}),
		SweepFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_sweep_failures_total",
			Help: "Total number of failed sweep activations.",
		}, []string{"reason"}),

		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_exports_total",
			Help: "Total number of archive exports.",
		}, []string{"status"}),
		RestoresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_restores_total",
			Help: "Total number of archive restores.",
		}, []string{"status", "mode"}),
		RestoreRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_restore_records_total",
			Help: "Total number of restore records by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RestoreRecordCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "veridoc_restore_record_count",
			Help:    "Number of records per restore batch.",
			Buckets: restoreRecordBuckets,
		}),
	}

	reg.MustRegister(
		m.TransitionsTotal,
		m.TransitionCommitSeconds,
		m.GuardViolationsTotal,
		m.ConflictRetriesTotal,
		m.SweepsTotal,
		m.SweepDurationSeconds,
		m.SweepActivationsTotal,
		m.SweepFailuresTotal,
		m.ExportsTotal,
		m.RestoresTotal,
		m.RestoreRecordsTotal,
		m.RestoreRecordCount,
	)

	return m
}
