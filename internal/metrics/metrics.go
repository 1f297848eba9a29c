// Package metrics holds the Prometheus collectors shared by every engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Decisions         *prometheus.CounterVec
	Degraded          *prometheus.CounterVec
	RecordingFailures *prometheus.CounterVec
	Evaluation        *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to keep runs isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trust_decisions_total",
			Help: "Decisions made, by engine and tier.",
		}, []string{"engine", "tier"}),
		Degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trust_evaluator_degraded_total",
			Help: "Factors resolved to their safe default because a collaborator failed.",
		}, []string{"engine", "factor"}),
		RecordingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trust_recording_failures_total",
			Help: "Decisions that could not be written to the audit log.",
		}, []string{"engine"}),
		Evaluation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trust_evaluation_seconds",
			Help:    "Wall time of one evaluation including recording.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"engine"}),
	}
	if reg != nil {
		reg.MustRegister(m.Decisions, m.Degraded, m.RecordingFailures, m.Evaluation)
	}
	return m
}

// Nop returns unregistered collectors.
func Nop() *Metrics { return New(nil) }

func (m *Metrics) ObserveDecision(engine, tier string, elapsed time.Duration) {
	m.Decisions.WithLabelValues(engine, tier).Inc()
	m.Evaluation.WithLabelValues(engine).Observe(elapsed.Seconds())
}

func (m *Metrics) IncDegraded(engine, factor string) {
	m.Degraded.WithLabelValues(engine, factor).Inc()
}

func (m *Metrics) IncRecordingFailure(engine string) {
	m.RecordingFailures.WithLabelValues(engine).Inc()
}
