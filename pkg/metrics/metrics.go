package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "advocate"

// Metrics holds the Prometheus collectors for the conversation pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// TurnsTotal counts turns by outcome (question, findings, error).
	TurnsTotal *prometheus.CounterVec

	// StageDurationSeconds observes stage latency by stage and status.
	StageDurationSeconds *prometheus.HistogramVec

	// RankerCallsTotal counts ranking calls by result (ok, empty, provider_error).
	RankerCallsTotal *prometheus.CounterVec

	// PersistenceFailuresTotal counts records that could not be stored.
	PersistenceFailuresTotal prometheus.Counter
}

// New creates and registers all collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Conversation turns processed by outcome",
			},
			[]string{"outcome"},
		),
		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage", "status"},
		),
		RankerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ranker_calls_total",
				Help:      "Similarity ranking calls by result",
			},
			[]string{"result"},
		),
		PersistenceFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_failures_total",
				Help:      "Conversation records that failed to persist",
			},
		),
	}
}

// ObserveTurn records the outcome of one turn.
func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StageDurationSeconds.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
}

// ObserveRank records a ranking call result.
func (m *Metrics) ObserveRank(result string) {
	if m == nil {
		return
	}
	m.RankerCallsTotal.WithLabelValues(result).Inc()
}

// PersistenceFailed increments the persistence failure counter.
func (m *Metrics) PersistenceFailed() {
	if m == nil {
		return
	}
	m.PersistenceFailuresTotal.Inc()
}
