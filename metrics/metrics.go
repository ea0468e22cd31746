// Package metrics holds the Prometheus collectors for the submission engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EngineMetrics struct {
	oracleCalls   *prometheus.CounterVec
	batchVerdicts *prometheus.CounterVec
	votes         *prometheus.CounterVec
	finalizations *prometheus.CounterVec
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the lazily-registered engine collectors.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Subsystem: "oracle",
				Name:      "evaluations_total",
				Help:      "Oracle evaluations of sampled files segmented by outcome.",
			}, []string{"outcome"}),
			batchVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Subsystem: "sampler",
				Name:      "batch_verdicts_total",
				Help:      "Batch pre-check verdicts segmented by result.",
			}, []string{"result"}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Subsystem: "submission",
				Name:      "votes_total",
				Help:      "Community vote attempts segmented by verdict and outcome.",
			}, []string{"verdict", "outcome"}),
			finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Subsystem: "submission",
				Name:      "finalizations_total",
				Help:      "Owner finalization attempts segmented by decision and outcome.",
			}, []string{"decision", "outcome"}),
		}
		prometheus.MustRegister(
			engineRegistry.oracleCalls,
			engineRegistry.batchVerdicts,
			engineRegistry.votes,
			engineRegistry.finalizations,
		)
	})
	return engineRegistry
}

func (m *EngineMetrics) ObserveOracle(err error) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(outcome(err)).Inc()
}

func (m *EngineMetrics) ObserveBatch(passed bool) {
	if m == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.batchVerdicts.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) ObserveVote(verdict string, err error) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(verdict, outcome(err)).Inc()
}

func (m *EngineMetrics) ObserveFinalize(decision string, err error) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(decision, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
