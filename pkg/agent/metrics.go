package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "persona"

// Turn outcomes.
const (
	OutcomeAccepted    = "accepted"
	OutcomeRegenerated = "regenerated"
	OutcomeFailed      = "failed"
)

// Tool call statuses.
const (
	ToolStatusOK      = "ok"
	ToolStatusError   = "error"
	ToolStatusUnknown = "unknown"
)

// Metrics holds the collectors of the turn pipeline. A nil *Metrics records nothing.
type Metrics struct {
	turns        *prometheus.CounterVec
	evaluations  *prometheus.CounterVec
	fallbacks    prometheus.Counter
	toolCalls    *prometheus.CounterVec
	turnDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of turns by outcome",
			},
			[]string{"outcome"}, // accepted, regenerated, failed
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of evaluator verdicts",
			},
			[]string{"provider", "verdict"}, // verdict: accepted, rejected
		),
		fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluator_fallbacks_total",
				Help:      "Number of times the structured evaluator failed and the JSON-mode path was used",
			},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls",
			},
			[]string{"tool", "status"}, // status: ok, error, unknown
		),
		turnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Duration of a full turn in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.turns, m.evaluations, m.fallbacks, m.toolCalls, m.turnDuration)
	}
	return m
}

func (m *Metrics) recordTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(d.Seconds())
}

func (m *Metrics) recordEvaluation(provider string, acceptable bool) {
	if m == nil {
		return
	}
	verdict := "rejected"
	if acceptable {
		verdict = "accepted"
	}
	m.evaluations.WithLabelValues(provider, verdict).Inc()
}

func (m *Metrics) recordFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) recordToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}
