// Package telemetry wires the engine's evaluation counters into a
// caller-supplied Prometheus registry, following the metrics shape used
// by the assessment service's observability package (a single Metrics
// struct holding pre-built collectors, with nil-receiver methods that
// no-op so callers can pass a nil *Metrics when telemetry is disabled).
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	evaluateTotal     prometheus.Counter
	ruleFiredTotal    *prometheus.CounterVec
	evaluateDuration  prometheus.Histogram
	actionSelected    *prometheus.CounterVec
	rewardObserved    *prometheus.HistogramVec
}

// New builds and registers the engine's collectors against reg. Passing
// a nil reg is not supported — callers that want telemetry disabled
// should keep a nil *Metrics and rely on this package's nil-receiver
// methods instead.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxrules_evaluate_total",
			Help: "Total number of Engine.Evaluate calls.",
		}),
		ruleFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxrules_rule_fired_total",
			Help: "Total number of rule firings, by rule id.",
		}, []string{"rule_id"}),
		evaluateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctxrules_evaluate_duration_seconds",
			Help:    "Histogram of Engine.Evaluate wall-clock durations.",
			Buckets: prometheus.DefBuckets,
		}),
		actionSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxrules_action_selected_total",
			Help: "Total number of bandit action selections, by strategy.",
		}, []string{"strategy"}),
		rewardObserved: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ctxrules_reward_observed",
			Help:    "Distribution of observed rewards, by strategy.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"strategy"}),
	}

	reg.MustRegister(
		m.evaluateTotal,
		m.ruleFiredTotal,
		m.evaluateDuration,
		m.actionSelected,
		m.rewardObserved,
	)

	return m
}

// Evaluate records one Engine.Evaluate call and its duration.
func (m *Metrics) Evaluate(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluateTotal.Inc()
	m.evaluateDuration.Observe(d.Seconds())
}

// RuleFired records that ruleID's action fired.
func (m *Metrics) RuleFired(ruleID string) {
	if m == nil {
		return
	}
	m.ruleFiredTotal.WithLabelValues(ruleID).Inc()
}

// ActionSelected records a bandit selection under the given strategy
// name ("epsilon" or "linucb").
func (m *Metrics) ActionSelected(strategy string) {
	if m == nil {
		return
	}
	m.actionSelected.WithLabelValues(strategy).Inc()
}

// RewardObserved records a reward update under the given strategy name.
func (m *Metrics) RewardObserved(strategy string, reward float64) {
	if m == nil {
		return
	}
	m.rewardObserved.WithLabelValues(strategy).Observe(reward)
}
