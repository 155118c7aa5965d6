// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hedgebot"

type Metrics struct {
	// Labels: category (order, route), type (NEW, INITIAL_PAINT, UPDATE, DELETE)
	Notifications *prometheus.CounterVec

	// Labels: ruleset, mode (full, changed)
	Passes *prometheus.CounterVec

	// Labels: ruleset
	PassDuration *prometheus.HistogramVec

	// Labels: ruleset, rule
	RulesFired *prometheus.CounterVec

	// Labels: action, status (succeeded, rejected, failed)
	ActionResults *prometheus.CounterVec

	// Labels: ruleset
	EvaluationErrors *prometheus.CounterVec

	// Labels: category
	BuildFailures *prometheus.CounterVec

	Datasets prometheus.Gauge
	Evicted  prometheus.Counter
	Dropped  prometheus.Counter
}

// New registers the engine metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Lifecycle notifications handled",
		}, []string{"category", "type"}),
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ruleset_passes_total",
			Help:      "RuleSet evaluation passes",
		}, []string{"ruleset", "mode"}),
		PassDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ruleset_pass_duration_seconds",
			Help:      "RuleSet pass latency including action waits",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"ruleset"}),
		RulesFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_fired_total",
			Help:      "Rules whose conditions all held",
		}, []string{"ruleset", "rule"}),
		ActionResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_results_total",
			Help:      "Action invocations by outcome",
		}, []string{"action", "status"}),
		EvaluationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "RuleSet passes aborted by an evaluation error",
		}, []string{"ruleset"}),
		BuildFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_build_failures_total",
			Help:      "Dataset builds skipped after a resolution error",
		}, []string{"category"}),
		Datasets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datasets",
			Help:      "Live datasets",
		}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_evicted_total",
			Help:      "Datasets evicted after reaching a terminal status",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications rejected because a worker queue was full",
		}),
	}
}
