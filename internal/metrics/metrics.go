// Package metrics provides the centralized Prometheus registry for the
// allocation research toolkit.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	SimulationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risktool",
		Name:      "simulations_total",
		Help:      "Total number of backtest simulations executed",
	})
	CandidateEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "risktool",
		Name:      "candidate_evaluations_total",
		Help:      "Total number of candidate strategy evaluations by optimizer",
	}, []string{"optimizer"})
	BootstrapReplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risktool",
		Name:      "bootstrap_replicates_total",
		Help:      "Total number of bootstrap replicates completed",
	})
	ReoptimizationRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risktool",
		Name:      "reoptimization_runs_total",
		Help:      "Total number of scheduled re-optimization runs",
	})
)

// Gauge metrics
var (
	EvaluationCacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risktool",
		Name:      "evaluation_cache_hit_ratio",
		Help:      "Hit ratio of the candidate evaluation cache",
	})
	LastObjectiveScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "risktool",
		Name:      "last_objective_score",
		Help:      "Objective score of the most recent optimization winner",
	}, []string{"optimizer"})
)

// Histogram metrics
var (
	OptimizationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "risktool",
		Name:      "optimization_duration_seconds",
		Help:      "Duration of optimization runs in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
	}, []string{"optimizer"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(SimulationsTotal)
		registry.MustRegister(CandidateEvaluationsTotal)
		registry.MustRegister(BootstrapReplicatesTotal)
		registry.MustRegister(ReoptimizationRunsTotal)
		registry.MustRegister(EvaluationCacheHitRatio)
		registry.MustRegister(LastObjectiveScore)
		registry.MustRegister(OptimizationDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordSimulation records a completed simulation.
func RecordSimulation() {
	SimulationsTotal.Inc()
}

// RecordCandidateEvaluation records one candidate evaluation.
func RecordCandidateEvaluation(optimizer string) {
	CandidateEvaluationsTotal.WithLabelValues(optimizer).Inc()
}

// RecordBootstrapReplicate records one bootstrap replicate.
func RecordBootstrapReplicate() {
	BootstrapReplicatesTotal.Inc()
}

// RecordReoptimizationRun records a scheduled re-optimization run.
func RecordReoptimizationRun() {
	ReoptimizationRunsTotal.Inc()
}

// RecordOptimizationDuration records how long an optimization run took.
func RecordOptimizationDuration(optimizer string, seconds float64) {
	OptimizationDuration.WithLabelValues(optimizer).Observe(seconds)
}

// UpdateCacheHitRatio updates the evaluation cache hit ratio gauge.
func UpdateCacheHitRatio(ratio float64) {
	EvaluationCacheHitRatio.Set(ratio)
}

// UpdateObjectiveScore updates the winning objective score gauge.
func UpdateObjectiveScore(optimizer string, score float64) {
	LastObjectiveScore.WithLabelValues(optimizer).Set(score)
}
