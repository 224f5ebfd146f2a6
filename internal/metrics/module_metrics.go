// Package metrics defines scorer module metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Module counter vectors
var (
	ModuleExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "module_executions_total",
		Help:      "Total number of scorer module executions by module and status",
	}, []string{"module", "status"})
)

// Module histogram vectors
var (
	ModuleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "module_duration_seconds",
		Help:      "Scorer module execution time in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"module"})

	ModuleScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "module_score",
		Help:      "Scores produced by completed scorer modules",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	}, []string{"module"})
)

// RecordModuleExecution records one module run. Scores are only observed for completed runs.
// status should be one of: "completed", "error"
func RecordModuleExecution(module, status string, durationSeconds, score float64) {
	ModuleExecutionsTotal.WithLabelValues(module, status).Inc()
	ModuleDuration.WithLabelValues(module).Observe(durationSeconds)
	if status == "completed" {
		ModuleScore.WithLabelValues(module).Observe(score)
	}
}
