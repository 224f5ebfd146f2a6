// Package metrics defines prediction review metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Review counter vectors
var (
	ReviewRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "review_runs_total",
		Help:      "Total number of prediction review runs by status",
	}, []string{"status"})
)

// Review gauge vectors
var (
	ReviewHitRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "review_hit_rate",
		Help:      "Hit rate of settled recommendations by bet type over the review window",
	}, []string{"bet_type"})

	ReviewROI = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "review_roi",
		Help:      "Return on investment of settled recommendations by bet type",
	}, []string{"bet_type"})
)

// RecordReviewRun records a review run event.
// status should be one of: "success", "failure", "empty"
func RecordReviewRun(status string) {
	ReviewRunsTotal.WithLabelValues(status).Inc()
}

// UpdateReviewStats sets the hit rate and ROI for a bet type.
func UpdateReviewStats(betType string, hitRate, roi float64) {
	ReviewHitRate.WithLabelValues(betType).Set(hitRate)
	ReviewROI.WithLabelValues(betType).Set(roi)
}
