// Package metrics provides centralized Prometheus metrics registry for the prediction bot.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keiba_bot"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	PredictionRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prediction_runs_total",
		Help:      "Total number of prediction runs by status",
	}, []string{"status"})
	RacesAnalyzedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "races_analyzed_total",
		Help:      "Total number of races scored by the pipeline",
	})
	RacesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "races_skipped_total",
		Help:      "Total number of races dropped before scoring by reason",
	}, []string{"reason"})
	LINEMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "line_messages_total",
		Help:      "Total number of LINE API calls by kind and status",
	}, []string{"kind", "status"})
	WebhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Total number of webhook events by type",
	}, []string{"type"})
	CollectorRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collector_requests_total",
		Help:      "Total number of race collection attempts by source and status",
	}, []string{"source", "status"})
	CircuitBreakerTripsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of circuit breaker trips",
	}, []string{"name"})
)

// Gauge metrics
var (
	LastRunQuality = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_quality_score",
		Help:      "Quality score of the most recent prediction run",
	})
	LastRunStakeTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_stake_total_yen",
		Help:      "Total recommended stake of the most recent prediction run",
	})
	PredictionCacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "prediction_cache_hit_ratio",
		Help:      "Hit ratio of the per-day prediction cache",
	})
)

// Histogram metrics
var (
	PredictionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prediction_duration_seconds",
		Help:      "Duration of full prediction runs in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})
	FinalScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "race_final_score",
		Help:      "Aggregated final score per analyzed race",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(PredictionRunsTotal)
		registry.MustRegister(RacesAnalyzedTotal)
		registry.MustRegister(RacesSkippedTotal)
		registry.MustRegister(LINEMessagesTotal)
		registry.MustRegister(WebhookEventsTotal)
		registry.MustRegister(CollectorRequestsTotal)
		registry.MustRegister(CircuitBreakerTripsTotal)

		registry.MustRegister(LastRunQuality)
		registry.MustRegister(LastRunStakeTotal)
		registry.MustRegister(PredictionCacheHitRatio)

		registry.MustRegister(PredictionDuration)
		registry.MustRegister(FinalScore)

		// Register module metrics
		registry.MustRegister(ModuleExecutionsTotal)
		registry.MustRegister(ModuleDuration)
		registry.MustRegister(ModuleScore)

		// Register review metrics
		registry.MustRegister(ReviewRunsTotal)
		registry.MustRegister(ReviewHitRate)
		registry.MustRegister(ReviewROI)
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

// RecordPredictionRun records a finished prediction run.
func RecordPredictionRun(status string, durationSeconds, quality float64, stakeTotal float64) {
	PredictionRunsTotal.WithLabelValues(status).Inc()
	PredictionDuration.Observe(durationSeconds)
	LastRunQuality.Set(quality)
	LastRunStakeTotal.Set(stakeTotal)
}

// RecordRaceAnalyzed records one scored race.
func RecordRaceAnalyzed(finalScore float64) {
	RacesAnalyzedTotal.Inc()
	FinalScore.Observe(finalScore)
}

// RecordRaceSkipped records a race dropped before scoring.
// reason should be one of: "normalize", "validation"
func RecordRaceSkipped(reason string) {
	RacesSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordLINEMessage records a LINE API call.
func RecordLINEMessage(kind, status string) {
	LINEMessagesTotal.WithLabelValues(kind, status).Inc()
}

// RecordWebhookEvent records a received webhook event.
func RecordWebhookEvent(eventType string) {
	WebhookEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordCollectorRequest records a race collection attempt.
func RecordCollectorRequest(source, status string) {
	CollectorRequestsTotal.WithLabelValues(source, status).Inc()
}

// RecordCircuitBreakerTrip records a circuit breaker trip event.
func RecordCircuitBreakerTrip(name string) {
	CircuitBreakerTripsTotal.WithLabelValues(name).Inc()
}

// SetPredictionCacheHitRatio publishes the prediction cache hit ratio.
func SetPredictionCacheHitRatio(ratio float64) {
	PredictionCacheHitRatio.Set(ratio)
}
