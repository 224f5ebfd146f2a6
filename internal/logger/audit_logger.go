// Package logger provides audit logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogPredictionRun logs the outcome of a prediction run.
func (al *AuditLogger) LogPredictionRun(runID, date, status string, races int, quality float64, stakeTotal string, durationMs int64) {
	al.WithFields(logrus.Fields{
		"run_id":      runID,
		"race_date":   date,
		"status":      status,
		"races":       races,
		"quality":     quality,
		"stake_total": stakeTotal,
		"duration_ms": durationMs,
	}).Info("Prediction run recorded")
}

// LogStakeRecommendation logs one recommended stake.
func (al *AuditLogger) LogStakeRecommendation(runID, raceID string, horseNumber int, betType, amount string, odds, kelly float64) {
	al.WithFields(logrus.Fields{
		"run_id":         runID,
		"race_id":        raceID,
		"horse_number":   horseNumber,
		"bet_type":       betType,
		"amount":         amount,
		"odds":           odds,
		"kelly_fraction": kelly,
	}).Info("Stake recommendation recorded")
}

// LogBroadcast logs a scheduled or manual broadcast.
func (al *AuditLogger) LogBroadcast(trigger string, races int, succeeded bool, reason string) {
	entry := al.WithFields(logrus.Fields{
		"trigger":   trigger,
		"races":     races,
		"succeeded": succeeded,
	})
	if !succeeded {
		entry.WithField("reason", reason).Warn("Broadcast failed")
		return
	}
	entry.Info("Broadcast sent")
}

// LogWebhookRejected logs a webhook request that failed signature verification.
func (al *AuditLogger) LogWebhookRejected(remoteAddr, reason string) {
	al.WithFields(logrus.Fields{
		"remote_addr": remoteAddr,
		"reason":      reason,
	}).Warn("Webhook request rejected")
}

// LogCircuitBreakerEvent logs circuit breaker state changes.
func (al *AuditLogger) LogCircuitBreakerEvent(name, from, to string) {
	al.WithFields(logrus.Fields{
		"breaker":    name,
		"from_state": from,
		"to_state":   to,
	}).Warn("Circuit breaker event recorded")
}

// LogSettlement logs settling a run's recommendations against results.
func (al *AuditLogger) LogSettlement(runID string, settled, hits int, payout string) {
	al.WithFields(logrus.Fields{
		"run_id":  runID,
		"settled": settled,
		"hits":    hits,
		"payout":  payout,
	}).Info("Recommendations settled")
}
