// Package logger provides scorer module logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// ModuleLogger provides dedicated logging for scorer module execution.
type ModuleLogger struct {
	*logrus.Entry
}

// NewModuleLogger creates a new module logger.
func NewModuleLogger(baseLogger *logrus.Logger) *ModuleLogger {
	return &ModuleLogger{
		Entry: baseLogger.WithField("component", "modules"),
	}
}

// LogModuleCompleted logs a module that finished with a score.
func (ml *ModuleLogger) LogModuleCompleted(raceID, module string, score, weight float64, durationMs int64) {
	ml.WithFields(logrus.Fields{
		"race_id":     raceID,
		"module":      module,
		"score":       score,
		"weight":      weight,
		"duration_ms": durationMs,
	}).Debug("Module completed")
}

// LogModuleFailed logs a module replaced by an error result.
func (ml *ModuleLogger) LogModuleFailed(raceID, module, reason string, timedOut bool) {
	ml.WithFields(logrus.Fields{
		"race_id":   raceID,
		"module":    module,
		"reason":    reason,
		"timed_out": timedOut,
	}).Warn("Module failed")
}

// LogRaceSkipped logs a race dropped before scoring.
func (ml *ModuleLogger) LogRaceSkipped(raceID, raceName, stage string, quality float64, errors []string) {
	ml.WithFields(logrus.Fields{
		"race_id":   raceID,
		"race_name": raceName,
		"stage":     stage,
		"quality":   quality,
		"errors":    errors,
	}).Warn("Race skipped")
}
