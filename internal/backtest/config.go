// Package backtest reviews settled stake recommendations: hit rate, ROI,
// score stability, confidence calibration and a bankroll simulation.
package backtest

import (
	"errors"
	"time"

	"github.com/yourusername/keiba-line-bot/internal/config"
)

// ReviewConfig is a resolved review window
type ReviewConfig struct {
	StartDate            time.Time
	EndDate              time.Time
	InitialBankroll      float64
	MonteCarloIterations int
	CalibrationBuckets   int
	Seed                 int64
	OutputPath           string
}

// FromConfig resolves the review window ending at end. The simulated bankroll
// starts at the daily budget.
func FromConfig(cfg config.ReviewConfig, dailyBudget float64, end time.Time) (ReviewConfig, error) {
	days := cfg.LookbackDays
	if days <= 0 {
		days = 30
	}
	buckets := cfg.CalibrationBuckets
	if buckets <= 0 {
		buckets = 5
	}

	rc := ReviewConfig{
		StartDate:            end.AddDate(0, 0, -days),
		EndDate:              end,
		InitialBankroll:      dailyBudget,
		MonteCarloIterations: cfg.MonteCarloIterations,
		CalibrationBuckets:   buckets,
		OutputPath:           cfg.OutputPath,
	}
	return rc, rc.Validate()
}

// Validate validates review parameters
func (c ReviewConfig) Validate() error {
	if c.StartDate.After(c.EndDate) {
		return errors.New("start date must be before end date")
	}
	if c.InitialBankroll <= 0 {
		return errors.New("initial bankroll must be positive")
	}
	if c.MonteCarloIterations < 0 {
		return errors.New("monte carlo iterations cannot be negative")
	}
	if c.CalibrationBuckets <= 0 {
		return errors.New("calibration buckets must be positive")
	}
	return nil
}
