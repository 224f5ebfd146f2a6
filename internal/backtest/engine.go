package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/keiba-line-bot/internal/metrics"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// SettledSource loads stakes whose races have results
type SettledSource interface {
	ListSettled(ctx context.Context, start, end time.Time) ([]models.SettledStake, error)
}

// ReviewResult is the outcome of one review run
type ReviewResult struct {
	Config      ReviewConfig      `json:"-"`
	Stakes      int               `json:"stakes"`
	Metrics     Metrics           `json:"metrics"`
	Equity      EquityCurve       `json:"equity"`
	MonteCarlo  *MonteCarloResult `json:"monte_carlo,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Empty reports whether nothing was settled in the window.
func (r *ReviewResult) Empty() bool {
	return r.Stakes == 0
}

// Reviewer measures how past recommendations performed
type Reviewer struct {
	source SettledSource
	logger *logrus.Logger
	now    func() time.Time
}

// NewReviewer creates a reviewer over a settled stake source
func NewReviewer(source SettledSource, logger *logrus.Logger) (*Reviewer, error) {
	if source == nil {
		return nil, errors.New("settled stake source is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Reviewer{source: source, logger: logger, now: time.Now}, nil
}

// Run reviews the window described by cfg
func (r *Reviewer) Run(ctx context.Context, cfg ReviewConfig) (*ReviewResult, error) {
	if err := cfg.Validate(); err != nil {
		metrics.RecordReviewRun("failure")
		return nil, fmt.Errorf("invalid review config: %w", err)
	}

	log := r.logger.WithFields(logrus.Fields{
		"start": cfg.StartDate.Format("2006-01-02"),
		"end":   cfg.EndDate.Format("2006-01-02"),
	})
	log.Info("Starting review run")

	stakes, err := r.source.ListSettled(ctx, cfg.StartDate, cfg.EndDate)
	if err != nil {
		metrics.RecordReviewRun("failure")
		return nil, fmt.Errorf("failed to load settled stakes: %w", err)
	}

	result := &ReviewResult{
		Config:      cfg,
		Stakes:      len(stakes),
		GeneratedAt: r.now(),
	}
	if len(stakes) == 0 {
		log.Warn("No settled stakes in review window")
		metrics.RecordReviewRun("empty")
		result.Metrics = CalculateMetrics(nil, cfg)
		return result, nil
	}

	result.Metrics = CalculateMetrics(stakes, cfg)
	result.Equity = BuildEquityCurve(stakes, cfg.InitialBankroll)

	if cfg.MonteCarloIterations > 0 {
		mc, err := RunMonteCarlo(ctx, stakes, MonteCarloConfig{
			Iterations:      cfg.MonteCarloIterations,
			Seed:            cfg.Seed,
			InitialBankroll: cfg.InitialBankroll,
		})
		if err != nil {
			metrics.RecordReviewRun("failure")
			return nil, fmt.Errorf("monte carlo simulation failed: %w", err)
		}
		result.MonteCarlo = &mc
	}

	for _, bt := range result.Metrics.ByBetType {
		metrics.UpdateReviewStats(bt.BetType, bt.HitRate, bt.ROI)
	}
	metrics.UpdateReviewStats(AllBetTypes, result.Metrics.Overall.HitRate, result.Metrics.Overall.ROI)
	metrics.RecordReviewRun("success")

	log.WithFields(logrus.Fields{
		"stakes":   result.Stakes,
		"hit_rate": result.Metrics.Overall.HitRate,
		"roi":      result.Metrics.Overall.ROI,
		"brier":    result.Metrics.BrierScore,
	}).Info("Review run completed")

	if cfg.OutputPath != "" {
		if err := WriteJSONReport(result, cfg.OutputPath); err != nil {
			return result, fmt.Errorf("failed to write review report: %w", err)
		}
	}
	return result, nil
}
