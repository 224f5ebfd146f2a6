package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	applogger "github.com/yourusername/keiba-line-bot/internal/logger"
	"github.com/yourusername/keiba-line-bot/internal/models"
	"github.com/yourusername/keiba-line-bot/internal/repository"
)

// SettlementSummary totals the stakes settled against one race result
type SettlementSummary struct {
	RaceID   string          `json:"race_id"`
	Settled  int             `json:"settled"`
	Hits     int             `json:"hits"`
	Invested decimal.Decimal `json:"invested"`
	Payout   decimal.Decimal `json:"payout"`
}

// SettlementService records official results and settles the stored
// recommendations of those races.
type SettlementService struct {
	repo     repository.OutcomeRepository
	validate *validator.Validate
	logger   *logrus.Logger
	audit    *applogger.AuditLogger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(repo repository.OutcomeRepository, logger *logrus.Logger) *SettlementService {
	return &SettlementService{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
		audit:    applogger.NewAuditLogger(logger),
	}
}

// RecordOutcome stores the result and settles every open stake on the race.
// Recording the same result twice settles nothing the second time.
func (s *SettlementService) RecordOutcome(ctx context.Context, outcome *models.RaceOutcome) (SettlementSummary, error) {
	if outcome == nil {
		return SettlementSummary{}, fmt.Errorf("race outcome: %w", models.ErrValidationFailure)
	}
	summary := SettlementSummary{RaceID: outcome.RaceID}
	if err := s.validate.Struct(outcome); err != nil {
		return summary, fmt.Errorf("race outcome %s: %v: %w", outcome.RaceID, err, models.ErrValidationFailure)
	}
	if outcome.FieldSize > 0 && len(outcome.Order) > outcome.FieldSize {
		return summary, fmt.Errorf("race outcome %s: %d finishers in a field of %d: %w",
			outcome.RaceID, len(outcome.Order), outcome.FieldSize, models.ErrValidationFailure)
	}

	if err := s.repo.SaveOutcome(ctx, outcome); err != nil {
		return summary, err
	}
	settled, err := s.repo.SettleRace(ctx, outcome.RaceID)
	if err != nil {
		return summary, fmt.Errorf("failed to settle race %s: %w", outcome.RaceID, err)
	}

	type runTotals struct {
		settled, hits int
		payout        decimal.Decimal
	}
	byRun := make(map[string]*runTotals)
	for _, st := range settled {
		summary.Settled++
		summary.Invested = summary.Invested.Add(st.Stake.Amount)
		summary.Payout = summary.Payout.Add(st.Payout)

		run := byRun[st.RunID.String()]
		if run == nil {
			run = &runTotals{}
			byRun[st.RunID.String()] = run
		}
		run.settled++
		run.payout = run.payout.Add(st.Payout)
		if st.Hit {
			summary.Hits++
			run.hits++
		}
	}
	for runID, run := range byRun {
		s.audit.LogSettlement(runID, run.settled, run.hits, run.payout.StringFixed(0))
	}

	s.logger.WithFields(logrus.Fields{
		"race_id": outcome.RaceID,
		"settled": summary.Settled,
		"hits":    summary.Hits,
		"payout":  summary.Payout.StringFixed(0),
	}).Info("Race outcome recorded")
	return summary, nil
}
