package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// PredictionRepository stores prediction runs
type PredictionRepository interface {
	SaveRun(ctx context.Context, result *models.PredictionResult) error
	GetRun(ctx context.Context, runID uuid.UUID) (*models.PredictionResult, error)
	GetLatestByDate(ctx context.Context, date string) (*models.PredictionResult, error)
}

// OutcomeRepository stores official race results and settles stored stakes against them
type OutcomeRepository interface {
	SaveOutcome(ctx context.Context, outcome *models.RaceOutcome) error
	GetOutcome(ctx context.Context, raceID string) (*models.RaceOutcome, error)
	SettleRace(ctx context.Context, raceID string) ([]models.SettledStake, error)
	ListSettled(ctx context.Context, start, end time.Time) ([]models.SettledStake, error)
}

// PerformanceRepository stores past performances keyed by horse
type PerformanceRepository interface {
	PastPerformances(ctx context.Context, horse models.HorseEntry) ([]models.PerformanceRecord, error)
	InsertBatch(ctx context.Context, horseKey string, records []models.PerformanceRecord) error
}
