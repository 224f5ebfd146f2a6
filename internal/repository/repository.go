package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/keiba-line-bot/internal/database"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// Repositories holds all repository implementations
type Repositories struct {
	Prediction  PredictionRepository
	Outcome     OutcomeRepository
	Performance PerformanceRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Prediction:  NewPostgresPredictionRepository(db),
		Outcome:     NewPostgresOutcomeRepository(db),
		Performance: NewPostgresPerformanceRepository(db),
	}, nil
}

// notFound maps pgx.ErrNoRows onto models.ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return fmt.Errorf("failed to query %s: %w", what, err)
}
