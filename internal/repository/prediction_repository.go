package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/keiba-line-bot/internal/database"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// PostgresPredictionRepository implements PredictionRepository for PostgreSQL.
// A run is stored whole as JSONB; its stakes are also written as rows so they can be settled.
type PostgresPredictionRepository struct {
	db *database.DB
}

// NewPostgresPredictionRepository creates a new prediction repository
func NewPostgresPredictionRepository(db *database.DB) *PostgresPredictionRepository {
	return &PostgresPredictionRepository{db: db}
}

// stakeRow is one stake_recommendations row before settlement
type stakeRow struct {
	RaceID     string
	RaceDate   time.Time
	FinalScore float64
	Stake      models.StakeRecommendation
}

// stakeRows flattens the per-race plans of a run
func stakeRows(result *models.PredictionResult) []stakeRow {
	var rows []stakeRow
	for _, race := range result.Races {
		for _, s := range race.Stakes.Stakes {
			raceID := s.RaceID
			if raceID == "" {
				raceID = race.RaceID
			}
			rows = append(rows, stakeRow{
				RaceID:     raceID,
				RaceDate:   race.StartTime,
				FinalScore: race.Evaluation.FinalScore,
				Stake:      s,
			})
		}
	}
	return rows
}

// SaveRun stores a run and its stake rows in one transaction
func (r *PostgresPredictionRepository) SaveRun(ctx context.Context, result *models.PredictionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode prediction run: %w", err)
	}

	return r.db.WithTransaction(ctx, func(q database.Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO prediction_runs (run_id, race_date, status, quality_score, stake_total, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (run_id) DO UPDATE
			SET status = EXCLUDED.status, quality_score = EXCLUDED.quality_score,
			    stake_total = EXCLUDED.stake_total, payload = EXCLUDED.payload
		`, result.RunID, result.Date, string(result.Status), result.QualityScore, result.Stakes.TotalAmount, payload, result.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert prediction run: %w", err)
		}

		for _, row := range stakeRows(result) {
			s := row.Stake
			_, err := q.Exec(ctx, `
				INSERT INTO stake_recommendations
					(run_id, race_id, race_date, horse_number, horse_name, bet_type, amount, odds,
					 win_probability, confidence, kelly_fraction, final_score)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				ON CONFLICT (run_id, race_id, horse_number, bet_type) DO NOTHING
			`, result.RunID, row.RaceID, row.RaceDate, s.HorseNumber, s.HorseName, string(s.BetType), s.Amount, s.Odds, s.WinProbability, s.Confidence, s.KellyFraction, row.FinalScore)
			if err != nil {
				return fmt.Errorf("failed to insert stake for race %s: %w", row.RaceID, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run by ID
func (r *PostgresPredictionRepository) GetRun(ctx context.Context, runID uuid.UUID) (*models.PredictionResult, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT payload FROM prediction_runs WHERE run_id = $1`, runID).Scan(&payload)
	if err != nil {
		return nil, notFound(err, "prediction run")
	}
	return decodeRun(payload)
}

// GetLatestByDate retrieves the newest successful run for a race day (YYYY-MM-DD)
func (r *PostgresPredictionRepository) GetLatestByDate(ctx context.Context, date string) (*models.PredictionResult, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `
		SELECT payload FROM prediction_runs
		WHERE race_date = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, date, string(models.PredictionSuccess)).Scan(&payload)
	if err != nil {
		return nil, notFound(err, "prediction run for "+date)
	}
	return decodeRun(payload)
}

func decodeRun(payload []byte) (*models.PredictionResult, error) {
	var result models.PredictionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode prediction run: %w", err)
	}
	return &result, nil
}

