package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/keiba-line-bot/internal/database"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

const settledColumns = `
	run_id, race_id, race_date, horse_number, horse_name, bet_type, amount, odds,
	win_probability, confidence, kelly_fraction, final_score`

// PostgresOutcomeRepository implements OutcomeRepository for PostgreSQL
type PostgresOutcomeRepository struct {
	db *database.DB
}

// NewPostgresOutcomeRepository creates a new race outcome repository
func NewPostgresOutcomeRepository(db *database.DB) *PostgresOutcomeRepository {
	return &PostgresOutcomeRepository{db: db}
}

// SaveOutcome inserts or replaces the official result of a race
func (r *PostgresOutcomeRepository) SaveOutcome(ctx context.Context, outcome *models.RaceOutcome) error {
	places, err := json.Marshal(outcome.PlacePayouts)
	if err != nil {
		return fmt.Errorf("failed to encode place payouts: %w", err)
	}

	query := `
		INSERT INTO race_outcomes (race_id, race_date, finish_order, field_size, win_payout,
		                           place_payouts, exacta_payout, trifecta_payout)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (race_id) DO UPDATE
		SET race_date = EXCLUDED.race_date, finish_order = EXCLUDED.finish_order,
		    field_size = EXCLUDED.field_size, win_payout = EXCLUDED.win_payout,
		    place_payouts = EXCLUDED.place_payouts, exacta_payout = EXCLUDED.exacta_payout,
		    trifecta_payout = EXCLUDED.trifecta_payout, recorded_at = NOW()
	`

	_, err = r.db.Exec(ctx, query,
		outcome.RaceID, outcome.Date, outcome.Order, outcome.FieldSize, outcome.WinPayout,
		places, outcome.ExactaPayout, outcome.TrifectaPayout,
	)
	if err != nil {
		return fmt.Errorf("failed to save race outcome: %w", err)
	}
	return nil
}

// GetOutcome retrieves the result of a race
func (r *PostgresOutcomeRepository) GetOutcome(ctx context.Context, raceID string) (*models.RaceOutcome, error) {
	return getOutcome(ctx, r.db, raceID)
}

func getOutcome(ctx context.Context, q database.Querier, raceID string) (*models.RaceOutcome, error) {
	query := `
		SELECT race_id, race_date, finish_order, field_size, win_payout, place_payouts,
		       exacta_payout, trifecta_payout
		FROM race_outcomes
		WHERE race_id = $1
	`

	var (
		o      models.RaceOutcome
		places []byte
	)
	err := q.QueryRow(ctx, query, raceID).Scan(
		&o.RaceID, &o.Date, &o.Order, &o.FieldSize, &o.WinPayout, &places,
		&o.ExactaPayout, &o.TrifectaPayout,
	)
	if err != nil {
		return nil, notFound(err, "race outcome "+raceID)
	}
	if err := json.Unmarshal(places, &o.PlacePayouts); err != nil {
		return nil, fmt.Errorf("failed to decode place payouts: %w", err)
	}
	return &o, nil
}

// SettleRace settles every open stake on a race against its stored outcome
func (r *PostgresOutcomeRepository) SettleRace(ctx context.Context, raceID string) ([]models.SettledStake, error) {
	var settled []models.SettledStake

	err := r.db.WithTransaction(ctx, func(q database.Querier) error {
		outcome, err := getOutcome(ctx, q, raceID)
		if err != nil {
			return err
		}

		open, err := queryStakes(ctx, q, `
			SELECT `+settledColumns+`
			FROM stake_recommendations
			WHERE race_id = $1 AND settled_at IS NULL
			FOR UPDATE
		`, raceID)
		if err != nil {
			return err
		}

		settled = SettleStakes(*outcome, open, time.Now())
		for _, s := range settled {
			_, err := q.Exec(ctx, `
				UPDATE stake_recommendations
				SET hit = $1, payout = $2, settled_at = $3
				WHERE run_id = $4 AND race_id = $5 AND horse_number = $6 AND bet_type = $7
			`, s.Hit, s.Payout, s.SettledAt, s.RunID, s.RaceID, s.Stake.HorseNumber, string(s.Stake.BetType))
			if err != nil {
				return fmt.Errorf("failed to settle stake: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// ListSettled returns settled stakes for races run between start and end inclusive
func (r *PostgresOutcomeRepository) ListSettled(ctx context.Context, start, end time.Time) ([]models.SettledStake, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+settledColumns+`, hit, payout, settled_at
		FROM stake_recommendations
		WHERE race_date >= $1 AND race_date <= $2 AND settled_at IS NOT NULL
		ORDER BY race_date, race_id
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query settled stakes: %w", err)
	}
	defer rows.Close()

	var stakes []models.SettledStake
	for rows.Next() {
		var (
			s       models.SettledStake
			betType string
			payout  decimal.NullDecimal
			hit     *bool
		)
		err := rows.Scan(
			&s.RunID, &s.RaceID, &s.RaceDate, &s.Stake.HorseNumber, &s.Stake.HorseName, &betType,
			&s.Stake.Amount, &s.Stake.Odds, &s.Stake.WinProbability, &s.Stake.Confidence,
			&s.Stake.KellyFraction, &s.FinalScore, &hit, &payout, &s.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settled stake: %w", err)
		}
		s.Stake.BetType = models.BetType(betType)
		s.Stake.RaceID = s.RaceID
		s.Hit = hit != nil && *hit
		if payout.Valid {
			s.Payout = payout.Decimal
		}
		stakes = append(stakes, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settled stakes: %w", err)
	}
	return stakes, nil
}

func queryStakes(ctx context.Context, q database.Querier, query string, args ...any) ([]models.SettledStake, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stakes: %w", err)
	}
	defer rows.Close()

	var stakes []models.SettledStake
	for rows.Next() {
		var (
			s       models.SettledStake
			betType string
		)
		err := rows.Scan(
			&s.RunID, &s.RaceID, &s.RaceDate, &s.Stake.HorseNumber, &s.Stake.HorseName, &betType,
			&s.Stake.Amount, &s.Stake.Odds, &s.Stake.WinProbability, &s.Stake.Confidence,
			&s.Stake.KellyFraction, &s.FinalScore,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stake: %w", err)
		}
		s.Stake.BetType = models.BetType(betType)
		s.Stake.RaceID = s.RaceID
		stakes = append(stakes, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stakes: %w", err)
	}
	return stakes, nil
}

// SettleStakes applies an outcome to open stakes
func SettleStakes(outcome models.RaceOutcome, open []models.SettledStake, now time.Time) []models.SettledStake {
	settled := make([]models.SettledStake, 0, len(open))
	for _, s := range open {
		s.Hit, s.Payout = outcome.Settle(s.Stake)
		s.SettledAt = now
		settled = append(settled, s)
	}
	return settled
}
