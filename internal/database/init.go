package database

import (
	"context"
	"fmt"

	"github.com/yourusername/keiba-line-bot/internal/config"
)

// Schema holds the tables used by the bot. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS past_performances (
		horse_key       TEXT        NOT NULL,
		race_date       DATE        NOT NULL,
		race_name       TEXT        NOT NULL DEFAULT '',
		track           TEXT        NOT NULL DEFAULT '',
		distance        INTEGER     NOT NULL DEFAULT 0,
		surface         TEXT        NOT NULL DEFAULT '',
		grade           TEXT        NOT NULL DEFAULT '',
		class           TEXT        NOT NULL DEFAULT '',
		track_condition TEXT        NOT NULL DEFAULT '',
		finish          INTEGER     NOT NULL DEFAULT 0,
		field_size      INTEGER     NOT NULL DEFAULT 0,
		odds            DOUBLE PRECISION NOT NULL DEFAULT 0,
		popularity      INTEGER     NOT NULL DEFAULT 0,
		jockey          TEXT        NOT NULL DEFAULT '',
		weight          DOUBLE PRECISION NOT NULL DEFAULT 0,
		final_stretch   DOUBLE PRECISION NOT NULL DEFAULT 0,
		margin          DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (horse_key, race_date, race_name)
	)`,
	`CREATE TABLE IF NOT EXISTS prediction_runs (
		run_id        UUID        PRIMARY KEY,
		race_date     TEXT        NOT NULL,
		status        TEXT        NOT NULL,
		quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		stake_total   NUMERIC(12,0) NOT NULL DEFAULT 0,
		payload       JSONB       NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prediction_runs_date ON prediction_runs (race_date, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS stake_recommendations (
		run_id          UUID        NOT NULL REFERENCES prediction_runs(run_id) ON DELETE CASCADE,
		race_id         TEXT        NOT NULL,
		race_date       DATE        NOT NULL,
		horse_number    INTEGER     NOT NULL,
		horse_name      TEXT        NOT NULL DEFAULT '',
		bet_type        TEXT        NOT NULL,
		amount          NUMERIC(12,0) NOT NULL,
		odds            DOUBLE PRECISION NOT NULL,
		win_probability DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
		kelly_fraction  DOUBLE PRECISION NOT NULL DEFAULT 0,
		final_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
		hit             BOOLEAN,
		payout          NUMERIC(12,0),
		settled_at      TIMESTAMPTZ,
		PRIMARY KEY (run_id, race_id, horse_number, bet_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stake_recommendations_race ON stake_recommendations (race_id)`,
	`CREATE TABLE IF NOT EXISTS race_outcomes (
		race_id         TEXT        PRIMARY KEY,
		race_date       DATE        NOT NULL,
		finish_order    INTEGER[]   NOT NULL,
		field_size      INTEGER     NOT NULL DEFAULT 0,
		win_payout      NUMERIC(12,0) NOT NULL DEFAULT 0,
		place_payouts   JSONB       NOT NULL DEFAULT '{}',
		exacta_payout   NUMERIC(12,0) NOT NULL DEFAULT 0,
		trifecta_payout NUMERIC(12,0) NOT NULL DEFAULT 0,
		recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Initialize creates a database connection pool and makes sure the schema exists
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema applies Schema inside one transaction
func EnsureSchema(ctx context.Context, db *DB) error {
	return db.WithTransaction(ctx, func(q Querier) error {
		return applySchema(ctx, q)
	})
}

func applySchema(ctx context.Context, q Querier) error {
	for i, stmt := range Schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
