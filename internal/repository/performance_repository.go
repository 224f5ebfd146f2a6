package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/keiba-line-bot/internal/database"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// pastPerformanceLimit caps the runs returned per horse; scorers only look at recent form.
const pastPerformanceLimit = 10

var performanceColumns = []string{
	"horse_key", "race_date", "race_name", "track", "distance", "surface", "grade", "class",
	"track_condition", "finish", "field_size", "odds", "popularity", "jockey", "weight",
	"final_stretch", "margin",
}

// PostgresPerformanceRepository implements PerformanceRepository for PostgreSQL.
// It also satisfies scoring.PerformanceProvider.
type PostgresPerformanceRepository struct {
	db *database.DB
}

// NewPostgresPerformanceRepository creates a new past performance repository
func NewPostgresPerformanceRepository(db *database.DB) *PostgresPerformanceRepository {
	return &PostgresPerformanceRepository{db: db}
}

// PastPerformances returns the most recent runs of a horse, newest first
func (r *PostgresPerformanceRepository) PastPerformances(ctx context.Context, horse models.HorseEntry) ([]models.PerformanceRecord, error) {
	query := `
		SELECT race_date, race_name, track, distance, surface, grade, class, track_condition,
		       finish, field_size, odds, popularity, jockey, weight, final_stretch, margin
		FROM past_performances
		WHERE horse_key = $1
		ORDER BY race_date DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, horse.Key(), pastPerformanceLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query past performances: %w", err)
	}
	defer rows.Close()

	var records []models.PerformanceRecord
	for rows.Next() {
		var p models.PerformanceRecord
		err := rows.Scan(
			&p.Date, &p.RaceName, &p.Track, &p.Distance, &p.Surface, &p.Grade, &p.Class,
			&p.TrackCondition, &p.Finish, &p.FieldSize, &p.Odds, &p.Popularity, &p.Jockey,
			&p.Weight, &p.FinalStretch, &p.Margin,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan past performance: %w", err)
		}
		records = append(records, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating past performances: %w", err)
	}

	return records, nil
}

// InsertBatch replaces the given runs of a horse using a bulk COPY.
// Runs already stored for the same dates are removed first so re-ingesting a day is idempotent.
func (r *PostgresPerformanceRepository) InsertBatch(ctx context.Context, horseKey string, records []models.PerformanceRecord) error {
	if len(records) == 0 {
		return nil
	}

	dates, rows := performanceRows(horseKey, records)

	tx, err := r.db.GetPool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM past_performances WHERE horse_key = $1 AND race_date = ANY($2)`, horseKey, dates); err != nil {
		return fmt.Errorf("failed to clear past performances: %w", err)
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"past_performances"},
		performanceColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to batch insert past performances: %w", err)
	}
	if copyCount != int64(len(rows)) {
		return fmt.Errorf("inserted %d rows, expected %d", copyCount, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit past performances: %w", err)
	}
	return nil
}

// performanceRows converts records to COPY rows, dropping duplicate (date, race) pairs
// that would violate the primary key.
func performanceRows(horseKey string, records []models.PerformanceRecord) ([]time.Time, [][]any) {
	type key struct {
		day  string
		race string
	}
	seen := make(map[key]bool, len(records))
	seenDay := make(map[string]bool, len(records))

	var dates []time.Time
	rows := make([][]any, 0, len(records))
	for _, p := range records {
		day := p.Date.Format("2006-01-02")
		k := key{day, p.RaceName}
		if seen[k] {
			continue
		}
		seen[k] = true
		if !seenDay[day] {
			seenDay[day] = true
			dates = append(dates, p.Date)
		}
		rows = append(rows, []any{
			horseKey, p.Date, p.RaceName, p.Track, p.Distance, p.Surface, p.Grade, p.Class,
			p.TrackCondition, p.Finish, p.FieldSize, p.Odds, p.Popularity, p.Jockey, p.Weight,
			p.FinalStretch, p.Margin,
		})
	}
	return dates, rows
}
