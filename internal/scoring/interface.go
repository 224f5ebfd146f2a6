// Package scoring provides the race scorer modules that feed the prediction pipeline.
package scoring

import (
	"context"

	"github.com/yourusername/keiba-line-bot/internal/models"
)

// Scorer maps a race snapshot to a bounded module score
type Scorer interface {
	Name() models.ModuleName
	Weight() float64
	SubWeights() map[string]float64
	Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error)
}

// PerformanceProvider supplies deterministic past performances for a horse
type PerformanceProvider interface {
	PastPerformances(ctx context.Context, horse models.HorseEntry) ([]models.PerformanceRecord, error)
}

// SnapshotProvider serves the past performances already carried on the race card.
type SnapshotProvider struct{}

// PastPerformances returns horse.Past, most recent first.
func (SnapshotProvider) PastPerformances(_ context.Context, horse models.HorseEntry) ([]models.PerformanceRecord, error) {
	return sortedByDate(horse.Past), nil
}

// FallbackProvider consults Primary and falls back to the race card when it has nothing.
type FallbackProvider struct {
	Primary PerformanceProvider
}

// PastPerformances implements PerformanceProvider.
func (f FallbackProvider) PastPerformances(ctx context.Context, horse models.HorseEntry) ([]models.PerformanceRecord, error) {
	if f.Primary != nil {
		recs, err := f.Primary.PastPerformances(ctx, horse)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			return sortedByDate(recs), nil
		}
	}
	return sortedByDate(horse.Past), nil
}
