package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// horseFunc computes the raw sub-factor scores for one horse.
type horseFunc func(ctx context.Context, race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, error)

// BaseScorer provides the shared per-horse loop, failure isolation and blending
type BaseScorer struct {
	name       models.ModuleName
	weight     float64
	subWeights map[string]float64
	provider   PerformanceProvider
	logger     *logrus.Logger
}

func newBaseScorer(name models.ModuleName, weights *Weights, sub map[string]float64, provider PerformanceProvider, logger *logrus.Logger) BaseScorer {
	if provider == nil {
		provider = SnapshotProvider{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	var w float64
	if weights != nil {
		w = weights.Of(name)
	}
	return BaseScorer{
		name:       name,
		weight:     w,
		subWeights: sub,
		provider:   provider,
		logger:     logger,
	}
}

// Name returns the module identifier
func (b *BaseScorer) Name() models.ModuleName {
	return b.name
}

// Weight returns the module's system weight
func (b *BaseScorer) Weight() float64 {
	return b.weight
}

// SubWeights returns a copy of the sub-factor weight table
func (b *BaseScorer) SubWeights() map[string]float64 {
	out := make(map[string]float64, len(b.subWeights))
	for k, v := range b.subWeights {
		out[k] = v
	}
	return out
}

// scoreHorses runs fn for every horse. A failing horse gets the neutral score;
// only context cancellation fails the module.
func (b *BaseScorer) scoreHorses(ctx context.Context, race *models.RaceSnapshot, fn horseFunc) ([]models.HorseScore, error) {
	scores := make([]models.HorseScore, 0, len(race.Horses))
	for _, horse := range race.Horses {
		if err := ctx.Err(); err != nil {
			return nil, models.NewPipelineError(models.ErrTimeout, b.name, "scoring interrupted", err)
		}
		scores = append(scores, b.scoreHorse(ctx, race, horse, fn))
	}
	if err := ctx.Err(); err != nil {
		return nil, models.NewPipelineError(models.ErrTimeout, b.name, "scoring interrupted", err)
	}
	return scores, nil
}

func (b *BaseScorer) scoreHorse(ctx context.Context, race *models.RaceSnapshot, horse models.HorseEntry, fn horseFunc) (hs models.HorseScore) {
	hs = models.HorseScore{
		Number:     horse.Number,
		Name:       horse.Name,
		Popularity: horse.Popularity,
		Odds:       horse.Odds,
	}

	defer func() {
		if r := recover(); r != nil {
			b.degrade(&hs, fmt.Errorf("panic: %v", r))
		}
	}()

	past, err := b.provider.PastPerformances(ctx, horse)
	if err != nil {
		b.degrade(&hs, err)
		return hs
	}

	factors, err := fn(ctx, race, horse, past)
	if err != nil {
		b.degrade(&hs, err)
		return hs
	}

	hs.Factors = make(map[string]float64, len(factors))
	for k, v := range factors {
		hs.Factors[k] = models.ClampScore(v)
	}
	hs.Score = blend(hs.Factors, b.subWeights)
	return hs
}

func (b *BaseScorer) degrade(hs *models.HorseScore, err error) {
	perr := models.NewPipelineError(models.ErrSubAnalysisFailure, b.name, "horse "+hs.Name, err)
	b.logger.WithFields(logrus.Fields{
		"module":       b.name,
		"horse_number": hs.Number,
		"horse_name":   hs.Name,
		"error":        perr.Error(),
	}).Warn("Sub-analysis failed, substituting neutral score")
	hs.Score = models.NeutralScore
	hs.Factors = nil
	hs.Degraded = true
}

// result builds the completed module result from per-horse scores.
func (b *BaseScorer) result(start time.Time, scores []models.HorseScore, details models.ModuleDetails) models.ModuleResult {
	score := moduleScore(scores)
	b.logger.WithFields(logrus.Fields{
		"module":   b.name,
		"score":    score,
		"horses":   len(scores),
		"duration": time.Since(start).String(),
	}).Debug("Module scored")
	return models.NewCompletedResult(b.name, b.weight, score, details, time.Since(start))
}

// blend combines clamped factors with their weights. Missing factors count as neutral.
func blend(factors map[string]float64, weights map[string]float64) float64 {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var total float64
	for _, name := range names {
		w := weights[name]
		v, ok := factors[name]
		if !ok {
			v = models.NeutralScore
		}
		total += w * models.ClampScore(v)
	}
	return models.ClampScore(total)
}

// moduleScore is the mean of the three best horse scores, neutral when empty.
func moduleScore(scores []models.HorseScore) float64 {
	if len(scores) == 0 {
		return models.NeutralScore
	}
	vals := make([]float64, 0, len(scores))
	for _, s := range scores {
		vals = append(vals, s.Score)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	if len(vals) > 3 {
		vals = vals[:3]
	}
	return models.ClampScore(mean(vals))
}

// rankScores orders horse scores best first, ties by horse number.
func rankScores(scores []models.HorseScore) []models.HorseScore {
	out := make([]models.HorseScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Number < out[j].Number
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// fieldHistory loads every runner's past performances; runners whose lookup fails are skipped.
func (b *BaseScorer) fieldHistory(ctx context.Context, race *models.RaceSnapshot) map[int][]models.PerformanceRecord {
	out := make(map[int][]models.PerformanceRecord, len(race.Horses))
	for _, horse := range race.Horses {
		past, err := b.provider.PastPerformances(ctx, horse)
		if err != nil {
			continue
		}
		out[horse.Number] = past
	}
	return out
}
