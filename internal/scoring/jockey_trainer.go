package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// JockeyTrainerSubWeights weight the connections analysis.
var JockeyTrainerSubWeights = map[string]float64{
	"combination_history":    0.35,
	"individual_performance": 0.25,
	"recent_form":            0.20,
	"distance_surface_fit":   0.20,
}

// jockey win-rate thresholds: excellent, good, average, poor
var jockeyWinRateThresholds = [4]float64{0.25, 0.18, 0.12, 0.08}

const minJockeySample = 3

// JockeyTrainerAnalysis rates the jockey and stable connections of each runner
type JockeyTrainerAnalysis struct {
	BaseScorer
}

// NewJockeyTrainerAnalysis creates the jockey-trainer module
func NewJockeyTrainerAnalysis(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *JockeyTrainerAnalysis {
	return &JockeyTrainerAnalysis{BaseScorer: newBaseScorer(models.ModuleJockeyTrainer, weights, JockeyTrainerSubWeights, provider, logger)}
}

// Score implements Scorer
func (j *JockeyTrainerAnalysis) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	history := j.fieldHistory(ctx, race)
	pool := jockeyPool(history)

	scores, err := j.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, error) {
		return connectionFactors(race, horse, past, pool[horse.Jockey]), nil
	})
	if err != nil {
		return models.ModuleResult{}, err
	}

	var notes []string
	for i, hs := range scores {
		horse := race.Horses[i]
		if hs.Degraded {
			continue
		}
		combo := filter(history[horse.Number], func(r models.PerformanceRecord) bool { return r.Jockey == horse.Jockey })
		if len(combo) >= 2 && winRate(combo) >= jockeyWinRateThresholds[0] {
			notes = append(notes, fmt.Sprintf("%s×%s 好相性 (%d戦)", horse.Jockey, horse.Name, len(combo)))
		}
	}

	return j.result(start, scores, &models.FactorDetails{Scores: rankScores(scores), Notes: notes}), nil
}

// jockeyPool groups every past run in the field by jockey.
func jockeyPool(history map[int][]models.PerformanceRecord) map[string][]models.PerformanceRecord {
	pool := make(map[string][]models.PerformanceRecord)
	for _, recs := range history {
		for _, r := range recs {
			if r.Jockey == "" {
				continue
			}
			pool[r.Jockey] = append(pool[r.Jockey], r)
		}
	}
	for k, v := range pool {
		pool[k] = sortedByDate(v)
	}
	return pool
}

func connectionFactors(race *models.RaceSnapshot, horse models.HorseEntry, past, jockeyRuns []models.PerformanceRecord) map[string]float64 {
	factors := map[string]float64{
		"combination_history":    models.NeutralScore,
		"individual_performance": models.NeutralScore,
		"recent_form":            models.NeutralScore,
		"distance_surface_fit":   models.NeutralScore,
	}

	combo := filter(past, func(r models.PerformanceRecord) bool { return r.Jockey == horse.Jockey })
	if len(combo) > 0 {
		factors["combination_history"] = (rateScore(winRate(combo), jockeyWinRateThresholds) + recordScore(combo)) / 2
	}

	if len(jockeyRuns) >= minJockeySample {
		factors["individual_performance"] = rateScore(winRate(jockeyRuns), jockeyWinRateThresholds)
		factors["recent_form"] = averageRaceScore(recent(jockeyRuns, 5))
	}

	fit := filter(combo, func(r models.PerformanceRecord) bool {
		return sameDistance(r.Distance, race.Distance) || sameSurface(r.Surface, race.Surface)
	})
	if len(fit) == 0 {
		fit = filter(jockeyRuns, func(r models.PerformanceRecord) bool {
			return sameDistance(r.Distance, race.Distance) && sameSurface(r.Surface, race.Surface)
		})
	}
	if len(fit) > 0 {
		factors["distance_surface_fit"] = recordScore(fit)
	}
	return factors
}
