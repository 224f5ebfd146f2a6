package scoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// PerformanceRateSubWeights weight the win/place record breakdowns.
var PerformanceRateSubWeights = map[string]float64{
	"overall_rate":  0.20,
	"distance_rate": 0.25,
	"surface_rate":  0.20,
	"class_rate":    0.15,
	"recent_form":   0.15,
	"consistency":   0.05,
}

type rateThreshold struct {
	win, place, score float64
}

var recordThresholds = []rateThreshold{
	{0.25, 0.60, 90},
	{0.18, 0.45, 78},
	{0.12, 0.35, 65},
	{0.08, 0.25, 52},
}

// PerformanceRateAnalysis rates win and place strike rates by condition
type PerformanceRateAnalysis struct {
	BaseScorer
}

// NewPerformanceRateAnalysis creates the performance-rate module
func NewPerformanceRateAnalysis(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *PerformanceRateAnalysis {
	return &PerformanceRateAnalysis{BaseScorer: newBaseScorer(models.ModulePerformanceRate, weights, PerformanceRateSubWeights, provider, logger)}
}

// Score implements Scorer
func (p *PerformanceRateAnalysis) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	scores, err := p.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, _ models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, error) {
		return rateFactors(race, past), nil
	})
	if err != nil {
		return models.ModuleResult{}, err
	}
	return p.result(start, scores, &models.FactorDetails{Scores: rankScores(scores)}), nil
}

// strikeRateScore rates a set of runs by win and place strike rate.
func strikeRateScore(recs []models.PerformanceRecord) float64 {
	if len(recs) == 0 {
		return models.NeutralScore
	}
	win, place := winRate(recs), placeRate(recs)
	for _, t := range recordThresholds {
		if win >= t.win || place >= t.place {
			return t.score
		}
	}
	return 40
}

func rateFactors(race *models.RaceSnapshot, past []models.PerformanceRecord) map[string]float64 {
	lvl := race.ClassLevel()
	return map[string]float64{
		"overall_rate": strikeRateScore(past),
		"distance_rate": strikeRateScore(filter(past, func(r models.PerformanceRecord) bool {
			return distanceCategory(r.Distance) == distanceCategory(race.Distance)
		})),
		"surface_rate": strikeRateScore(filter(past, func(r models.PerformanceRecord) bool {
			return sameSurface(r.Surface, race.Surface)
		})),
		"class_rate": strikeRateScore(filter(past, func(r models.PerformanceRecord) bool {
			return lvl > 0 && r.ClassLevel() >= lvl
		})),
		"recent_form": averageRaceScore(recent(past, 3)),
		"consistency": consistency(recent(past, formWindow)),
	}
}
