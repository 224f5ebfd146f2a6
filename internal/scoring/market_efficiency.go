package scoring

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// MarketEfficiencySubWeights weight the market pricing signals.
var MarketEfficiencySubWeights = map[string]float64{
	"odds_value_gap":   0.40,
	"betting_patterns": 0.25,
	"market_sentiment": 0.20,
	"odds_movement":    0.15,
}

// Value ratio thresholds
const (
	ValueExcellent  = 1.5
	ValueGood       = 1.2
	ValueFair       = 0.8
	ValueOvervalued = 0.6

	// share of the pool returned to bettors after the JRA takeout on win bets
	winPoolPayout = 0.8
)

// MarketEfficiencyAnalysis compares market odds with a popularity-based fair price
type MarketEfficiencyAnalysis struct {
	BaseScorer
}

// NewMarketEfficiencyAnalysis creates the market-efficiency module
func NewMarketEfficiencyAnalysis(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *MarketEfficiencyAnalysis {
	return &MarketEfficiencyAnalysis{BaseScorer: newBaseScorer(models.ModuleMarketEfficiency, weights, MarketEfficiencySubWeights, provider, logger)}
}

// Score implements Scorer
func (m *MarketEfficiencyAnalysis) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	scores, err := m.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, horse models.HorseEntry, _ []models.PerformanceRecord) (map[string]float64, error) {
		return marketFactors(race, horse), nil
	})
	if err != nil {
		return models.ModuleResult{}, err
	}

	var values []models.ValueHorse
	var gaps []float64
	for i, hs := range scores {
		horse := race.Horses[i]
		fair := FairOdds(horse.Popularity, race.HorseCount())
		ratio := horse.EffectiveOdds() / fair
		gaps = append(gaps, math.Abs(ratio-1))
		if hs.Degraded || ratio < ValueGood || hs.Score < 60 {
			continue
		}
		values = append(values, models.ValueHorse{
			Number:     horse.Number,
			Name:       horse.Name,
			FairOdds:   fair,
			MarketOdds: horse.EffectiveOdds(),
			ValueRatio: ratio,
			Rating:     valueRating(ratio),
		})
	}

	details := &models.MarketDetails{
		Scores:      rankScores(scores),
		ValueHorses: values,
		Efficiency:  clamp(100-mean(gaps)*100, 0, 100),
	}
	return m.result(start, scores, details), nil
}

// TheoreticalWinRate estimates a win rate from popularity, adjusted for field size.
func TheoreticalWinRate(popularity, fieldSize int) float64 {
	if popularity <= 0 {
		popularity = 10
	}
	base := math.Max(0.01, 0.5-float64(popularity-1)*0.03)
	adjust := math.Min(1.2, 18/math.Max(8, float64(fieldSize)))
	return clamp(base*adjust, 0.01, 0.8)
}

// FairOdds is the reciprocal of the theoretical win rate.
func FairOdds(popularity, fieldSize int) float64 {
	return 1.0 / TheoreticalWinRate(popularity, fieldSize)
}

func valueRating(ratio float64) string {
	switch {
	case ratio >= ValueExcellent:
		return "excellent_value"
	case ratio >= ValueGood:
		return "good_value"
	case ratio >= ValueFair:
		return "fair_value"
	}
	return "overvalued"
}

func marketFactors(race *models.RaceSnapshot, horse models.HorseEntry) map[string]float64 {
	odds := horse.EffectiveOdds()
	ratio := odds / FairOdds(horse.Popularity, race.HorseCount())

	support := math.Max(0.01, 0.3-float64(horse.Popularity)*0.02)
	if horse.HasOdds() {
		support = winPoolPayout / horse.Odds
	}

	movement := models.NeutralScore
	if horse.MorningOdds > 1 && horse.HasOdds() {
		change := (horse.Odds - horse.MorningOdds) / horse.MorningOdds
		switch {
		case change < -0.05:
			movement += math.Min(25, math.Abs(change)*100)
		case change > 0.05:
			movement -= math.Min(25, math.Abs(change)*50)
		}
	}

	return map[string]float64{
		"odds_value_gap":   (ratio - 0.5) * 50,
		"betting_patterns": math.Min(100, support*300),
		"market_sentiment": popularityScore(horse.Popularity, race.HorseCount())*0.5 + 25,
		"odds_movement":    movement,
	}
}
