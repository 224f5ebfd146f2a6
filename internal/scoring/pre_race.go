package scoring

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// PreRaceSubWeights weight the last-minute information.
var PreRaceSubWeights = map[string]float64{
	"paddock_evaluation":  0.30,
	"weight_changes":      0.20,
	"last_minute_changes": 0.20,
	"weather_track":       0.15,
	"betting_moves":       0.15,
}

var paddockScores = map[string]float64{
	"excellent": 90, "a": 90, "◎": 90,
	"good": 75, "b": 75, "○": 75,
	"average": 60, "c": 60, "△": 60,
	"poor": 40, "d": 40,
	"very_poor": 20, "e": 20, "×": 20,
}

// PreRaceInfoAnalysis rates paddock, body weight and late market information
type PreRaceInfoAnalysis struct {
	BaseScorer
}

// NewPreRaceInfoAnalysis creates the pre-race module
func NewPreRaceInfoAnalysis(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *PreRaceInfoAnalysis {
	return &PreRaceInfoAnalysis{BaseScorer: newBaseScorer(models.ModulePreRaceInfo, weights, PreRaceSubWeights, provider, logger)}
}

// Score implements Scorer
func (p *PreRaceInfoAnalysis) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	scores, err := p.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, error) {
		return preRaceFactors(race, horse, past), nil
	})
	if err != nil {
		return models.ModuleResult{}, err
	}
	return p.result(start, scores, &models.FactorDetails{Scores: rankScores(scores)}), nil
}

// PaddockScore maps a paddock grade label to a score; unknown grades are neutral.
func PaddockScore(grade string) float64 {
	if s, ok := paddockScores[strings.ToLower(strings.TrimSpace(grade))]; ok {
		return s
	}
	return 60
}

// bodyWeightScore penalises large swings in declared body weight.
func bodyWeightScore(horse models.HorseEntry) float64 {
	if horse.BodyWeight == 0 {
		return 60
	}
	d := horse.BodyWeightChange
	switch {
	case d >= 2 && d <= 6:
		return 75
	case d > -4 && d < 2:
		return 70
	case d > 6 && d <= 10:
		return 55
	case d <= -4 && d > -10:
		return 50
	case d > 10:
		return 40
	}
	return 30
}

func preRaceFactors(race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) map[string]float64 {
	lastMinute := 60.0
	if len(past) > 0 && past[0].Jockey != "" && past[0].Jockey != horse.Jockey {
		lastMinute = 50
	}
	if len(past) > 0 && past[0].Weight > 0 {
		if d := horse.Weight - past[0].Weight; d <= -1 {
			lastMinute += 10
		} else if d >= 2 {
			lastMinute -= 10
		}
	}

	weather := 60.0
	if isHeavyTrack(race.TrackCondition) || strings.Contains(race.Weather, "雨") {
		heavy := filter(past, func(r models.PerformanceRecord) bool { return isHeavyTrack(r.TrackCondition) })
		switch {
		case len(heavy) > 0 && placeRate(heavy) > 0:
			weather = 80
		case len(heavy) > 0:
			weather = 40
		default:
			weather = 55
		}
	}

	betting := 60.0
	if horse.HasOdds() && horse.Popularity > 0 {
		ratio := horse.Odds / models.EstimateOdds(horse.Popularity)
		switch {
		case ratio < 0.8:
			betting = math.Min(90, 60+(0.8-ratio)*100)
		case ratio > 1.25:
			betting = 40
		}
	}

	return map[string]float64{
		"paddock_evaluation":  PaddockScore(horse.PaddockGrade),
		"weight_changes":      bodyWeightScore(horse),
		"last_minute_changes": lastMinute,
		"weather_track":       weather,
		"betting_moves":       betting,
	}
}
