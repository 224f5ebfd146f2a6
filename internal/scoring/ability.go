package scoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// AbilitySubWeights weight the racing ability components.
var AbilitySubWeights = map[string]float64{
	"speed":               0.25,
	"stamina":             0.20,
	"acceleration":        0.15,
	"cornering":           0.10,
	"racing_sense":        0.10,
	"pressure_resistance": 0.10,
	"seasonal_form":       0.10,
}

// expected place rate for an average runner, by class level
var classPlaceExpectation = map[int]float64{
	1: 0.60, 2: 0.50, 3: 0.45, 4: 0.40, 5: 0.35, 6: 0.30, 7: 0.25, 8: 0.20,
}

const (
	fastFinalStretch = 33.0
	formWindow       = 5
)

// AbilityAnalysis rates speed, stamina and racecraft from past runs
type AbilityAnalysis struct {
	BaseScorer
}

// NewAbilityAnalysis creates the ability module
func NewAbilityAnalysis(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *AbilityAnalysis {
	return &AbilityAnalysis{BaseScorer: newBaseScorer(models.ModuleAbilityAnalysis, weights, AbilitySubWeights, provider, logger)}
}

// Score implements Scorer
func (a *AbilityAnalysis) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	scores, err := a.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, _ models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, error) {
		return abilityComponents(race, past), nil
	})
	if err != nil {
		return models.ModuleResult{}, err
	}
	return a.result(start, scores, &models.FactorDetails{Scores: rankScores(scores)}), nil
}

func abilityComponents(race *models.RaceSnapshot, past []models.PerformanceRecord) map[string]float64 {
	f := map[string]float64{
		"speed":               models.NeutralScore,
		"stamina":             models.NeutralScore,
		"acceleration":        models.NeutralScore,
		"cornering":           models.NeutralScore,
		"racing_sense":        models.NeutralScore,
		"pressure_resistance": models.NeutralScore,
		"seasonal_form":       models.NeutralScore,
	}
	if len(past) == 0 {
		return f
	}
	form := recent(past, formWindow)

	if short := filter(form, func(r models.PerformanceRecord) bool { return r.Distance <= race.Distance+distanceChangeDelta }); len(short) > 0 {
		vals := make([]float64, len(short))
		for i, r := range short {
			vals[i] = finishScore(r)
		}
		f["speed"] = mean(vals)
	}

	if long := filter(past, func(r models.PerformanceRecord) bool { return r.Distance >= race.Distance-distanceChangeDelta }); len(long) > 0 {
		f["stamina"] = recordScore(long)
	}

	var stretch []float64
	for _, r := range form {
		if r.FinalStretch > 0 {
			stretch = append(stretch, r.FinalStretch)
		}
	}
	if len(stretch) > 0 {
		f["acceleration"] = clamp(95-(mean(stretch)-fastFinalStretch)*13, 0, 100)
	}

	if track := filter(past, func(r models.PerformanceRecord) bool { return r.Track != "" && r.Track == race.Track }); len(track) > 0 {
		f["cornering"] = recordScore(track)
	}

	f["racing_sense"] = consistency(form)

	if lvl := race.ClassLevel(); lvl > 0 {
		if high := filter(past, func(r models.PerformanceRecord) bool { return r.ClassLevel() >= lvl }); len(high) > 0 {
			f["pressure_resistance"] = clamp(models.NeutralScore+(placeRate(high)-classPlaceExpectation[lvl])*100, 0, 100)
		}
	}

	if !race.StartTime.IsZero() {
		season := seasonOf(race.StartTime)
		if same := filter(past, func(r models.PerformanceRecord) bool { return !r.Date.IsZero() && seasonOf(r.Date) == season }); len(same) > 0 {
			f["seasonal_form"] = recordScore(same)
		}
	}
	return f
}

func seasonOf(t time.Time) string {
	switch t.Month() {
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	case time.September, time.October, time.November:
		return "autumn"
	}
	return "winter"
}
