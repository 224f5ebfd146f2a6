package scoring

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// DarkHorseSubWeights weight the long-shot detection factors.
var DarkHorseSubWeights = map[string]float64{
	"market_inefficiency":  0.30,
	"hidden_ability":       0.25,
	"condition_change":     0.20,
	"jockey_trainer_combo": 0.15,
	"seasonal_factor":      0.10,
}

// Dark horse selection bounds
const (
	DarkHorseMinPopularity = 6
	DarkHorseMaxPopularity = 16
	DarkHorseMinOdds       = 8.0
	DarkHorseMaxOdds       = 50.0
	DarkHorseMinScore      = 60.0
	DarkHorseMinEV         = 0.5
	DarkHorseMinConfidence = 0.6
	maxDarkHorses          = 3
)

// DarkHorseAnalysis looks for under-backed runners with upside
type DarkHorseAnalysis struct {
	BaseScorer
}

// NewDarkHorseAnalysis creates the dark-horse module
func NewDarkHorseAnalysis(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *DarkHorseAnalysis {
	return &DarkHorseAnalysis{BaseScorer: newBaseScorer(models.ModuleDarkHorse, weights, DarkHorseSubWeights, provider, logger)}
}

// Score implements Scorer
func (d *DarkHorseAnalysis) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	upsets := make(map[int]int, len(race.Horses))

	scores, err := d.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, error) {
		factors, changes := darkHorseFactors(race, horse, past)
		upsets[horse.Number] = changes
		return factors, nil
	})
	if err != nil {
		return models.ModuleResult{}, err
	}

	var candidates []models.HorseScore
	var picks []models.DarkHorsePick
	for i, hs := range scores {
		if !IsDarkHorseCandidate(race.Horses[i]) {
			continue
		}
		candidates = append(candidates, hs)
		if hs.Degraded {
			continue
		}
		odds := race.Horses[i].EffectiveOdds()
		pick := models.DarkHorsePick{
			HorseScore:    hs,
			ExpectedValue: DarkHorseExpectedValue(hs.Score, odds),
			Confidence:    clamp(hs.Score/100*0.7+0.1*float64(min(upsets[hs.Number], 3)), 0, 1),
		}
		pick.Odds = odds
		if hs.Score >= DarkHorseMinScore && pick.ExpectedValue >= DarkHorseMinEV && pick.Confidence >= DarkHorseMinConfidence {
			picks = append(picks, pick)
		}
	}
	candidates = rankScores(candidates)
	sort.SliceStable(picks, func(i, j int) bool { return picks[i].Score > picks[j].Score })
	if len(picks) > maxDarkHorses {
		picks = picks[:maxDarkHorses]
	}

	details := &models.DarkHorseDetails{
		Scores:      rankScores(scores),
		Candidates:  candidates,
		Recommended: picks,
	}
	result := d.result(start, candidates, details)
	return result, nil
}

// IsDarkHorseCandidate reports whether a runner sits in the long-shot popularity and odds band.
func IsDarkHorseCandidate(h models.HorseEntry) bool {
	odds := h.EffectiveOdds()
	return h.Popularity >= DarkHorseMinPopularity && h.Popularity <= DarkHorseMaxPopularity &&
		odds >= DarkHorseMinOdds && odds <= DarkHorseMaxOdds
}

// DarkHorseExpectedValue estimates p*odds-1 with p capped at 30%.
func DarkHorseExpectedValue(score, odds float64) float64 {
	p := clamp(score/500, 0, 0.3)
	return p*odds - 1.0
}

// darkHorseFactors returns the factor scores and the number of favourable condition changes.
func darkHorseFactors(race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, int) {
	f := map[string]float64{
		"market_inefficiency":  models.NeutralScore,
		"hidden_ability":       models.NeutralScore,
		"condition_change":     models.NeutralScore,
		"jockey_trainer_combo": models.NeutralScore,
		"seasonal_factor":      models.NeutralScore,
	}

	ability := averageRaceScore(recent(past, 3))
	theo := clamp(float64(max(horse.Popularity, 1))*1.5, 3.0, 100) * 65 / clamp(ability, 1, 100)
	theo = clamp(theo, 1.5, 100)
	f["market_inefficiency"] = clamp((horse.EffectiveOdds()-theo)/theo*100, 0, 100)

	if len(past) == 0 {
		return f, 0
	}

	form := recent(past, formWindow)
	var placed int
	for _, r := range form {
		if r.Placed() {
			placed++
		}
	}
	goodRuns := clamp(float64(placed)*25+25, 0, 100)
	trend := 40.0
	if len(form) >= 2 && form[0].Finish > 0 {
		var prev []float64
		for _, r := range form[1:] {
			if r.Finish > 0 {
				prev = append(prev, float64(r.Finish))
			}
		}
		if len(prev) > 0 && float64(form[0].Finish) < mean(prev) {
			trend = 70
		}
	}
	untapped := 50.0
	if len(past) < 6 {
		untapped = 70
	}
	classPotential := 45.0
	if lvl := race.ClassLevel(); lvl > 0 && len(filter(past, func(r models.PerformanceRecord) bool { return r.Placed() && r.ClassLevel() >= lvl })) > 0 {
		classPotential = 80
	}
	f["hidden_ability"] = goodRuns*0.3 + trend*0.25 + untapped*0.25 + classPotential*0.2

	var changes int
	last := past[0]
	distScore := 50.0
	if distanceCategory(last.Distance) != distanceCategory(race.Distance) {
		distScore = 55
		if placeRate(filter(past, func(r models.PerformanceRecord) bool { return sameDistance(r.Distance, race.Distance) })) > 0 {
			distScore = 80
			changes++
		}
	}
	surfScore := 50.0
	if last.Surface != "" && !sameSurface(last.Surface, race.Surface) {
		surfScore = 55
		if placeRate(filter(past, func(r models.PerformanceRecord) bool { return sameSurface(r.Surface, race.Surface) })) > 0 {
			surfScore = 80
			changes++
		}
	}
	classScore := 50.0
	if lvl, lastLvl := race.ClassLevel(), last.ClassLevel(); lvl > 0 && lastLvl > 0 {
		switch {
		case lvl < lastLvl:
			classScore = 80
			changes++
		case lvl > lastLvl:
			classScore = 35
		}
	}
	trackScore := 50.0
	if isHeavyTrack(race.TrackCondition) && placeRate(filter(past, func(r models.PerformanceRecord) bool { return isHeavyTrack(r.TrackCondition) })) > 0 {
		trackScore = 80
	}
	if isLayoff(race, horse, last) {
		changes++
	}
	f["condition_change"] = distScore*0.4 + surfScore*0.3 + classScore*0.2 + trackScore*0.1

	combo := filter(past, func(r models.PerformanceRecord) bool { return r.Jockey == horse.Jockey })
	switch {
	case len(combo) > 0:
		f["jockey_trainer_combo"] = recordScore(combo)
	case last.Jockey != "" && last.Jockey != horse.Jockey:
		f["jockey_trainer_combo"] = 55
	}

	if !race.StartTime.IsZero() {
		season := seasonOf(race.StartTime)
		if same := filter(past, func(r models.PerformanceRecord) bool { return !r.Date.IsZero() && seasonOf(r.Date) == season }); len(same) > 0 {
			f["seasonal_factor"] = recordScore(same)
		}
	}
	return f, changes
}
