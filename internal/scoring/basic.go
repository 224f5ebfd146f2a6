package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// BasicSubWeights are the ability components of the basic analysis.
var BasicSubWeights = map[string]float64{
	"last_race":      0.4,
	"recent_2":       0.3,
	"recent_3":       0.2,
	"same_condition": 0.1,
}

// Risk factor labels shown to users
const (
	RiskClassChallenge  = "格上挑戦"
	RiskDistanceUp      = "距離延長"
	RiskDistanceDown    = "距離短縮"
	RiskSurfaceChange   = "馬場変更"
	RiskLayoff          = "休み明け"
	RiskWeightIncrease  = "斤量増"
	maxFitnessAdjust    = 5.0
	distanceChangeDelta = 200
)

type rankBand struct {
	rank string
	min  float64
}

var rankBands = []rankBand{
	{"S+", 95}, {"S", 88}, {"A+", 82}, {"A", 75}, {"B+", 68}, {"B", 60}, {"C", 50}, {"D", 40}, {"E", 0},
}

// BasicAnalysis rates every runner from its recent form and fitness for today's conditions
type BasicAnalysis struct {
	BaseScorer
}

// NewBasicAnalysis creates the basic analysis module
func NewBasicAnalysis(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *BasicAnalysis {
	return &BasicAnalysis{BaseScorer: newBaseScorer(models.ModuleBasicAnalysis, weights, BasicSubWeights, provider, logger)}
}

type basicExtras struct {
	adjustment  float64
	riskFactors []string
}

// Score implements Scorer
func (a *BasicAnalysis) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	extras := make(map[int]basicExtras, len(race.Horses))

	scores, err := a.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, error) {
		extras[horse.Number] = basicExtras{
			adjustment:  fitnessAdjustment(race, horse, past),
			riskFactors: riskFactors(race, horse, past),
		}
		return abilityFactors(race, past), nil
	})
	if err != nil {
		return models.ModuleResult{}, err
	}

	rankings := make([]models.BasicRanking, 0, len(scores))
	for i, hs := range scores {
		ability := hs.Score
		ex := extras[hs.Number]
		if !hs.Degraded {
			hs.Score = models.ClampScore(ability + ex.adjustment)
		}
		odds := race.Horses[i].EffectiveOdds()
		band := theoreticalOdds(ability)
		market := marketValuation(odds, band)
		rank := scoreToRank(hs.Score)
		signal := investmentSignal(hs.Score, market)
		if hs.Degraded {
			rank, signal = "C", models.SignalAvoid
		}
		rankings = append(rankings, models.BasicRanking{
			HorseScore:      hs,
			AbilityScore:    ability,
			MarketScore:     market,
			Rank:            rank,
			Signal:          signal,
			TheoreticalOdds: band,
			RiskFactors:     ex.riskFactors,
		})
	}
	sortRankings(rankings)

	top := rankings
	if len(top) > 3 {
		top = top[:3]
	}
	details := &models.BasicDetails{
		Rankings:           rankings,
		TopRecommendations: append([]models.BasicRanking(nil), top...),
	}

	ranked := make([]models.HorseScore, 0, len(rankings))
	for _, r := range rankings {
		ranked = append(ranked, r.HorseScore)
	}
	return a.result(start, ranked, details), nil
}

// AttachChallenge returns a copy of a basic analysis result carrying the challenge sub-result.
func AttachChallenge(result models.ModuleResult, challenge *models.ChallengeDetails) models.ModuleResult {
	basic, ok := result.Details.(*models.BasicDetails)
	if !ok || challenge == nil {
		return result
	}
	copied := *basic
	copied.Challenge = challenge
	result.Details = &copied
	return result
}

func abilityFactors(race *models.RaceSnapshot, past []models.PerformanceRecord) map[string]float64 {
	if len(past) == 0 {
		return map[string]float64{
			"last_race":      models.NeutralScore,
			"recent_2":       models.NeutralScore,
			"recent_3":       models.NeutralScore,
			"same_condition": models.NeutralScore,
		}
	}
	same := filter(past, func(r models.PerformanceRecord) bool {
		return sameDistance(r.Distance, race.Distance) && sameSurface(r.Surface, race.Surface)
	})
	return map[string]float64{
		"last_race":      finishScore(past[0]),
		"recent_2":       averageRaceScore(recent(past, 2)),
		"recent_3":       averageRaceScore(recent(past, 3)),
		"same_condition": averageRaceScore(same),
	}
}

// fitnessAdjustment sums the distance, class, surface, jockey and going corrections.
func fitnessAdjustment(race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) float64 {
	if len(past) == 0 {
		return 0
	}
	var adj float64

	if dist := filter(past, func(r models.PerformanceRecord) bool { return sameDistance(r.Distance, race.Distance) }); len(dist) > 0 {
		adj += clamp((placeRate(dist)-0.33)*15, -maxFitnessAdjust, maxFitnessAdjust)
	}

	if surf := filter(past, func(r models.PerformanceRecord) bool { return sameSurface(r.Surface, race.Surface) }); len(surf) > 0 {
		adj += clamp((placeRate(surf)-0.33)*15, -maxFitnessAdjust, maxFitnessAdjust)
	} else {
		adj -= 3
	}

	if raceLvl, pastLvl := race.ClassLevel(), maxClassLevel(past); raceLvl > 0 && pastLvl > 0 {
		switch step := raceLvl - pastLvl; {
		case step <= 0:
			adj += 3
		case step == 1:
			adj -= 2
		default:
			adj -= maxFitnessAdjust
		}
	}

	for _, r := range past {
		if r.Jockey != "" && r.Jockey == horse.Jockey && r.Placed() {
			adj += 2
			break
		}
	}

	if isHeavyTrack(race.TrackCondition) {
		heavy := filter(past, func(r models.PerformanceRecord) bool { return isHeavyTrack(r.TrackCondition) })
		switch {
		case len(heavy) > 0 && placeRate(heavy) > 0:
			adj += 3
		case len(heavy) > 0:
			adj -= 3
		}
	}
	return adj
}

func riskFactors(race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) []string {
	var out []string
	if len(past) == 0 {
		if horse.DaysSinceLastRace >= layoffDays {
			out = append(out, RiskLayoff)
		}
		return out
	}
	last := past[0]

	if lvl, pastLvl := race.ClassLevel(), maxClassLevel(past); pastLvl > 0 && lvl > pastLvl {
		out = append(out, RiskClassChallenge)
	}
	if last.Distance > 0 {
		switch {
		case race.Distance > last.Distance+distanceChangeDelta:
			out = append(out, RiskDistanceUp)
		case race.Distance < last.Distance-distanceChangeDelta:
			out = append(out, RiskDistanceDown)
		}
	}
	if last.Surface != "" && !sameSurface(last.Surface, race.Surface) {
		out = append(out, RiskSurfaceChange)
	}
	if isLayoff(race, horse, last) {
		out = append(out, RiskLayoff)
	}
	if last.Weight > 0 && horse.Weight > last.Weight+1 {
		out = append(out, RiskWeightIncrease)
	}
	return out
}

func isLayoff(race *models.RaceSnapshot, horse models.HorseEntry, last models.PerformanceRecord) bool {
	if horse.DaysSinceLastRace > 0 {
		return horse.DaysSinceLastRace >= layoffDays
	}
	if race.StartTime.IsZero() || last.Date.IsZero() {
		return false
	}
	return race.StartTime.Sub(last.Date) >= layoffDays*24*time.Hour
}

func maxClassLevel(past []models.PerformanceRecord) int {
	lvl := 0
	for _, r := range past {
		if l := r.ClassLevel(); l > lvl {
			lvl = l
		}
	}
	return lvl
}

func theoreticalOdds(ability float64) models.OddsRange {
	switch {
	case ability >= 85:
		return models.OddsRange{Min: 1.5, Max: 3.0}
	case ability >= 75:
		return models.OddsRange{Min: 3.0, Max: 6.0}
	case ability >= 65:
		return models.OddsRange{Min: 6.0, Max: 12.0}
	}
	return models.OddsRange{Min: 12.0, Max: 50.0}
}

// marketValuation scores how fairly the market prices a horse given its theoretical band.
func marketValuation(odds float64, band models.OddsRange) float64 {
	switch {
	case odds > band.Max:
		return math.Min(100, 60+(odds-band.Max)*2)
	case odds < band.Min:
		return math.Max(20, 70-(band.Min-odds)*5)
	}
	return 70
}

func scoreToRank(score float64) string {
	for _, b := range rankBands {
		if score >= b.min {
			return b.rank
		}
	}
	return "E"
}

func investmentSignal(score, market float64) models.InvestmentSignal {
	switch {
	case score >= 85 && market >= 70:
		return models.SignalStrongBuy
	case score >= 75:
		return models.SignalBuy
	case score >= 60:
		return models.SignalHold
	}
	return models.SignalAvoid
}

func sortRankings(r []models.BasicRanking) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Score == r[j].Score {
			return r[i].Number < r[j].Number
		}
		return r[i].Score > r[j].Score
	})
}
