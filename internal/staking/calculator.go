// Package staking converts evaluated recommendations into Kelly-sized stake
// suggestions bounded by a daily budget.
package staking

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/config"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

const (
	minWinProbability = 0.01
	maxWinProbability = 0.5
	darkHorseDiscount = 0.7
	impliedPayout     = 0.8
	minKellyToBet     = 0.01

	placeOddsFactor   = 0.4
	maxPlaceProb      = 0.8
	placeStakeFactor  = 1.2
	exoticStakeFactor = 0.6

	exactaOddsFactor   = 3.0
	exactaProbFactor   = 0.35
	trifectaOddsFactor = 10.0
	trifectaProbFactor = 0.12
)

// Candidate is a horse eligible for staking
type Candidate struct {
	Number     int
	Name       string
	Score      float64
	Popularity int
	Odds       float64
	DarkHorse  bool
}

// Calculator sizes stakes with fractional Kelly
type Calculator struct {
	config *config.StakingConfig
	logger *logrus.Logger
}

// NewCalculator creates a new stake calculator
func NewCalculator(cfg *config.StakingConfig, logger *logrus.Logger) *Calculator {
	return &Calculator{config: cfg, logger: logger}
}

// ComputeStakes builds a stake plan for one budget from a race's module results.
func (c *Calculator) ComputeStakes(results []models.ModuleResult, budget decimal.Decimal) models.StakePlan {
	candidates := c.Candidates(results)
	if len(candidates) == 0 || !budget.IsPositive() {
		c.logger.WithField("budget", budget.String()).Info("No staking candidates, skipping investment")
		return models.NoInvestment(budget)
	}

	stakes := make([]models.StakeRecommendation, 0, len(candidates)*2)
	for _, cand := range candidates {
		stakes = append(stakes, c.candidateStakes(cand, budget)...)
	}
	if len(stakes) == 0 {
		c.logger.WithField("candidates", len(candidates)).Info("No stake passed the Kelly threshold")
		return models.NoInvestment(budget)
	}

	stakes = c.scaleToBudget(stakes, budget)
	stakes = c.limitHighRisk(stakes)
	stakes = c.fillBudget(stakes, budget)
	if len(stakes) == 0 {
		return models.NoInvestment(budget)
	}

	total := decimal.Zero
	for _, s := range stakes {
		total = total.Add(s.Amount)
	}

	c.logger.WithFields(logrus.Fields{
		"stakes": len(stakes),
		"total":  total.String(),
		"budget": budget.String(),
	}).Info("Stake plan computed")

	return models.StakePlan{
		Status:      models.StakePlanInvest,
		Stakes:      stakes,
		TotalAmount: total,
		Budget:      budget,
	}
}

// Candidates collects basic top recommendations and dark horse picks above
// their score floors. Basic analysis wins on duplicate horse numbers.
func (c *Calculator) Candidates(results []models.ModuleResult) []Candidate {
	var basic, dark []Candidate
	for _, r := range results {
		if !r.Completed() {
			continue
		}
		switch d := r.Details.(type) {
		case *models.BasicDetails:
			for _, rec := range d.TopRecommendations {
				if rec.Degraded || rec.Score < c.config.BasicMinScore {
					continue
				}
				basic = append(basic, candidateFrom(rec.HorseScore, false))
			}
		case *models.DarkHorseDetails:
			for _, pick := range d.Recommended {
				if pick.Degraded || pick.Score < c.config.DarkHorseMinScore {
					continue
				}
				dark = append(dark, candidateFrom(pick.HorseScore, true))
			}
		}
	}

	seen := make(map[int]bool, len(basic)+len(dark))
	out := make([]Candidate, 0, len(basic)+len(dark))
	for _, cand := range append(basic, dark...) {
		if seen[cand.Number] {
			continue
		}
		seen[cand.Number] = true
		out = append(out, cand)
	}
	return out
}

func candidateFrom(hs models.HorseScore, dark bool) Candidate {
	return Candidate{
		Number:     hs.Number,
		Name:       hs.Name,
		Score:      hs.Score,
		Popularity: hs.Popularity,
		Odds:       hs.Odds,
		DarkHorse:  dark,
	}
}

// candidateStakes sizes the win, place and exotic bets for one candidate.
func (c *Calculator) candidateStakes(cand Candidate, budget decimal.Decimal) []models.StakeRecommendation {
	odds := CandidateOdds(cand)
	p := WinProbability(cand)
	conf := Confidence(cand.Score, cand.Popularity)

	type leg struct {
		betType models.BetType
		odds    float64
		prob    float64
		mult    float64
	}
	legs := []leg{
		{models.BetTypeWin, odds, p, 1},
		{models.BetTypePlace, odds * placeOddsFactor, math.Min(maxPlaceProb, p*3), placeStakeFactor},
	}
	if conf >= c.config.ExoticMinConfidence {
		legs = append(legs,
			leg{models.BetTypeExacta, clamp(odds*exactaOddsFactor, 3, 500), p * exactaProbFactor, exoticStakeFactor},
			leg{models.BetTypeTrifecta, clamp(odds*trifectaOddsFactor, 10, 5000), p * trifectaProbFactor, exoticStakeFactor},
		)
	}

	var out []models.StakeRecommendation
	for _, l := range legs {
		kelly := c.KellyFraction(l.odds, l.prob)
		if kelly <= minKellyToBet {
			c.logger.WithFields(logrus.Fields{
				"horse":    cand.Number,
				"bet_type": l.betType,
				"odds":     l.odds,
				"prob":     l.prob,
				"kelly":    kelly,
			}).Debug("Kelly fraction below threshold, no bet recommended")
			continue
		}
		out = append(out, models.StakeRecommendation{
			HorseNumber:    cand.Number,
			HorseName:      cand.Name,
			BetType:        l.betType,
			Amount:         c.stakeAmount(budget, kelly*l.mult),
			Odds:           l.odds,
			WinProbability: l.prob,
			ExpectedValue:  l.prob*l.odds - 1,
			Confidence:     conf,
			Risk:           RiskTier(conf, l.odds),
			KellyFraction:  kelly,
			DarkHorse:      cand.DarkHorse,
		})
	}
	return out
}

// KellyFraction returns the fractional Kelly stake, bounded to [0, max_kelly_fraction].
func (c *Calculator) KellyFraction(odds, p float64) float64 {
	if odds <= 1 || p <= 0 {
		return 0
	}
	// f = (b*p - q) / b with b = odds - 1
	b := odds - 1
	full := (b*p - (1 - p)) / b
	return clamp(full*c.config.KellyModifier, 0, c.config.MaxKellyFraction)
}

// stakeAmount floors budget*fraction to the bet unit and clamps it to the bet limits.
func (c *Calculator) stakeAmount(budget decimal.Decimal, fraction float64) decimal.Decimal {
	raw := budget.Mul(decimal.NewFromFloat(fraction))
	return c.clampAmount(c.floorToUnit(raw))
}

func (c *Calculator) floorToUnit(v decimal.Decimal) decimal.Decimal {
	unit := decimal.NewFromFloat(c.config.BetUnit)
	return v.Div(unit).Floor().Mul(unit)
}

func (c *Calculator) clampAmount(v decimal.Decimal) decimal.Decimal {
	lo := decimal.NewFromFloat(c.config.MinBet)
	hi := decimal.NewFromFloat(c.config.MaxSingleBet)
	return decimal.Min(decimal.Max(v, lo), hi)
}

// SplitBudget divides budget evenly across n races, floored to the bet unit.
func (c *Calculator) SplitBudget(budget decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return c.floorToUnit(budget.Div(decimal.NewFromInt(int64(n))))
}

// scaleToBudget shrinks every stake proportionally when the plan exceeds the budget.
func (c *Calculator) scaleToBudget(stakes []models.StakeRecommendation, budget decimal.Decimal) []models.StakeRecommendation {
	total := decimal.Zero
	for _, s := range stakes {
		total = total.Add(s.Amount)
	}
	if total.LessThanOrEqual(budget) {
		return stakes
	}

	ratio := budget.Div(total)
	minBet := decimal.NewFromFloat(c.config.MinBet)
	for i := range stakes {
		stakes[i].Amount = decimal.Max(c.floorToUnit(stakes[i].Amount.Mul(ratio)), minBet)
	}
	c.logger.WithFields(logrus.Fields{
		"total":  total.String(),
		"budget": budget.String(),
		"ratio":  ratio.StringFixed(4),
	}).Debug("Scaled stakes down to budget")
	return stakes
}

// limitHighRisk keeps at most max_high_risk_bets high-risk stakes, dropping the least confident.
func (c *Calculator) limitHighRisk(stakes []models.StakeRecommendation) []models.StakeRecommendation {
	var high []int
	for i, s := range stakes {
		if s.Risk == models.RiskHigh {
			high = append(high, i)
		}
	}
	if len(high) <= c.config.MaxHighRiskBets {
		return stakes
	}

	sort.SliceStable(high, func(a, b int) bool {
		return stakes[high[a]].Confidence > stakes[high[b]].Confidence
	})
	drop := make(map[int]bool, len(high)-c.config.MaxHighRiskBets)
	for _, idx := range high[c.config.MaxHighRiskBets:] {
		drop[idx] = true
	}

	out := make([]models.StakeRecommendation, 0, len(stakes)-len(drop))
	for i, s := range stakes {
		if !drop[i] {
			out = append(out, s)
		}
	}
	return out
}

// fillBudget walks stakes by confidence, trimming the last affordable one to what
// is left and dropping anything that no longer fits.
func (c *Calculator) fillBudget(stakes []models.StakeRecommendation, budget decimal.Decimal) []models.StakeRecommendation {
	sort.SliceStable(stakes, func(i, j int) bool {
		return stakes[i].Confidence > stakes[j].Confidence
	})

	minBet := decimal.NewFromFloat(c.config.MinBet)
	remaining := budget
	out := make([]models.StakeRecommendation, 0, len(stakes))
	for _, s := range stakes {
		if remaining.LessThan(minBet) {
			break
		}
		if s.Amount.GreaterThan(remaining) {
			s.Amount = c.floorToUnit(remaining)
			if s.Amount.LessThan(minBet) {
				continue
			}
		}
		remaining = remaining.Sub(s.Amount)
		out = append(out, s)
	}
	return out
}

// CandidateOdds returns live odds when quoted, otherwise the popularity estimate.
func CandidateOdds(cand Candidate) float64 {
	if cand.Odds > 1 {
		return cand.Odds
	}
	return models.EstimateOdds(cand.Popularity)
}

// WinProbability estimates a win probability from the blended score refined by
// the popularity-implied probability.
func WinProbability(cand Candidate) float64 {
	implied := impliedPayout / models.EstimateOdds(cand.Popularity)
	p := cand.Score/1000 + implied*cand.Score/100
	if cand.DarkHorse {
		p *= darkHorseDiscount
	}
	return clamp(p, minWinProbability, maxWinProbability)
}

// Confidence maps a score and popularity rank onto [0.1, 1].
func Confidence(score float64, popularity int) float64 {
	adj := -0.1
	switch {
	case popularity >= 1 && popularity <= 3:
		adj = 0.1
	case popularity >= 1 && popularity <= 6:
		adj = 0
	}
	return clamp(score/100+adj, 0.1, 1)
}

// RiskTier classifies a stake by confidence and odds.
func RiskTier(confidence, odds float64) models.RiskLevel {
	switch {
	case confidence >= 0.8 && odds <= 5:
		return models.RiskLow
	case confidence >= 0.6 && odds <= 15:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
