package models

import (
	"math"
	"time"
)

// ModuleName identifies a scorer module
type ModuleName string

const (
	ModuleBasicAnalysis     ModuleName = "basic_analysis"
	ModuleJockeyTrainer     ModuleName = "jockey_trainer"
	ModuleAbilityAnalysis   ModuleName = "ability_analysis"
	ModuleBloodline         ModuleName = "bloodline"
	ModulePerformanceRate   ModuleName = "performance_rate"
	ModuleDarkHorse         ModuleName = "dark_horse"
	ModulePreRaceInfo       ModuleName = "pre_race_info"
	ModuleMarketEfficiency  ModuleName = "market_efficiency"
	ModuleChallengeJudgment ModuleName = "challenge_judgment"
)

// ModuleStatus is the terminal state of a module run
type ModuleStatus string

const (
	ModuleStatusCompleted ModuleStatus = "completed"
	ModuleStatusError     ModuleStatus = "error"
)

// NeutralScore is substituted whenever a module or horse has nothing usable to score.
const NeutralScore = 50.0

// ModuleResult is the immutable output of one scorer module for one snapshot
type ModuleResult struct {
	Module        ModuleName    `json:"module"`
	Weight        float64       `json:"weight"`
	Score         float64       `json:"score"`
	Details       ModuleDetails `json:"details,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Status        ModuleStatus  `json:"status"`
	Error         string        `json:"error,omitempty"`
}

// NewCompletedResult builds a completed result with the score clamped to [0,100].
func NewCompletedResult(module ModuleName, weight, score float64, details ModuleDetails, elapsed time.Duration) ModuleResult {
	return ModuleResult{
		Module:        module,
		Weight:        weight,
		Score:         ClampScore(score),
		Details:       details,
		ExecutionTime: elapsed,
		Status:        ModuleStatusCompleted,
	}
}

// NewErrorResult builds an error result. The score is zero and the weight is kept.
func NewErrorResult(module ModuleName, weight float64, err error, elapsed time.Duration) ModuleResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ModuleResult{
		Module:        module,
		Weight:        weight,
		Score:         0,
		ExecutionTime: elapsed,
		Status:        ModuleStatusError,
		Error:         msg,
	}
}

// Completed reports whether the module finished without error.
func (m ModuleResult) Completed() bool {
	return m.Status == ModuleStatusCompleted
}

// HorseScores returns the per-horse scores carried by the details, if any.
func (m ModuleResult) HorseScores() []HorseScore {
	if m.Details == nil || !m.Completed() {
		return nil
	}
	return m.Details.Horses()
}

// ClampScore bounds a score to [0,100]; NaN becomes 0.
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// HorseScore is a single horse's score within one module
type HorseScore struct {
	Number     int                `json:"horse_number"`
	Name       string             `json:"horse_name"`
	Score      float64            `json:"score"`
	Popularity int                `json:"popularity"`
	Odds       float64            `json:"odds"`
	Factors    map[string]float64 `json:"factors,omitempty"`
	Degraded   bool               `json:"degraded,omitempty"`
}

// ModuleDetails is the closed set of per-module detail records.
type ModuleDetails interface {
	Horses() []HorseScore
	moduleDetails()
}

// FactorDetails is the detail record shared by modules that only report per-horse factors.
type FactorDetails struct {
	Scores []HorseScore `json:"scores"`
	Notes  []string     `json:"notes,omitempty"`
}

func (d *FactorDetails) Horses() []HorseScore { return d.Scores }
func (d *FactorDetails) moduleDetails()       {}

// InvestmentSignal is the basic analysis buy signal
type InvestmentSignal string

const (
	SignalStrongBuy InvestmentSignal = "STRONG_BUY"
	SignalBuy       InvestmentSignal = "BUY"
	SignalHold      InvestmentSignal = "HOLD"
	SignalAvoid     InvestmentSignal = "AVOID"
)

// OddsRange is a theoretical odds band
type OddsRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// BasicRanking is one horse's row in the basic analysis ranking
type BasicRanking struct {
	HorseScore
	AbilityScore    float64          `json:"ability_score"`
	MarketScore     float64          `json:"market_score"`
	Rank            string           `json:"rank"`
	Signal          InvestmentSignal `json:"signal"`
	TheoreticalOdds OddsRange        `json:"theoretical_odds"`
	RiskFactors     []string         `json:"risk_factors,omitempty"`
}

// BasicDetails carries the full basic analysis ranking
type BasicDetails struct {
	Rankings           []BasicRanking    `json:"rankings"`
	TopRecommendations []BasicRanking    `json:"top_recommendations"`
	Challenge          *ChallengeDetails `json:"challenge,omitempty"`
}

func (d *BasicDetails) Horses() []HorseScore {
	out := make([]HorseScore, 0, len(d.Rankings))
	for _, r := range d.Rankings {
		out = append(out, r.HorseScore)
	}
	return out
}
func (d *BasicDetails) moduleDetails() {}

// ChallengeAssessment describes one horse stepping up in class
type ChallengeAssessment struct {
	Number      int     `json:"horse_number"`
	Name        string  `json:"horse_name"`
	FromLevel   int     `json:"from_level"`
	ToLevel     int     `json:"to_level"`
	Type        string  `json:"type"`
	SuccessRate float64 `json:"success_rate"`
	Score       float64 `json:"score"`
}

// ChallengeDetails is the class-challenge sub-result attached to basic analysis
type ChallengeDetails struct {
	Score       float64               `json:"score"`
	Challengers []ChallengeAssessment `json:"challengers"`
	Scores      []HorseScore          `json:"scores"`
}

func (d *ChallengeDetails) Horses() []HorseScore { return d.Scores }
func (d *ChallengeDetails) moduleDetails()       {}

// DarkHorsePick is a recommended long shot
type DarkHorsePick struct {
	HorseScore
	ExpectedValue float64 `json:"expected_value"`
	Confidence    float64 `json:"confidence"`
}

// DarkHorseDetails scores the whole field and lists long-shot candidates and picks
type DarkHorseDetails struct {
	Scores      []HorseScore    `json:"scores"`
	Candidates  []HorseScore    `json:"candidates"`
	Recommended []DarkHorsePick `json:"recommended"`
}

func (d *DarkHorseDetails) Horses() []HorseScore { return d.Scores }
func (d *DarkHorseDetails) moduleDetails()       {}

// ValueHorse is a runner whose market odds exceed its fair odds
type ValueHorse struct {
	Number     int     `json:"horse_number"`
	Name       string  `json:"horse_name"`
	FairOdds   float64 `json:"fair_odds"`
	MarketOdds float64 `json:"market_odds"`
	ValueRatio float64 `json:"value_ratio"`
	Rating     string  `json:"rating"`
}

// MarketDetails is the market efficiency detail record
type MarketDetails struct {
	Scores      []HorseScore `json:"scores"`
	ValueHorses []ValueHorse `json:"value_horses"`
	Efficiency  float64      `json:"efficiency"`
}

func (d *MarketDetails) Horses() []HorseScore { return d.Scores }
func (d *MarketDetails) moduleDetails()       {}
