package models

import (
	"github.com/shopspring/decimal"
)

// BetType is the Japanese pari-mutuel pool a stake is placed in
type BetType string

const (
	BetTypeWin      BetType = "win"
	BetTypePlace    BetType = "place"
	BetTypeExacta   BetType = "exacta"
	BetTypeTrifecta BetType = "trifecta"
)

// Label returns the Japanese name of the bet type.
func (b BetType) Label() string {
	switch b {
	case BetTypeWin:
		return "単勝"
	case BetTypePlace:
		return "複勝"
	case BetTypeExacta:
		return "馬単"
	case BetTypeTrifecta:
		return "三連単"
	}
	return string(b)
}

// StakeRecommendation is one suggested bet
type StakeRecommendation struct {
	RaceID         string          `json:"race_id,omitempty"`
	HorseNumber    int             `json:"horse_number"`
	HorseName      string          `json:"horse_name"`
	BetType        BetType         `json:"bet_type" validate:"required,oneof=win place exacta trifecta"`
	Amount         decimal.Decimal `json:"amount"`
	Odds           float64         `json:"odds" validate:"gt=1"`
	WinProbability float64         `json:"win_probability" validate:"gte=0,lte=1"`
	ExpectedValue  float64         `json:"expected_value"`
	Confidence     float64         `json:"confidence" validate:"gte=0,lte=1"`
	Risk           RiskLevel       `json:"risk"`
	KellyFraction  float64         `json:"kelly_fraction" validate:"gte=0,lte=0.1"`
	DarkHorse      bool            `json:"dark_horse,omitempty"`
}

// PotentialReturn is the payout if the bet lands at the quoted odds.
func (s StakeRecommendation) PotentialReturn() decimal.Decimal {
	return s.Amount.Mul(decimal.NewFromFloat(s.Odds)).Floor()
}

// StakePlanStatus distinguishes "nothing to bet" from an investment plan
type StakePlanStatus string

const (
	StakePlanInvest       StakePlanStatus = "invest"
	StakePlanNoInvestment StakePlanStatus = "no_investment"
)

// NoInvestmentMessage is shown when no candidate qualifies.
const NoInvestmentMessage = "本日は投資を見送ります。"

// StakePlan is the staking calculator output
type StakePlan struct {
	Status      StakePlanStatus       `json:"status"`
	Message     string                `json:"message,omitempty"`
	Stakes      []StakeRecommendation `json:"stakes"`
	TotalAmount decimal.Decimal       `json:"total_amount"`
	Budget      decimal.Decimal       `json:"budget"`
}

// NoInvestment returns the explicit no-investment marker.
func NoInvestment(budget decimal.Decimal) StakePlan {
	return StakePlan{
		Status:      StakePlanNoInvestment,
		Message:     NoInvestmentMessage,
		Stakes:      []StakeRecommendation{},
		TotalAmount: decimal.Zero,
		Budget:      budget,
	}
}

// IsNoInvestment reports the no-investment marker.
func (p StakePlan) IsNoInvestment() bool {
	return p.Status == StakePlanNoInvestment
}
