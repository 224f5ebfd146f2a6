package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RaceOutcome is the official result used to settle recommendations.
// Payouts are per 100 yen staked, as published by JRA.
type RaceOutcome struct {
	RaceID         string                  `db:"race_id" json:"race_id" validate:"required"`
	Date           time.Time               `db:"race_date" json:"date" validate:"required"`
	Order          []int                   `db:"finish_order" json:"order" validate:"required,min=1,dive,gt=0"`
	FieldSize      int                     `db:"field_size" json:"field_size"`
	WinPayout      decimal.Decimal         `db:"win_payout" json:"win_payout"`
	PlacePayouts   map[int]decimal.Decimal `db:"place_payouts" json:"place_payouts"`
	ExactaPayout   decimal.Decimal         `db:"exacta_payout" json:"exacta_payout"`
	TrifectaPayout decimal.Decimal         `db:"trifecta_payout" json:"trifecta_payout"`
}

// Finish returns the finishing position of a horse, or 0 when it did not place in the recorded order.
func (o RaceOutcome) Finish(number int) int {
	for i, n := range o.Order {
		if n == number {
			return i + 1
		}
	}
	return 0
}

// placeSlots is 2 for fields of seven or fewer runners, otherwise 3.
func (o RaceOutcome) placeSlots() int {
	if o.FieldSize > 0 && o.FieldSize <= 7 {
		return 2
	}
	return 3
}

// Settle decides a stake against the outcome. Exacta and trifecta stakes are
// anchor tickets on the recommended horse and land when it wins. Official
// payouts are used when recorded, otherwise the quoted odds.
func (o RaceOutcome) Settle(s StakeRecommendation) (bool, decimal.Decimal) {
	finish := o.Finish(s.HorseNumber)
	hit := false
	official := decimal.Zero

	switch s.BetType {
	case BetTypeWin:
		hit = finish == 1
		official = o.WinPayout
	case BetTypePlace:
		hit = finish >= 1 && finish <= o.placeSlots()
		official = o.PlacePayouts[s.HorseNumber]
	case BetTypeExacta:
		hit = finish == 1
		official = o.ExactaPayout
	case BetTypeTrifecta:
		hit = finish == 1
		official = o.TrifectaPayout
	}
	if !hit {
		return false, decimal.Zero
	}
	if official.IsPositive() {
		return true, s.Amount.Div(decimal.NewFromInt(100)).Mul(official).Floor()
	}
	return true, s.PotentialReturn()
}

// SettledStake is a stored recommendation together with its result
type SettledStake struct {
	RunID      uuid.UUID           `db:"run_id" json:"run_id"`
	RaceID     string              `db:"race_id" json:"race_id"`
	RaceDate   time.Time           `db:"race_date" json:"race_date"`
	Stake      StakeRecommendation `json:"stake"`
	FinalScore float64             `db:"final_score" json:"final_score"`
	Hit        bool                `db:"hit" json:"hit"`
	Payout     decimal.Decimal     `db:"payout" json:"payout"`
	SettledAt  time.Time           `db:"settled_at" json:"settled_at"`
}

// Profit is the payout minus the stake.
func (s SettledStake) Profit() decimal.Decimal {
	return s.Payout.Sub(s.Stake.Amount)
}
