package models

import (
	"math"
	"time"
)

// HorseEntry represents a declared runner on a race card
type HorseEntry struct {
	ID                string              `json:"horse_id"`
	Name              string              `json:"horse_name" validate:"required"`
	Number            int                 `json:"horse_number" validate:"required,gt=0,lte=28"`
	Jockey            string              `json:"jockey" validate:"required"`
	Trainer           string              `json:"trainer" validate:"required"`
	Age               int                 `json:"age" validate:"required,gt=0"`
	Sex               string              `json:"sex"`
	Weight            float64             `json:"weight" validate:"required,gt=0"`
	BodyWeight        int                 `json:"body_weight"`
	BodyWeightChange  int                 `json:"body_weight_change"`
	PostPosition      int                 `json:"barrier" validate:"required,gt=0"`
	Popularity        int                 `json:"popularity"`
	Odds              float64             `json:"odds"`
	MorningOdds       float64             `json:"morning_odds"`
	Sire              string              `json:"sire"`
	DamSire           string              `json:"dam_sire"`
	PaddockGrade      string              `json:"paddock_grade"`
	DaysSinceLastRace int                 `json:"days_since_last_race"`
	Past              []PerformanceRecord `json:"past_performances"`
}

// Key returns the identity used for deduplication and provider lookups.
func (h HorseEntry) Key() string {
	if h.ID != "" {
		return h.ID
	}
	return h.Name
}

// HasOdds reports whether live win odds are available.
func (h HorseEntry) HasOdds() bool {
	return h.Odds > 1
}

// PerformanceRecord is one past run of a horse
type PerformanceRecord struct {
	Date           time.Time `json:"date"`
	RaceName       string    `json:"race_name"`
	Track          string    `json:"track"`
	Distance       int       `json:"distance"`
	Surface        string    `json:"surface"`
	Grade          string    `json:"grade"`
	Class          string    `json:"class"`
	TrackCondition string    `json:"condition"`
	Finish         int       `json:"finish"`
	FieldSize      int       `json:"field_size"`
	Odds           float64   `json:"odds"`
	Popularity     int       `json:"popularity"`
	Jockey         string    `json:"jockey"`
	Weight         float64   `json:"weight"`
	FinalStretch   float64   `json:"last_3f"`
	Margin         float64   `json:"margin"`
}

// Won reports a first-place finish.
func (p PerformanceRecord) Won() bool {
	return p.Finish == 1
}

// Placed reports a top-three finish.
func (p PerformanceRecord) Placed() bool {
	return p.Finish >= 1 && p.Finish <= 3
}

// ClassLevel returns the class ladder level of the past race.
func (p PerformanceRecord) ClassLevel() int {
	if lvl := ClassLevel(p.Grade); lvl > 0 {
		return lvl
	}
	return ClassLevel(p.Class)
}

var popularityOdds = map[int]float64{1: 2.5, 2: 4.0, 3: 6.0, 4: 8.0, 5: 12.0}

// EstimateOdds maps a popularity rank onto typical win odds.
func EstimateOdds(popularity int) float64 {
	if o, ok := popularityOdds[popularity]; ok {
		return o
	}
	if popularity <= 0 {
		return 20.0
	}
	return math.Min(20.0, float64(popularity)*2.5)
}

// EffectiveOdds returns live odds when quoted, otherwise the popularity estimate.
func (h HorseEntry) EffectiveOdds() float64 {
	if h.HasOdds() {
		return h.Odds
	}
	return EstimateOdds(h.Popularity)
}
