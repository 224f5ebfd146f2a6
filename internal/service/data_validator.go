package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// Quality thresholds
const (
	DefaultMinQualityScore   = 0.94
	requiredCompleteness     = 1.0
	recommendedCompleteness  = 0.95
	encodingQualityThreshold = 0.98
	minJapaneseRatio         = 0.3
)

// CheckResult is the outcome of one validation check
type CheckResult struct {
	Score    float64  `json:"score"`
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidationReport aggregates the four checks run on a race snapshot
type ValidationReport struct {
	IsValid      bool        `json:"is_valid"`
	QualityScore float64     `json:"quality_score"`
	Structure    CheckResult `json:"structure"`
	Encoding     CheckResult `json:"encoding"`
	Completeness CheckResult `json:"completeness"`
	Consistency  CheckResult `json:"consistency"`
	Errors       []string    `json:"errors,omitempty"`
	Warnings     []string    `json:"warnings,omitempty"`
}

// DataValidator gates race snapshots before scoring
type DataValidator struct {
	validate   *validator.Validate
	minQuality float64
	logger     *logrus.Logger
}

// NewDataValidator creates a new data validator. A non-positive minQuality uses the default.
func NewDataValidator(minQuality float64, logger *logrus.Logger) *DataValidator {
	if minQuality <= 0 {
		minQuality = DefaultMinQualityScore
	}
	return &DataValidator{
		validate:   validator.New(),
		minQuality: minQuality,
		logger:     logger,
	}
}

// Validate runs every check and decides whether the race may be scored
func (v *DataValidator) Validate(race *models.RaceSnapshot) ValidationReport {
	if race == nil {
		return ValidationReport{Errors: []string{"race snapshot is nil"}}
	}

	report := ValidationReport{
		Structure:    v.checkStructure(race),
		Encoding:     checkEncoding(race),
		Completeness: checkCompleteness(race),
		Consistency:  checkConsistency(race),
	}
	checks := []CheckResult{report.Structure, report.Encoding, report.Completeness, report.Consistency}

	var total float64
	for _, c := range checks {
		total += c.Score
		report.Errors = append(report.Errors, c.Errors...)
		report.Warnings = append(report.Warnings, c.Warnings...)
	}
	report.QualityScore = total / float64(len(checks))
	report.IsValid = report.QualityScore >= v.minQuality && !race.IsEmpty()

	v.logger.WithFields(logrus.Fields{
		"race_id":  race.ID,
		"quality":  report.QualityScore,
		"valid":    report.IsValid,
		"errors":   len(report.Errors),
		"warnings": len(report.Warnings),
	}).Debug("Race validated")

	return report
}

func (v *DataValidator) checkStructure(race *models.RaceSnapshot) CheckResult {
	var res CheckResult

	if err := v.validate.Struct(race); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			res.Errors = append(res.Errors, err.Error())
		}
		for _, fe := range verrs {
			msg := fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
			if strings.Contains(fe.Namespace(), "Horses[") {
				res.Warnings = append(res.Warnings, msg)
			} else {
				res.Errors = append(res.Errors, msg)
			}
		}
	}

	res.Score = max(0, 1-0.1*float64(len(res.Errors))-0.05*float64(len(res.Warnings)))
	res.Passed = len(res.Errors) == 0
	return res
}

func checkEncoding(race *models.RaceSnapshot) CheckResult {
	var res CheckResult
	invalid := 0

	if !IsValidJapaneseText(race.Name) {
		invalid++
		res.Errors = append(res.Errors, fmt.Sprintf("race name encoding invalid: %s", race.Name))
	}
	for _, h := range race.Horses {
		for _, f := range []struct{ label, value string }{
			{"horse name", h.Name},
			{"jockey name", h.Jockey},
			{"trainer name", h.Trainer},
		} {
			if !IsValidJapaneseText(f.value) {
				invalid++
				res.Warnings = append(res.Warnings, fmt.Sprintf("invalid %s: %s", f.label, f.value))
			}
		}
	}

	fields := len(race.Horses)*3 + 1
	res.Score = max(0, 1-float64(invalid)/float64(fields))
	res.Passed = res.Score >= encodingQualityThreshold
	return res
}

// UTF-8 read as Shift_JIS turns kana into these rarely used kanji
var mojibakeMarkers = []string{"縺", "繧", "繝", "譁", "蜿"}

// IsValidJapaneseText reports whether s is plausible Japanese text: only
// kana, kanji, ASCII, full-width forms and CJK punctuation, with at least
// 30% Japanese characters and no mojibake markers. Empty and pure-ASCII strings pass.
func IsValidJapaneseText(s string) bool {
	if s == "" {
		return true
	}
	for _, m := range mojibakeMarkers {
		if strings.Contains(s, m) {
			return false
		}
	}
	var japanese, total int
	ascii := true
	for _, r := range s {
		total++
		switch {
		case r == unicode.ReplacementChar:
			return false
		case isJapaneseRune(r):
			japanese++
			ascii = false
		case r < 0x80:
		case r >= 0x3000 && r <= 0x303F, r >= 0xFF00 && r <= 0xFFEF:
			ascii = false
		default:
			return false
		}
	}
	if ascii {
		return true
	}
	return float64(japanese)/float64(total) >= minJapaneseRatio
}

func isJapaneseRune(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) ||
		r == 'ー' || r == '・' || r == '々'
}

func checkCompleteness(race *models.RaceSnapshot) CheckResult {
	var res CheckResult

	raceFields := []bool{
		race.Name != "",
		race.Track != "",
		race.Distance > 0,
		race.Surface != "",
		len(race.Horses) > 0,
		!race.StartTime.IsZero(),
		race.Weather != "",
	}
	raceScore := fraction(raceFields)

	var horseScore, recommended float64
	for _, h := range race.Horses {
		horseScore += fraction([]bool{
			h.Name != "",
			h.Number > 0,
			h.Jockey != "",
			h.Trainer != "",
			h.Age > 0,
			h.Weight > 0,
			h.PostPosition > 0,
		})
		recommended += fraction([]bool{
			h.Popularity > 0,
			h.HasOdds(),
			h.Sire != "",
			h.BodyWeight > 0,
		})
	}
	if n := float64(len(race.Horses)); n > 0 {
		horseScore /= n
		recommended /= n
	}

	res.Score = raceScore*0.3 + horseScore*0.7
	res.Passed = res.Score >= requiredCompleteness
	if !res.Passed {
		res.Errors = append(res.Errors, fmt.Sprintf("required fields incomplete: %.0f%%", res.Score*100))
	}
	if len(race.Horses) > 0 && recommended < recommendedCompleteness {
		res.Warnings = append(res.Warnings, fmt.Sprintf("recommended fields incomplete: %.0f%%", recommended*100))
	}
	return res
}

func fraction(fields []bool) float64 {
	n := 0
	for _, ok := range fields {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(fields))
}

func checkConsistency(race *models.RaceSnapshot) CheckResult {
	var res CheckResult

	seen := make(map[int]bool, len(race.Horses))
	var pops []int
	for _, h := range race.Horses {
		if seen[h.Number] {
			res.Errors = append(res.Errors, fmt.Sprintf("duplicate horse number: %d", h.Number))
		}
		seen[h.Number] = true

		if h.PostPosition != 0 && (h.PostPosition < 1 || h.PostPosition > 8) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("invalid barrier number: %d", h.PostPosition))
		}
		if h.Age != 0 && (h.Age < 2 || h.Age > 10) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unusual horse age: %d", h.Age))
		}
		if h.Odds != 0 && h.Odds <= 1 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("odds must exceed 1.0 for horse %d: %.1f", h.Number, h.Odds))
		}
		if h.Popularity > 0 {
			pops = append(pops, h.Popularity)
		}
	}

	// Best effort: only judged when every runner carries a popularity rank.
	if len(pops) == len(race.Horses) && len(pops) > 0 {
		sort.Ints(pops)
		for i, p := range pops {
			if p != i+1 {
				res.Warnings = append(res.Warnings, "popularity ranks are not dense 1..N")
				break
			}
		}
	}
	if race.Distance != 0 && (race.Distance < 800 || race.Distance > 4000) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("distance out of range (800-4000m): %d", race.Distance))
	}

	res.Score = max(0, 1-0.2*float64(len(res.Errors))-0.1*float64(len(res.Warnings)))
	res.Passed = len(res.Errors) == 0
	return res
}

// ValidateEvaluation checks an aggregated evaluation before it is published
func (v *DataValidator) ValidateEvaluation(eval models.AggregatedEvaluation) CheckResult {
	var res CheckResult

	if len(eval.Recommendations) == 0 {
		res.Warnings = append(res.Warnings, "no recommendations generated")
	}
	if eval.FinalScore < 0 || eval.FinalScore > 100 {
		res.Errors = append(res.Errors, fmt.Sprintf("final score out of range: %.2f", eval.FinalScore))
	}
	for _, hs := range eval.HorseRanking {
		if hs.Score < 0 || hs.Score > 100 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("horse %d score out of range: %.2f", hs.Number, hs.Score))
		}
	}
	if eval.Confidence < 0 || eval.Confidence > 1 {
		res.Errors = append(res.Errors, fmt.Sprintf("confidence out of range: %.2f", eval.Confidence))
	}

	res.Score = max(0, 1-0.3*float64(len(res.Errors))-0.1*float64(len(res.Warnings)))
	res.Passed = len(res.Errors) == 0
	return res
}
