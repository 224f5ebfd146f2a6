// Package evaluation blends module results into a race-level evaluation and report.
package evaluation

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// Score thresholds for recommendations and risk markers
const (
	StrongRecommendScore = 85.0
	RecommendScore       = 70.0
	KeyFactorScore       = 70.0
	lowConfidence        = 0.5
	lowQuality           = 60.0
	lowFinalScore        = 60.0
	maxKeyFactors        = 5
	maxRiskFactors       = 10
	detailQualityBytes   = 1000
	moduleTimeBudget     = 30 * time.Second
)

type gradeBand struct {
	grade string
	min   float64
}

var gradeBands = []gradeBand{
	{"S+", 90}, {"S", 85}, {"A+", 80}, {"A", 75}, {"B+", 70}, {"B", 65}, {"C", 60}, {"D", 50},
}

// Aggregator blends module results with the weights each result carries
type Aggregator struct {
	logger *logrus.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{logger: logger}
}

// Aggregate produces the evaluation for one race. Results may arrive in any order.
func (a *Aggregator) Aggregate(race *models.RaceSnapshot, results []models.ModuleResult) models.AggregatedEvaluation {
	final := FinalScore(results)
	ranking := HorseRanking(results)

	eval := models.AggregatedEvaluation{
		FinalScore:      final,
		Grade:           ScoreToGrade(final),
		Confidence:      Confidence(results),
		QualityScore:    QualityScore(results),
		Recommendations: Recommendations(final, ranking),
		HorseRanking:    ranking,
		KeyFactors:      KeyFactors(results),
	}
	for _, r := range results {
		if r.Completed() {
			eval.CompletedCount++
		} else {
			eval.FailedModules = append(eval.FailedModules, r.Module)
		}
	}
	eval.Risk = AssessRisk(eval, results)
	eval.Report = BuildReport(race, eval, results)

	a.logger.WithFields(logrus.Fields{
		"final_score":    final,
		"grade":          eval.Grade,
		"confidence":     eval.Confidence,
		"quality":        eval.QualityScore,
		"completed":      eval.CompletedCount,
		"failed_modules": len(eval.FailedModules),
		"risk":           eval.Risk.Level,
	}).Info("Evaluation aggregated")

	return eval
}

// FinalScore is Σ(w·s)/Σw. Error results add their weight but no score.
func FinalScore(results []models.ModuleResult) float64 {
	var num, den float64
	for _, r := range results {
		den += r.Weight
		if r.Completed() {
			num += r.Weight * models.ClampScore(r.Score)
		}
	}
	if den <= 0 {
		return 0
	}
	return roundScore(num / den)
}

// roundScore drops float noise below 1e-6 so grade breakpoints are stable.
func roundScore(v float64) float64 {
	return models.ClampScore(math.Round(v*1e6) / 1e6)
}

// ScoreToGrade maps a final score to its letter grade.
func ScoreToGrade(score float64) string {
	for _, b := range gradeBands {
		if score >= b.min {
			return b.grade
		}
	}
	return "F"
}

// HorseRanking blends every module's per-horse scores with the module weights.
// A horse missing from a module, or any error module, counts as zero for that module.
func HorseRanking(results []models.ModuleResult) []models.HorseScore {
	var den float64
	for _, r := range results {
		den += r.Weight
	}
	if den <= 0 {
		return nil
	}

	byNumber := make(map[int]*models.HorseScore)
	var order []int
	for _, r := range results {
		for _, hs := range r.HorseScores() {
			entry, ok := byNumber[hs.Number]
			if !ok {
				entry = &models.HorseScore{
					Number:     hs.Number,
					Name:       hs.Name,
					Popularity: hs.Popularity,
					Odds:       hs.Odds,
					Factors:    make(map[string]float64),
				}
				byNumber[hs.Number] = entry
				order = append(order, hs.Number)
			}
			entry.Score += r.Weight * models.ClampScore(hs.Score)
			entry.Factors[string(r.Module)] = hs.Score
			entry.Degraded = entry.Degraded || hs.Degraded
		}
	}

	ranking := make([]models.HorseScore, 0, len(order))
	for _, n := range order {
		hs := *byNumber[n]
		hs.Score = roundScore(hs.Score / den)
		ranking = append(ranking, hs)
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].Score == ranking[j].Score {
			return ranking[i].Number < ranking[j].Number
		}
		return ranking[i].Score > ranking[j].Score
	})
	return ranking
}

type recommendationSlot struct {
	symbol     string
	offset     float64
	confidence models.ConfidenceTier
	fallback   models.ConfidenceTier
	priority   models.Priority
}

// Recommendations applies the symbol table to the top-ranked horses. Without
// per-horse data the race score and fixed offsets are used.
func Recommendations(final float64, ranking []models.HorseScore) []models.Recommendation {
	var slots []recommendationSlot
	switch {
	case final >= StrongRecommendScore:
		slots = []recommendationSlot{
			{models.SymbolHonmei, 0, models.ConfidenceVeryHigh, models.ConfidenceHigh, models.PriorityHigh},
			{models.SymbolTaikou, 5, models.ConfidenceHigh, models.ConfidenceMedium, models.PriorityMedium},
		}
	case final >= RecommendScore:
		slots = []recommendationSlot{
			{models.SymbolTaikou, 0, models.ConfidenceHigh, models.ConfidenceMedium, models.PriorityMedium},
			{models.SymbolTanana, 8, models.ConfidenceMedium, models.ConfidenceLow, models.PriorityLow},
		}
	default:
		return []models.Recommendation{{
			Symbol:     models.SymbolNoBet,
			Score:      final,
			Confidence: models.ConfidenceLow,
			Priority:   models.PriorityNone,
		}}
	}

	recs := make([]models.Recommendation, 0, len(slots))
	for i, slot := range slots {
		rec := models.Recommendation{
			Symbol:     slot.symbol,
			Score:      models.ClampScore(final - slot.offset),
			Confidence: slot.confidence,
			Priority:   slot.priority,
		}
		if len(ranking) > 0 {
			if i >= len(ranking) {
				break
			}
			hs := ranking[i]
			rec.HorseNumber = hs.Number
			rec.HorseName = hs.Name
			rec.Score = hs.Score
			if hs.Degraded {
				rec.Confidence = slot.fallback
			}
		}
		recs = append(recs, rec)
	}
	return recs
}

// Confidence is the weighted mean of min(1, s/100) over completed modules.
func Confidence(results []models.ModuleResult) float64 {
	var num, den float64
	for _, r := range results {
		if !r.Completed() {
			continue
		}
		num += min(1.0, r.Score/100) * r.Weight
		den += r.Weight
	}
	if den <= 0 {
		return 0
	}
	return num / den
}

// QualityScore rates the module runs on 0..100. Error modules count as zero.
func QualityScore(results []models.ModuleResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var total float64
	for _, r := range results {
		if !r.Completed() {
			continue
		}
		timeQuality := 1.0
		if r.ExecutionTime > time.Second {
			timeQuality = min(1.0, float64(moduleTimeBudget)/float64(r.ExecutionTime))
		}
		rangeQuality := 0.5
		if r.Score >= 0 && r.Score <= 100 {
			rangeQuality = 1.0
		}
		total += timeQuality*0.3 + rangeQuality*0.4 + detailQuality(r.Details)*0.3
	}
	return total / float64(len(results)) * 100
}

func detailQuality(details models.ModuleDetails) float64 {
	if details == nil {
		return 0
	}
	data, err := json.Marshal(details)
	if err != nil {
		return 0
	}
	return min(1.0, float64(len(data))/detailQualityBytes)
}

var factorDescriptions = map[models.ModuleName]string{
	models.ModuleJockeyTrainer:    "騎手と厩舎の相性が良好",
	models.ModuleBasicAnalysis:    "基本的な競走能力が高い",
	models.ModuleAbilityAnalysis:  "実戦での能力発揮が期待される",
	models.ModuleBloodline:        "血統的に適性が高い",
	models.ModulePerformanceRate:  "連対率の実績が安定している",
	models.ModuleDarkHorse:        "穴馬としての期待値が高い",
	models.ModulePreRaceInfo:      "直前情報が好材料",
	models.ModuleMarketEfficiency: "市場評価に対して割安",
}

// KeyFactors returns the strongest completed modules, heaviest first.
func KeyFactors(results []models.ModuleResult) []models.KeyFactor {
	var factors []models.KeyFactor
	for _, r := range results {
		if !r.Completed() || r.Score < KeyFactorScore {
			continue
		}
		desc, ok := factorDescriptions[r.Module]
		if !ok {
			desc = "詳細分析で高評価"
		}
		factors = append(factors, models.KeyFactor{
			Module:      r.Module,
			Score:       r.Score,
			Weight:      r.Weight,
			Description: desc,
		})
	}
	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].Weight == factors[j].Weight {
			return factors[i].Module < factors[j].Module
		}
		return factors[i].Weight > factors[j].Weight
	})
	if len(factors) > maxKeyFactors {
		factors = factors[:maxKeyFactors]
	}
	return factors
}

// Risk marker labels
const (
	RiskMarkerLowConfidence = "信頼度不足"
	RiskMarkerFailedModules = "分析モジュール失敗"
	RiskMarkerLowQuality    = "分析品質低下"
	RiskMarkerLowScore      = "総合評価低"
)

var riskAdjustments = map[models.RiskLevel]float64{
	models.RiskLow:    1.0,
	models.RiskMedium: 0.9,
	models.RiskHigh:   0.7,
}

// AssessRisk counts high-risk markers: three or more is high, none is low.
// Runner risk labels from basic analysis are listed but not counted.
func AssessRisk(eval models.AggregatedEvaluation, results []models.ModuleResult) models.RiskAssessment {
	var markers []string
	if eval.Confidence < lowConfidence {
		markers = append(markers, RiskMarkerLowConfidence)
	}
	if len(eval.FailedModules) > 0 {
		markers = append(markers, RiskMarkerFailedModules)
	}
	if eval.QualityScore < lowQuality {
		markers = append(markers, RiskMarkerLowQuality)
	}
	if eval.FinalScore < lowFinalScore {
		markers = append(markers, RiskMarkerLowScore)
	}

	level := models.RiskMedium
	switch {
	case len(markers) >= 3:
		level = models.RiskHigh
	case len(markers) == 0:
		level = models.RiskLow
	}

	factors := append([]string(nil), markers...)
	seen := make(map[string]bool)
	for _, r := range results {
		basic, ok := r.Details.(*models.BasicDetails)
		if !ok || !r.Completed() {
			continue
		}
		for _, top := range basic.TopRecommendations {
			for _, f := range top.RiskFactors {
				if !seen[f] {
					seen[f] = true
					factors = append(factors, f)
				}
			}
		}
	}
	if len(factors) > maxRiskFactors {
		factors = factors[:maxRiskFactors]
	}

	return models.RiskAssessment{
		Level:      level,
		Factors:    factors,
		Adjustment: riskAdjustments[level],
	}
}
