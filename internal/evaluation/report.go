package evaluation

import (
	"fmt"
	"strings"

	"github.com/yourusername/keiba-line-bot/internal/models"
	"github.com/yourusername/keiba-line-bot/internal/scoring"
)

const unknownLabel = "不明"

var riskLabels = map[models.RiskLevel]string{
	models.RiskLow:    "低",
	models.RiskMedium: "中",
	models.RiskHigh:   "高",
}

var mitigations = map[string]string{
	scoring.RiskClassChallenge: "投資額を控えめに設定",
	scoring.RiskLayoff:         "複勝中心の手堅い投資",
	scoring.RiskDistanceUp:     "距離適性を慎重に検討",
	scoring.RiskDistanceDown:   "距離適性を慎重に検討",
}

// BuildReport renders the textual report consumed by the message formatter.
func BuildReport(race *models.RaceSnapshot, eval models.AggregatedEvaluation, results []models.ModuleResult) models.EvaluationReport {
	keys := make([]string, 0, len(eval.KeyFactors))
	for _, f := range eval.KeyFactors {
		keys = append(keys, fmt.Sprintf("%s (%.1f)", f.Description, f.Score))
	}
	return models.EvaluationReport{
		RaceOverview:            raceOverview(race),
		AnalysisSummary:         analysisSummary(eval, results),
		KeyFactors:              keys,
		RiskAssessment:          riskSummary(eval.Risk),
		MarketAnalysis:          marketAnalysis(results),
		RecommendationRationale: rationale(eval.Recommendations),
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownLabel
	}
	return s
}

func raceOverview(race *models.RaceSnapshot) string {
	if race == nil {
		return unknownLabel
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s%dR %s", orUnknown(race.Track), race.RaceNumber, orUnknown(race.Name))
	if race.Grade != "" {
		fmt.Fprintf(&b, "(%s)", race.Grade)
	}
	fmt.Fprintf(&b, " %s%dm", orUnknown(race.NormalizedSurface()), race.Distance)
	fmt.Fprintf(&b, " 天候:%s 馬場:%s %d頭", orUnknown(race.Weather), orUnknown(race.TrackCondition), race.HorseCount())
	return b.String()
}

func analysisSummary(eval models.AggregatedEvaluation, results []models.ModuleResult) string {
	s := fmt.Sprintf("%dモジュール中%d完了 総合スコア%.1f (%s) 信頼度%.0f%%",
		len(results), eval.CompletedCount, eval.FinalScore, eval.Grade, eval.Confidence*100)
	if len(eval.FailedModules) > 0 {
		names := make([]string, len(eval.FailedModules))
		for i, m := range eval.FailedModules {
			names[i] = string(m)
		}
		s += " 失敗: " + strings.Join(names, ", ")
	}
	return s
}

func riskSummary(risk models.RiskAssessment) string {
	s := "リスク" + riskLabels[risk.Level]
	if len(risk.Factors) > 0 {
		s += " (" + strings.Join(risk.Factors, "・") + ")"
	}
	var advice []string
	seen := make(map[string]bool)
	for _, f := range risk.Factors {
		if m, ok := mitigations[f]; ok && !seen[m] {
			seen[m] = true
			advice = append(advice, m)
		}
	}
	if len(advice) > 0 {
		s += " 対策: " + strings.Join(advice, "、")
	}
	return s
}

func marketAnalysis(results []models.ModuleResult) string {
	for _, r := range results {
		market, ok := r.Details.(*models.MarketDetails)
		if !ok || !r.Completed() {
			continue
		}
		if len(market.ValueHorses) == 0 {
			return fmt.Sprintf("市場効率%.0f 割安馬なし", market.Efficiency)
		}
		picks := make([]string, 0, len(market.ValueHorses))
		for _, v := range market.ValueHorses {
			picks = append(picks, fmt.Sprintf("%d番%s(%.1f倍/適正%.1f倍)", v.Number, v.Name, v.MarketOdds, v.FairOdds))
		}
		return fmt.Sprintf("市場効率%.0f 割安馬: %s", market.Efficiency, strings.Join(picks, " "))
	}
	return "市場データなし"
}

func expectedPerformance(c models.ConfidenceTier) string {
	switch c {
	case models.ConfidenceVeryHigh:
		return "1-3着内濃厚"
	case models.ConfidenceHigh:
		return "上位入線期待"
	case models.ConfidenceMedium:
		return "健闘期待"
	}
	return "厳しい戦い"
}

func rationale(recs []models.Recommendation) string {
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.IsNoBet() {
			lines = append(lines, fmt.Sprintf("%s 見送り: 投資条件を満たさず (%.1f)", r.Symbol, r.Score))
			continue
		}
		name := r.HorseName
		if r.HorseNumber > 0 {
			name = fmt.Sprintf("%d番%s", r.HorseNumber, r.HorseName)
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s (%.1f)", r.Symbol, orUnknown(name), expectedPerformance(r.Confidence), r.Score))
	}
	return strings.Join(lines, "\n")
}
