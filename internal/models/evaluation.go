package models

// Recommendation symbols used on Japanese race cards
const (
	SymbolHonmei = "◎"
	SymbolTaikou = "○"
	SymbolTanana = "▲"
	SymbolNoBet  = "×"
)

// ConfidenceTier is a coarse confidence label on a recommendation
type ConfidenceTier string

const (
	ConfidenceVeryHigh ConfidenceTier = "very_high"
	ConfidenceHigh     ConfidenceTier = "high"
	ConfidenceMedium   ConfidenceTier = "medium"
	ConfidenceLow      ConfidenceTier = "low"
)

// Priority orders recommendations for presentation
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// RiskLevel is shared by the evaluation risk assessment and stake risk tiers
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Recommendation is a symbol-tagged pick
type Recommendation struct {
	Symbol      string         `json:"symbol"`
	HorseNumber int            `json:"horse_number,omitempty"`
	HorseName   string         `json:"horse_name,omitempty"`
	Score       float64        `json:"score"`
	Confidence  ConfidenceTier `json:"confidence"`
	Priority    Priority       `json:"priority"`
}

// IsNoBet reports the explicit no-bet recommendation.
func (r Recommendation) IsNoBet() bool {
	return r.Symbol == SymbolNoBet
}

// KeyFactor is a strongly scoring module surfaced in the report
type KeyFactor struct {
	Module      ModuleName `json:"module"`
	Score       float64    `json:"score"`
	Weight      float64    `json:"weight"`
	Description string     `json:"description"`
}

// RiskAssessment summarises the evaluation risk
type RiskAssessment struct {
	Level      RiskLevel `json:"level"`
	Factors    []string  `json:"factors"`
	Adjustment float64   `json:"adjustment"`
}

// EvaluationReport is the textual report consumed by the message formatter
type EvaluationReport struct {
	RaceOverview            string   `json:"race_overview"`
	AnalysisSummary         string   `json:"analysis_summary"`
	KeyFactors              []string `json:"key_factors"`
	RiskAssessment          string   `json:"risk_assessment"`
	MarketAnalysis          string   `json:"market_analysis"`
	RecommendationRationale string   `json:"recommendation_rationale"`
}

// AggregatedEvaluation is the weighted blend of all module results
type AggregatedEvaluation struct {
	FinalScore      float64          `json:"final_score"`
	Grade           string           `json:"grade"`
	Confidence      float64          `json:"confidence"`
	QualityScore    float64          `json:"quality_score"`
	Recommendations []Recommendation `json:"recommendations"`
	HorseRanking    []HorseScore     `json:"horse_ranking"`
	KeyFactors      []KeyFactor      `json:"key_factors"`
	Risk            RiskAssessment   `json:"risk"`
	Report          EvaluationReport `json:"report"`
	CompletedCount  int              `json:"completed_modules"`
	FailedModules   []ModuleName     `json:"failed_modules,omitempty"`
}
