package scoring

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// ChallengeAssessor produces the challenge sub-result attached to basic analysis
type ChallengeAssessor interface {
	Scorer
	Assess(ctx context.Context, race *models.RaceSnapshot) (*models.ChallengeDetails, error)
}

// Registry holds the configured scorer set for one pipeline.
type Registry struct {
	Basic       Scorer
	Challenge   ChallengeAssessor
	Specialists []Scorer
	weights     *Weights
}

// NewRegistry builds every module against a single weight table and provider.
func NewRegistry(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *Registry {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Registry{
		Basic:     NewBasicAnalysis(weights, provider, logger),
		Challenge: NewChallengeJudgment(provider, logger),
		Specialists: []Scorer{
			NewJockeyTrainerAnalysis(weights, provider, logger),
			NewAbilityAnalysis(weights, provider, logger),
			NewBloodlineAnalysis(weights, provider, logger),
			NewPerformanceRateAnalysis(weights, provider, logger),
			NewDarkHorseAnalysis(weights, provider, logger),
			NewPreRaceInfoAnalysis(weights, provider, logger),
			NewMarketEfficiencyAnalysis(weights, provider, logger),
		},
		weights: weights,
	}
}

// Weights returns the table the registry was built with.
func (r *Registry) Weights() *Weights {
	return r.weights
}

// All returns the weighted modules, basic analysis first.
func (r *Registry) All() []Scorer {
	out := make([]Scorer, 0, len(r.Specialists)+1)
	out = append(out, r.Basic)
	return append(out, r.Specialists...)
}

// Lookup finds a weighted module by name.
func (r *Registry) Lookup(name models.ModuleName) (Scorer, bool) {
	for _, s := range r.All() {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}
