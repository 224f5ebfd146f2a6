package scoring

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// Challenge types
const (
	ChallengeSameClass = "same_class"
	ChallengeMaiden    = "maiden_break"
	ChallengeClassUp   = "class_up"
	ChallengeGrade     = "grade_challenge"
	ChallengeBig       = "big_challenge"
)

// ChallengeSubWeights has a single factor; the challenge score is computed as a whole.
var ChallengeSubWeights = map[string]float64{"challenge": 1.0}

var (
	challengeBaseRates = map[string]float64{
		ChallengeMaiden:  0.33,
		ChallengeClassUp: 0.25,
		ChallengeGrade:   0.15,
		ChallengeBig:     0.08,
	}
	challengeDifficulty = map[string]float64{
		ChallengeSameClass: 30,
		ChallengeMaiden:    50,
		ChallengeClassUp:   60,
		ChallengeGrade:     80,
		ChallengeBig:       95,
	}
	// keyed by class steps + 1
	challengeDiscount = map[int]float64{1: 1.0, 2: 0.85, 3: 0.65, 4: 0.40, 5: 0.20}
)

const (
	defaultCurrentClass = 3
	defaultTargetClass  = 5
	maxNotable          = 3
)

// ChallengeJudgment assesses horses stepping up in class. It has no system
// weight and is attached to the basic analysis result.
type ChallengeJudgment struct {
	BaseScorer
}

// NewChallengeJudgment creates the challenge judgment add-on
func NewChallengeJudgment(provider PerformanceProvider, logger *logrus.Logger) *ChallengeJudgment {
	return &ChallengeJudgment{BaseScorer: newBaseScorer(models.ModuleChallengeJudgment, nil, ChallengeSubWeights, provider, logger)}
}

// Score implements Scorer
func (c *ChallengeJudgment) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	details, err := c.Assess(ctx, race)
	if err != nil {
		return models.ModuleResult{}, err
	}
	return models.NewCompletedResult(c.name, c.weight, details.Score, details, time.Since(start)), nil
}

// Assess evaluates every runner and returns the notable challengers.
func (c *ChallengeJudgment) Assess(ctx context.Context, race *models.RaceSnapshot) (*models.ChallengeDetails, error) {
	assessments := make(map[int]models.ChallengeAssessment, len(race.Horses))

	scores, err := c.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) (map[string]float64, error) {
		a := assessChallenge(race, horse, past)
		assessments[horse.Number] = a
		return map[string]float64{"challenge": a.Score}, nil
	})
	if err != nil {
		return nil, err
	}

	var notable []models.ChallengeAssessment
	for _, hs := range scores {
		a, ok := assessments[hs.Number]
		if !ok || hs.Degraded {
			continue
		}
		if a.ToLevel-a.FromLevel >= 1 && a.SuccessRate >= 0.2 && a.Score >= 50 {
			notable = append(notable, a)
		}
	}
	sort.SliceStable(notable, func(i, j int) bool { return notable[i].Score > notable[j].Score })
	if len(notable) > maxNotable {
		notable = notable[:maxNotable]
	}

	return &models.ChallengeDetails{
		Score:       moduleScore(scores),
		Challengers: notable,
		Scores:      scores,
	}, nil
}

func assessChallenge(race *models.RaceSnapshot, horse models.HorseEntry, past []models.PerformanceRecord) models.ChallengeAssessment {
	current := maxClassLevel(past)
	if current == 0 {
		current = defaultCurrentClass
	}
	target := race.ClassLevel()
	if target == 0 {
		target = defaultTargetClass
	}
	level := target - current
	if level < 0 {
		level = 0
	}
	kind := classifyChallenge(current, target, level)

	difficulty := challengeDifficulty[kind] + clamp(float64(level)*5, 0, 20)
	difficulty = clamp(difficulty, 0, 100)

	base, ok := challengeBaseRates[kind]
	if !ok {
		base = 0.2
	}
	ability := averageRaceScore(recent(past, 3))
	discount := challengeDiscount[min(level+1, 5)]
	success := clamp((base+(ability-models.NeutralScore)/100)*discount, 0.01, 0.8)

	var factors int
	if len(past) > 0 && past[0].Placed() {
		factors++
	}
	if len(filter(past, func(r models.PerformanceRecord) bool { return r.ClassLevel() >= target-1 && r.ClassLevel() > 0 })) > 0 {
		factors++
	}
	if placeRate(filter(past, func(r models.PerformanceRecord) bool { return sameDistance(r.Distance, race.Distance) })) > 0 {
		factors++
	}
	risks := len(riskFactors(race, horse, past))

	score := success*100 + (100-difficulty)*0.3 + float64(factors)*5 - float64(risks)*8
	return models.ChallengeAssessment{
		Number:      horse.Number,
		Name:        horse.Name,
		FromLevel:   current,
		ToLevel:     target,
		Type:        kind,
		SuccessRate: success,
		Score:       models.ClampScore(score),
	}
}

func classifyChallenge(current, target, level int) string {
	switch {
	case current == 1 && level > 0:
		return ChallengeMaiden
	case level == 0:
		return ChallengeSameClass
	case level == 1:
		return ChallengeClassUp
	case level == 2 && target >= 6:
		return ChallengeGrade
	case level >= 3:
		return ChallengeBig
	}
	return ChallengeClassUp
}
