package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/keiba-line-bot/internal/config"
	"github.com/yourusername/keiba-line-bot/internal/datasource"
	"github.com/yourusername/keiba-line-bot/internal/evaluation"
	"github.com/yourusername/keiba-line-bot/internal/models"
	"github.com/yourusername/keiba-line-bot/internal/scoring"
	"github.com/yourusername/keiba-line-bot/internal/staking"
)

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) Collect(ctx context.Context, date time.Time) ([]datasource.RaceData, error) {
	args := m.Called(ctx, date)
	return args.Get(0).([]datasource.RaceData), args.Error(1)
}

func (m *mockCollector) Name() string { return "mock" }

type mockScorer struct {
	mock.Mock
	name   models.ModuleName
	weight float64
}

func (m *mockScorer) Name() models.ModuleName        { return m.name }
func (m *mockScorer) Weight() float64                { return m.weight }
func (m *mockScorer) SubWeights() map[string]float64 { return nil }

func (m *mockScorer) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	args := m.Called(ctx, race)
	return args.Get(0).(models.ModuleResult), args.Error(1)
}

type stubChallenge struct {
	mockScorer
	details *models.ChallengeDetails
	err     error
}

func (s *stubChallenge) Assess(context.Context, *models.RaceSnapshot) (*models.ChallengeDetails, error) {
	return s.details, s.err
}

type mockPredictionRepository struct {
	mock.Mock
}

func (m *mockPredictionRepository) SaveRun(ctx context.Context, result *models.PredictionResult) error {
	return m.Called(ctx, result).Error(0)
}

func (m *mockPredictionRepository) GetRun(ctx context.Context, runID uuid.UUID) (*models.PredictionResult, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(*models.PredictionResult), args.Error(1)
}

func (m *mockPredictionRepository) GetLatestByDate(ctx context.Context, date string) (*models.PredictionResult, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(*models.PredictionResult), args.Error(1)
}

func stakingConfig() *config.StakingConfig {
	return &config.StakingConfig{
		DailyBudget:         20000,
		MaxSingleBet:        5000,
		MinBet:              100,
		BetUnit:             100,
		KellyModifier:       0.25,
		MaxKellyFraction:    0.1,
		MaxHighRiskBets:     2,
		BasicMinScore:       70,
		DarkHorseMinScore:   75,
		ExoticMinConfidence: 0.8,
	}
}

func fieldScores(score float64) []models.HorseScore {
	out := make([]models.HorseScore, 0, 8)
	for i := 1; i <= 8; i++ {
		out = append(out, models.HorseScore{Number: i, Score: score, Popularity: i, Odds: float64(i) * 2})
	}
	return out
}

// basicResult recommends horse 3 at score 90 and odds 6.0.
func basicResult() models.ModuleResult {
	top := models.BasicRanking{HorseScore: models.HorseScore{Number: 3, Name: "キイロイハナ", Score: 90, Popularity: 1, Odds: 6.0}}
	details := &models.BasicDetails{TopRecommendations: []models.BasicRanking{top}}
	for _, hs := range fieldScores(60) {
		details.Rankings = append(details.Rankings, models.BasicRanking{HorseScore: hs})
	}
	return models.NewCompletedResult(models.ModuleBasicAnalysis, 0.25, 80, details, time.Millisecond)
}

func factorResult(name models.ModuleName, weight, score float64) models.ModuleResult {
	return models.NewCompletedResult(name, weight, score, &models.FactorDetails{Scores: fieldScores(score)}, time.Millisecond)
}

type fixture struct {
	collector   *mockCollector
	basic       *mockScorer
	specialists []*mockScorer
	challenge   *stubChallenge
	repo        *mockPredictionRepository
	service     *PredictionService
}

func newFixture(moduleTimeout time.Duration) *fixture {
	f := &fixture{
		collector: &mockCollector{},
		basic:     &mockScorer{name: models.ModuleBasicAnalysis, weight: 0.25},
		challenge: &stubChallenge{details: &models.ChallengeDetails{Score: 55}},
		repo:      &mockPredictionRepository{},
	}
	f.challenge.name = models.ModuleChallengeJudgment

	registry := &scoring.Registry{Basic: f.basic, Challenge: f.challenge}
	for _, spec := range []struct {
		name   models.ModuleName
		weight float64
	}{
		{models.ModuleJockeyTrainer, 0.15},
		{models.ModuleAbilityAnalysis, 0.15},
		{models.ModuleDarkHorse, 0.10},
	} {
		m := &mockScorer{name: spec.name, weight: spec.weight}
		f.specialists = append(f.specialists, m)
		registry.Specialists = append(registry.Specialists, m)
	}

	log := quietLogger()
	f.service = NewPredictionService(Components{
		Collector:  f.collector,
		Normalizer: NewDataNormalizer(jst, log),
		Validator:  NewDataValidator(DefaultMinQualityScore, log),
		Registry:   registry,
		Aggregator: evaluation.NewAggregator(log),
		Calculator: staking.NewCalculator(stakingConfig(), log),
		Repository: f.repo,
	}, Options{ModuleTimeout: moduleTimeout, RunTimeout: 10 * time.Second, Version: "test"}, log)
	return f
}

func (f *fixture) expectAllModules() {
	f.basic.On("Score", mock.Anything, mock.Anything).Return(basicResult(), nil)
	for _, m := range f.specialists {
		m.On("Score", mock.Anything, mock.Anything).Return(factorResult(m.name, m.weight, 65), nil)
	}
}

func (f *fixture) assertNoModuleRan(t *testing.T) {
	t.Helper()
	f.basic.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)
	for _, m := range f.specialists {
		m.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)
	}
}

var raceDay = time.Date(2024, 5, 26, 0, 0, 0, 0, jst)

func TestRunPredictionEmptyDayInvokesNoModule(t *testing.T) {
	f := newFixture(time.Second)
	f.collector.On("Collect", mock.Anything, raceDay).Return([]datasource.RaceData(nil), nil)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	result := f.service.RunPrediction(context.Background(), raceDay, decimal.NewFromInt(20000))

	require.NotNil(t, result)
	assert.Equal(t, models.PredictionError, result.Status)
	assert.Contains(t, result.Error, "collection failure")
	assert.Equal(t, "2024-05-26", result.Date)
	f.assertNoModuleRan(t)
	f.repo.AssertCalled(t, "SaveRun", mock.Anything, result)
}

func TestRunPredictionCollectorError(t *testing.T) {
	f := newFixture(time.Second)
	f.collector.On("Collect", mock.Anything, raceDay).
		Return([]datasource.RaceData(nil), datasource.ErrNetworkError)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	result := f.service.RunPrediction(context.Background(), raceDay, decimal.NewFromInt(20000))

	assert.False(t, result.Succeeded())
	assert.Contains(t, result.Error, "network error")
	f.assertNoModuleRan(t)
}

func TestRunPredictionAllRacesInvalid(t *testing.T) {
	f := newFixture(time.Second)
	race := testRaceData("11")
	race.Runners = nil
	f.collector.On("Collect", mock.Anything, raceDay).Return([]datasource.RaceData{race}, nil)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	result := f.service.RunPrediction(context.Background(), raceDay, decimal.NewFromInt(20000))

	assert.Equal(t, models.PredictionError, result.Status)
	assert.Contains(t, result.Error, "validation failure")
	f.assertNoModuleRan(t)
}

func TestRunPredictionSuccess(t *testing.T) {
	f := newFixture(time.Second)
	f.collector.On("Collect", mock.Anything, raceDay).Return([]datasource.RaceData{testRaceData("11")}, nil)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	f.expectAllModules()

	budget := decimal.NewFromInt(100000)
	result := f.service.RunPrediction(context.Background(), raceDay, budget)

	require.True(t, result.Succeeded(), result.Error)
	require.Len(t, result.Races, 1)
	race := result.Races[0]
	assert.Equal(t, "202405260511", race.RaceID)
	assert.Len(t, race.Modules, 4)
	assert.Equal(t, 4, race.Evaluation.CompletedCount)
	assert.NotEmpty(t, result.Recommendations)
	assert.Equal(t, "test", result.Version)

	basic, ok := race.Modules[0].Details.(*models.BasicDetails)
	require.True(t, ok)
	require.NotNil(t, basic.Challenge)
	assert.Equal(t, 55.0, basic.Challenge.Score)

	require.Equal(t, models.StakePlanInvest, result.Stakes.Status)
	assert.True(t, result.Stakes.TotalAmount.LessThanOrEqual(budget))
	for _, s := range result.Stakes.Stakes {
		assert.Equal(t, "202405260511", s.RaceID)
		assert.Equal(t, 3, s.HorseNumber)
	}
	f.repo.AssertNumberOfCalls(t, "SaveRun", 1)
}

func TestRunPredictionModuleTimeout(t *testing.T) {
	f := newFixture(50 * time.Millisecond)
	f.collector.On("Collect", mock.Anything, raceDay).Return([]datasource.RaceData{testRaceData("11")}, nil)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	f.basic.On("Score", mock.Anything, mock.Anything).Return(basicResult(), nil)

	slow := f.specialists[0]
	slow.On("Score", mock.Anything, mock.Anything).
		After(500*time.Millisecond).
		Return(factorResult(slow.name, slow.weight, 99), nil)
	for _, m := range f.specialists[1:] {
		m.On("Score", mock.Anything, mock.Anything).Return(factorResult(m.name, m.weight, 65), nil)
	}

	result := f.service.RunPrediction(context.Background(), raceDay, decimal.NewFromInt(20000))

	require.True(t, result.Succeeded())
	modules := result.Races[0].Modules
	timedOut := modules[1]
	assert.Equal(t, models.ModuleJockeyTrainer, timedOut.Module)
	assert.Equal(t, models.ModuleStatusError, timedOut.Status)
	assert.Contains(t, timedOut.Error, "timeout")
	assert.Zero(t, timedOut.Score)
	assert.Equal(t, 0.15, timedOut.Weight)
	assert.Contains(t, result.Races[0].Evaluation.FailedModules, models.ModuleJockeyTrainer)
}

func TestRunPredictionRunDeadlineIsTerminal(t *testing.T) {
	f := newFixture(time.Second)
	f.service.opts.RunTimeout = 100 * time.Millisecond
	f.collector.On("Collect", mock.Anything, raceDay).Return([]datasource.RaceData{testRaceData("11")}, nil)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	f.basic.On("Score", mock.Anything, mock.Anything).After(time.Second).Return(basicResult(), nil)
	for _, m := range f.specialists {
		m.On("Score", mock.Anything, mock.Anything).After(time.Second).Return(factorResult(m.name, m.weight, 65), nil)
	}

	result := f.service.RunPrediction(context.Background(), raceDay, decimal.NewFromInt(20000))

	assert.Equal(t, models.PredictionError, result.Status)
	assert.Equal(t, models.ErrorKindTimeout, result.ErrorKind)
	assert.Contains(t, result.Error, "run deadline exceeded")
	assert.Empty(t, result.Races)
	assert.Empty(t, result.Stakes.Stakes)
	f.repo.AssertCalled(t, "SaveRun", mock.Anything, result)
}

func TestRunPredictionCollectionCutByDeadline(t *testing.T) {
	f := newFixture(time.Second)
	f.service.opts.RunTimeout = 50 * time.Millisecond
	f.collector.On("Collect", mock.Anything, raceDay).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return([]datasource.RaceData(nil), context.DeadlineExceeded)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	result := f.service.RunPrediction(context.Background(), raceDay, decimal.NewFromInt(20000))

	assert.Equal(t, models.ErrorKindTimeout, result.ErrorKind)
	f.assertNoModuleRan(t)
}

func TestAnalyzeSnapshotCancelledRun(t *testing.T) {
	f := newFixture(time.Second)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	f.expectAllModules()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.service.AnalyzeSnapshot(ctx, validSnapshot(t), decimal.NewFromInt(20000))

	assert.False(t, result.Succeeded())
	assert.Equal(t, models.ErrorKindTimeout, result.ErrorKind)
	assert.Contains(t, result.Error, "run cancelled")
}

func TestRunPredictionModuleFailures(t *testing.T) {
	f := newFixture(time.Second)
	f.collector.On("Collect", mock.Anything, raceDay).Return([]datasource.RaceData{testRaceData("11")}, nil)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.basic.On("Score", mock.Anything, mock.Anything).Return(basicResult(), nil)

	f.specialists[0].On("Score", mock.Anything, mock.Anything).
		Return(models.ModuleResult{}, errors.New("no past performances"))
	f.specialists[1].On("Score", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("index out of range") }).
		Return(models.ModuleResult{}, nil)
	f.specialists[2].On("Score", mock.Anything, mock.Anything).
		Return(factorResult(f.specialists[2].name, 0.10, 65), nil)

	result := f.service.RunPrediction(context.Background(), raceDay, decimal.NewFromInt(20000))

	require.True(t, result.Succeeded(), "a failed store or module must not fail the run")
	modules := result.Races[0].Modules
	assert.Contains(t, modules[1].Error, "module failure")
	assert.Contains(t, modules[2].Error, "panic")
	assert.True(t, modules[3].Completed())
	assert.Equal(t, 2, len(result.Races[0].Evaluation.FailedModules))
}

func TestRunPredictionSplitsBudgetAcrossRaces(t *testing.T) {
	f := newFixture(time.Second)
	races := []datasource.RaceData{testRaceData("11"), testRaceData("12")}
	races[1].StartTime = "16:20"
	f.collector.On("Collect", mock.Anything, raceDay).Return(races, nil)
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	f.expectAllModules()

	result := f.service.RunPrediction(context.Background(), raceDay, decimal.NewFromInt(20000))

	require.True(t, result.Succeeded())
	require.Len(t, result.Races, 2)
	for _, r := range result.Races {
		assert.True(t, decimal.NewFromInt(10000).Equal(r.Stakes.Budget), "race %s budget %s", r.RaceID, r.Stakes.Budget)
	}
	assert.True(t, result.Stakes.TotalAmount.LessThanOrEqual(decimal.NewFromInt(20000)))
	assert.Equal(t, 11, result.Races[0].RaceNumber)
}

func TestRunRace(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantNum int
		wantErr string
	}{
		{name: "bare number", ref: "12", wantNum: 12},
		{name: "number with R", ref: "11R", wantNum: 11},
		{name: "track and number", ref: "東京12R", wantNum: 12},
		{name: "source id", ref: "202405260511", wantNum: 11},
		{name: "wrong track", ref: "中山11R", wantErr: "record not found"},
		{name: "unknown race", ref: "9", wantErr: "record not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(time.Second)
			f.collector.On("Collect", mock.Anything, raceDay).
				Return([]datasource.RaceData{testRaceData("11"), testRaceData("12")}, nil)
			f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
			f.expectAllModules()

			result := f.service.RunRace(context.Background(), raceDay, tt.ref, decimal.NewFromInt(20000))

			if tt.wantErr != "" {
				assert.False(t, result.Succeeded())
				assert.Contains(t, result.Error, tt.wantErr)
				f.assertNoModuleRan(t)
				return
			}
			require.True(t, result.Succeeded(), result.Error)
			require.Len(t, result.Races, 1)
			assert.Equal(t, tt.wantNum, result.Races[0].RaceNumber)
			assert.True(t, decimal.NewFromInt(20000).Equal(result.Races[0].Stakes.Budget))
		})
	}
}

func TestAnalyzeSnapshot(t *testing.T) {
	t.Run("valid snapshot", func(t *testing.T) {
		f := newFixture(time.Second)
		f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
		f.expectAllModules()

		result := f.service.AnalyzeSnapshot(context.Background(), validSnapshot(t), decimal.NewFromInt(20000))

		require.True(t, result.Succeeded(), result.Error)
		assert.Equal(t, "2024-05-26", result.Date)
		f.collector.AssertNotCalled(t, "Collect", mock.Anything, mock.Anything)
	})

	t.Run("invalid snapshot", func(t *testing.T) {
		f := newFixture(time.Second)
		f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
		snap := validSnapshot(t)
		snap.Horses = nil

		result := f.service.AnalyzeSnapshot(context.Background(), snap, decimal.NewFromInt(20000))

		assert.False(t, result.Succeeded())
		assert.Contains(t, result.Error, "validation failure")
		f.assertNoModuleRan(t)
	})

	t.Run("nil snapshot", func(t *testing.T) {
		f := newFixture(time.Second)
		f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

		result := f.service.AnalyzeSnapshot(context.Background(), nil, decimal.NewFromInt(20000))

		assert.False(t, result.Succeeded())
		assert.Contains(t, result.Error, models.ErrEmptySnapshot.Error())
	})
}

func TestChallengeFailureKeepsBasicResult(t *testing.T) {
	f := newFixture(time.Second)
	f.challenge.details = nil
	f.challenge.err = errors.New("provider unavailable")
	f.repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	f.expectAllModules()

	result := f.service.AnalyzeSnapshot(context.Background(), validSnapshot(t), decimal.NewFromInt(20000))

	require.True(t, result.Succeeded())
	basic := result.Races[0].Modules[0]
	assert.True(t, basic.Completed())
	assert.Nil(t, basic.Details.(*models.BasicDetails).Challenge)
}

func TestMergePlans(t *testing.T) {
	budget := decimal.NewFromInt(20000)
	assert.True(t, MergePlans(nil, budget).IsNoInvestment())

	races := []models.RacePrediction{
		{Stakes: models.StakePlan{
			Status:      models.StakePlanInvest,
			Stakes:      []models.StakeRecommendation{{RaceID: "a", Amount: decimal.NewFromInt(1000)}},
			TotalAmount: decimal.NewFromInt(1000),
		}},
		{Stakes: models.NoInvestment(decimal.Zero)},
		{Stakes: models.StakePlan{
			Status:      models.StakePlanInvest,
			Stakes:      []models.StakeRecommendation{{RaceID: "c", Amount: decimal.NewFromInt(500)}},
			TotalAmount: decimal.NewFromInt(500),
		}},
	}
	plan := MergePlans(races, budget)
	assert.Equal(t, models.StakePlanInvest, plan.Status)
	assert.Len(t, plan.Stakes, 2)
	assert.True(t, decimal.NewFromInt(1500).Equal(plan.TotalAmount))
}
