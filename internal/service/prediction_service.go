// Package service runs the phased prediction pipeline from race collection to stake plans.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/keiba-line-bot/internal/config"
	"github.com/yourusername/keiba-line-bot/internal/datasource"
	"github.com/yourusername/keiba-line-bot/internal/evaluation"
	applogger "github.com/yourusername/keiba-line-bot/internal/logger"
	"github.com/yourusername/keiba-line-bot/internal/metrics"
	"github.com/yourusername/keiba-line-bot/internal/models"
	"github.com/yourusername/keiba-line-bot/internal/repository"
	"github.com/yourusername/keiba-line-bot/internal/scoring"
	"github.com/yourusername/keiba-line-bot/internal/staking"
)

const saveTimeout = 5 * time.Second

// Components are the collaborators of a PredictionService. Repository is optional.
type Components struct {
	Collector  datasource.RaceCollector
	Normalizer *DataNormalizer
	Validator  *DataValidator
	Registry   *scoring.Registry
	Aggregator *evaluation.Aggregator
	Calculator *staking.Calculator
	Repository repository.PredictionRepository
}

// Options controls pipeline deadlines
type Options struct {
	ModuleTimeout time.Duration
	RunTimeout    time.Duration
	Version       string
}

// OptionsFromConfig reads deadlines from the prediction configuration
func OptionsFromConfig(cfg config.PredictionConfig, version string) Options {
	return Options{
		ModuleTimeout: cfg.ModuleTimeout(),
		RunTimeout:    cfg.RunTimeout(),
		Version:       version,
	}
}

// PredictionService orchestrates collection, validation, scoring, aggregation and staking
type PredictionService struct {
	Components
	opts    Options
	logger  *logrus.Logger
	modules *applogger.ModuleLogger
	audit   *applogger.AuditLogger
}

// NewPredictionService creates a new prediction service
func NewPredictionService(c Components, opts Options, logger *logrus.Logger) *PredictionService {
	if opts.ModuleTimeout <= 0 {
		opts.ModuleTimeout = 30 * time.Second
	}
	return &PredictionService{
		Components: c,
		opts:       opts,
		logger:     logger,
		modules:    applogger.NewModuleLogger(logger),
		audit:      applogger.NewAuditLogger(logger),
	}
}

type validatedRace struct {
	snap    *models.RaceSnapshot
	quality float64
}

// RunPrediction analyses every race of the day. It never returns a raw error:
// failures are reported as an error-status result.
func (s *PredictionService) RunPrediction(ctx context.Context, date time.Time, budget decimal.Decimal) *models.PredictionResult {
	start := time.Now()
	runID := uuid.New()
	day := date.Format("2006-01-02")

	ctx, cancel := s.withRunTimeout(ctx)
	defer cancel()

	s.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"date":   day,
		"budget": budget.String(),
	}).Info("Starting prediction run")

	races, err := s.collect(ctx, date)
	if err != nil {
		return s.fail(ctx, runID, day, err, start)
	}

	predictions := make([]models.RacePrediction, 0, len(races))
	for _, r := range races {
		if ctx.Err() != nil {
			break
		}
		predictions = append(predictions, s.analyzeRace(ctx, r.snap, r.quality))
	}
	s.stakeRaces(predictions, budget)

	return s.finish(ctx, runID, day, predictions, budget, start)
}

// RunRace analyses a single race of the day. raceRef is a race number ("11",
// "11R"), a track-qualified number ("東京11R") or a source race ID.
func (s *PredictionService) RunRace(ctx context.Context, date time.Time, raceRef string, budget decimal.Decimal) *models.PredictionResult {
	start := time.Now()
	runID := uuid.New()
	day := date.Format("2006-01-02")

	ctx, cancel := s.withRunTimeout(ctx)
	defer cancel()

	races, err := s.collect(ctx, date)
	if err != nil {
		return s.fail(ctx, runID, day, err, start)
	}

	race, ok := matchRace(races, raceRef)
	if !ok {
		return s.fail(ctx, runID, day, fmt.Errorf("race %q: %w", raceRef, models.ErrNotFound), start)
	}

	pred := s.analyzeRace(ctx, race.snap, race.quality)
	pred.Stakes = s.stakesFor(pred, budget)
	return s.finish(ctx, runID, day, []models.RacePrediction{pred}, budget, start)
}

// AnalyzeSnapshot validates and analyses a race card supplied by the caller.
func (s *PredictionService) AnalyzeSnapshot(ctx context.Context, snap *models.RaceSnapshot, budget decimal.Decimal) *models.PredictionResult {
	start := time.Now()
	runID := uuid.New()
	if snap == nil {
		return s.fail(ctx, runID, "", models.ErrEmptySnapshot, start)
	}
	day := snap.StartTime.Format("2006-01-02")

	ctx, cancel := s.withRunTimeout(ctx)
	defer cancel()

	report := s.Validator.Validate(snap)
	if !report.IsValid {
		err := models.NewPipelineError(models.ErrValidationFailure, "",
			fmt.Sprintf("quality %.3f below threshold", report.QualityScore), errors.New(strings.Join(report.Errors, "; ")))
		return s.fail(ctx, runID, day, err, start)
	}

	pred := s.analyzeRace(ctx, snap, report.QualityScore)
	pred.Stakes = s.stakesFor(pred, budget)
	return s.finish(ctx, runID, day, []models.RacePrediction{pred}, budget, start)
}

// runAborted reports a run whose context ended before it finished.
func runAborted(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewPipelineError(models.ErrTimeout, "", "run deadline exceeded", err)
	}
	return models.NewPipelineError(models.ErrTimeout, "", "run cancelled", err)
}

func (s *PredictionService) withRunTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RunTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// collect runs collection, normalisation and the validation gate.
func (s *PredictionService) collect(ctx context.Context, date time.Time) ([]validatedRace, error) {
	source := s.Collector.Name()
	raw, err := s.Collector.Collect(ctx, date)
	if err != nil {
		metrics.RecordCollectorRequest(source, "error")
		if ctx.Err() != nil {
			return nil, runAborted(ctx.Err())
		}
		return nil, models.NewPipelineError(models.ErrCollectionFailure, "", "failed to collect races from "+source, err)
	}
	if len(raw) == 0 {
		metrics.RecordCollectorRequest(source, "empty")
		return nil, models.NewPipelineError(models.ErrCollectionFailure, "", "no races found for "+date.Format("2006-01-02"), nil)
	}
	metrics.RecordCollectorRequest(source, "success")

	races := make([]validatedRace, 0, len(raw))
	for i := range raw {
		snap, err := s.Normalizer.NormalizeRace(&raw[i])
		if err != nil {
			metrics.RecordRaceSkipped("normalize")
			s.modules.LogRaceSkipped(raw[i].SourceID, raw[i].RaceName, "normalize", 0, []string{err.Error()})
			continue
		}
		report := s.Validator.Validate(snap)
		if !report.IsValid {
			metrics.RecordRaceSkipped("validation")
			s.modules.LogRaceSkipped(snap.ID, snap.Name, "validation", report.QualityScore, report.Errors)
			continue
		}
		races = append(races, validatedRace{snap: snap, quality: report.QualityScore})
	}
	if len(races) == 0 {
		return nil, models.NewPipelineError(models.ErrValidationFailure, "",
			fmt.Sprintf("none of %d races passed validation", len(raw)), nil)
	}

	sort.SliceStable(races, func(i, j int) bool {
		return races[i].snap.StartTime.Before(races[j].snap.StartTime)
	})
	return races, nil
}

// analyzeRace runs the basic phase, attaches the challenge judgment, then runs
// every specialist concurrently and aggregates.
func (s *PredictionService) analyzeRace(ctx context.Context, snap *models.RaceSnapshot, quality float64) models.RacePrediction {
	start := time.Now()

	basic := s.runModule(ctx, snap, s.Registry.Basic)
	if basic.Completed() && s.Registry.Challenge != nil {
		cctx, cancel := context.WithTimeout(ctx, s.opts.ModuleTimeout)
		details, err := s.Registry.Challenge.Assess(cctx, snap)
		cancel()
		if err != nil {
			err = models.NewPipelineError(models.ErrSubAnalysisFailure, models.ModuleChallengeJudgment, "challenge judgment failed", err)
			s.modules.LogModuleFailed(snap.ID, string(models.ModuleChallengeJudgment), err.Error(), errors.Is(err, context.DeadlineExceeded))
		} else {
			basic = scoring.AttachChallenge(basic, details)
		}
	}

	specialists := make([]models.ModuleResult, len(s.Registry.Specialists))
	var g errgroup.Group
	for i, m := range s.Registry.Specialists {
		i, m := i, m
		g.Go(func() error {
			specialists[i] = s.runModule(ctx, snap, m)
			return nil
		})
	}
	_ = g.Wait()

	results := append([]models.ModuleResult{basic}, specialists...)
	eval := s.Aggregator.Aggregate(snap, results)
	if check := s.Validator.ValidateEvaluation(eval); !check.Passed {
		s.logger.WithFields(logrus.Fields{
			"race_id": snap.ID,
			"errors":  check.Errors,
		}).Warn("Evaluation failed sanity checks")
	}
	metrics.RecordRaceAnalyzed(eval.FinalScore)

	return models.RacePrediction{
		RaceID:        snap.ID,
		RaceName:      snap.Name,
		Track:         snap.Track,
		RaceNumber:    snap.RaceNumber,
		StartTime:     snap.StartTime,
		Evaluation:    eval,
		Modules:       results,
		Stakes:        models.NoInvestment(decimal.Zero),
		QualityScore:  quality,
		ExecutionTime: time.Since(start),
	}
}

type moduleOutcome struct {
	result models.ModuleResult
	err    error
}

// runModule scores one module under its own deadline. A module that errors,
// panics or misses the deadline yields an error result with its weight kept.
func (s *PredictionService) runModule(ctx context.Context, snap *models.RaceSnapshot, m scoring.Scorer) models.ModuleResult {
	mctx, cancel := context.WithTimeout(ctx, s.opts.ModuleTimeout)
	defer cancel()
	start := time.Now()

	done := make(chan moduleOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- moduleOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := m.Score(mctx, snap)
		done <- moduleOutcome{result: res, err: err}
	}()

	var (
		res      models.ModuleResult
		timedOut bool
	)
	select {
	case out := <-done:
		res = out.result
		if out.err != nil {
			timedOut = errors.Is(out.err, models.ErrTimeout) || errors.Is(out.err, context.DeadlineExceeded)
			err := out.err
			if !errors.Is(err, models.ErrModuleFailure) && !timedOut {
				err = models.NewPipelineError(models.ErrModuleFailure, m.Name(), "module failed", out.err)
			}
			res = models.NewErrorResult(m.Name(), m.Weight(), err, time.Since(start))
		}
	case <-mctx.Done():
		timedOut = true
		err := models.NewPipelineError(models.ErrTimeout, m.Name(), "module deadline exceeded", mctx.Err())
		res = models.NewErrorResult(m.Name(), m.Weight(), err, time.Since(start))
	}

	elapsed := time.Since(start)
	metrics.RecordModuleExecution(string(m.Name()), string(res.Status), elapsed.Seconds(), res.Score)
	if res.Completed() {
		s.modules.LogModuleCompleted(snap.ID, string(m.Name()), res.Score, res.Weight, elapsed.Milliseconds())
	} else {
		s.modules.LogModuleFailed(snap.ID, string(m.Name()), res.Error, timedOut)
	}
	return res
}

// stakeRaces splits the budget evenly across races that have stake candidates.
func (s *PredictionService) stakeRaces(predictions []models.RacePrediction, budget decimal.Decimal) {
	var eligible []int
	for i, p := range predictions {
		if len(s.Calculator.Candidates(p.Modules)) > 0 {
			eligible = append(eligible, i)
		}
	}
	share := s.Calculator.SplitBudget(budget, len(eligible))
	for _, i := range eligible {
		predictions[i].Stakes = s.stakesFor(predictions[i], share)
	}
}

func (s *PredictionService) stakesFor(pred models.RacePrediction, budget decimal.Decimal) models.StakePlan {
	plan := s.Calculator.ComputeStakes(pred.Modules, budget)
	for i := range plan.Stakes {
		plan.Stakes[i].RaceID = pred.RaceID
	}
	return plan
}

func (s *PredictionService) finish(ctx context.Context, runID uuid.UUID, day string, races []models.RacePrediction, budget decimal.Decimal, start time.Time) *models.PredictionResult {
	if err := ctx.Err(); err != nil {
		return s.fail(ctx, runID, day, runAborted(err), start)
	}

	result := &models.PredictionResult{
		RunID:     runID,
		Status:    models.PredictionSuccess,
		Date:      day,
		Races:     races,
		Stakes:    MergePlans(races, budget),
		Timestamp: time.Now(),
		Version:   s.opts.Version,
	}

	var quality float64
	best := -1
	for i, r := range races {
		quality += r.Evaluation.QualityScore
		if best < 0 || r.Evaluation.FinalScore > races[best].Evaluation.FinalScore {
			best = i
		}
	}
	if len(races) > 0 {
		result.QualityScore = quality / float64(len(races))
		result.Recommendations = races[best].Evaluation.Recommendations
	}
	result.ExecutionTime = time.Since(start)

	s.record(ctx, result)
	return result
}

// MergePlans combines per-race plans into the day's plan.
func MergePlans(races []models.RacePrediction, budget decimal.Decimal) models.StakePlan {
	var stakes []models.StakeRecommendation
	total := decimal.Zero
	for _, r := range races {
		stakes = append(stakes, r.Stakes.Stakes...)
		total = total.Add(r.Stakes.TotalAmount)
	}
	if len(stakes) == 0 {
		return models.NoInvestment(budget)
	}
	return models.StakePlan{
		Status:      models.StakePlanInvest,
		Stakes:      stakes,
		TotalAmount: total,
		Budget:      budget,
	}
}

func (s *PredictionService) fail(ctx context.Context, runID uuid.UUID, day string, err error, start time.Time) *models.PredictionResult {
	result := models.ErrorResult(runID, day, err, time.Since(start))
	result.Version = s.opts.Version
	s.logger.WithError(err).WithFields(logrus.Fields{
		"run_id": runID,
		"date":   day,
	}).Error("Prediction run failed")
	s.record(ctx, result)
	return result
}

func (s *PredictionService) record(ctx context.Context, result *models.PredictionResult) {
	total, _ := result.Stakes.TotalAmount.Float64()
	metrics.RecordPredictionRun(string(result.Status), result.ExecutionTime.Seconds(), result.QualityScore, total)

	s.audit.LogPredictionRun(result.RunID.String(), result.Date, string(result.Status), len(result.Races),
		result.QualityScore, result.Stakes.TotalAmount.String(), result.ExecutionTime.Milliseconds())
	for _, st := range result.Stakes.Stakes {
		s.audit.LogStakeRecommendation(result.RunID.String(), st.RaceID, st.HorseNumber, string(st.BetType),
			st.Amount.String(), st.Odds, st.KellyFraction)
	}

	if s.Repository == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.Repository.SaveRun(sctx, result); err != nil {
		s.logger.WithError(err).WithField("run_id", result.RunID).Warn("Failed to store prediction run")
	}
}

func matchRace(races []validatedRace, ref string) (validatedRace, bool) {
	keys := make([]RaceKey, len(races))
	for i, r := range races {
		keys[i] = RaceKey{ID: r.snap.ID, Track: r.snap.Track, Number: r.snap.RaceNumber}
	}
	if i := MatchRace(keys, ref); i >= 0 {
		return races[i], true
	}
	return validatedRace{}, false
}
