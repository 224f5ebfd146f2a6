package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/keiba-line-bot/internal/database"
	"github.com/yourusername/keiba-line-bot/internal/datasource"
	"github.com/yourusername/keiba-line-bot/internal/evaluation"
	"github.com/yourusername/keiba-line-bot/internal/repository"
	"github.com/yourusername/keiba-line-bot/internal/scoring"
	"github.com/yourusername/keiba-line-bot/internal/service"
	"github.com/yourusername/keiba-line-bot/internal/staking"
)

// app holds the collaborators shared by the subcommands
type app struct {
	loc        *time.Location
	db         *database.DB
	repos      *repository.Repositories
	collector  datasource.RaceCollector
	normalizer *service.DataNormalizer
	validator  *service.DataValidator
	prediction *service.PredictionService
}

// newApp wires the prediction pipeline. The database is optional for
// predictions; commands that need it call requireDB.
func newApp(ctx context.Context) (*app, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	a := &app{loc: loc}

	if cfg.Database.Enabled {
		a.db, err = database.Initialize(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.repos, err = repository.NewRepositories(a.db)
		if err != nil {
			a.db.Close()
			return nil, err
		}
		appLog.Info("Database connection established")
	}

	a.collector, err = datasource.NewFactory(appLog).NewCollector(cfg.DataSource)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create collector: %w", err)
	}

	weights, err := scoring.WeightsFromConfig(cfg.Prediction.Weights)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("invalid module weights: %w", err)
	}

	provider := scoring.FallbackProvider{}
	var predictions repository.PredictionRepository
	if a.repos != nil {
		provider.Primary = a.repos.Performance
		predictions = a.repos.Prediction
	}

	a.normalizer = service.NewDataNormalizer(loc, appLog)
	a.validator = service.NewDataValidator(cfg.Prediction.MinQualityScore, appLog)
	a.prediction = service.NewPredictionService(service.Components{
		Collector:  a.collector,
		Normalizer: a.normalizer,
		Validator:  a.validator,
		Registry:   scoring.NewRegistry(weights, provider, appLog),
		Aggregator: evaluation.NewAggregator(appLog),
		Calculator: staking.NewCalculator(&cfg.Staking, appLog),
		Repository: predictions,
	}, service.OptionsFromConfig(cfg.Prediction, cfg.App.Version), appLog)

	return a, nil
}

func (a *app) requireDB() error {
	if a.repos == nil {
		return fmt.Errorf("this command needs the database; set database.enabled")
	}
	return nil
}

func (a *app) ingestion() *service.IngestionService {
	return service.NewIngestionService(a.collector, a.repos.Performance, a.validator, a.normalizer, appLog)
}

func (a *app) budget() decimal.Decimal {
	return decimal.NewFromFloat(cfg.Staking.DailyBudget)
}

func (a *app) close() {
	if closer, ok := a.collector.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			appLog.WithError(err).Warn("Failed to close collector")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// parseDate reads a YYYY-MM-DD flag in the race-day zone; empty means today.
func (a *app) parseDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().In(a.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}
