package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/datasource"
	"github.com/yourusername/keiba-line-bot/internal/repository"
)

// IngestionService stores the past performances carried on collected race cards
// so the scorers can look them up by horse later.
type IngestionService struct {
	collector  datasource.RaceCollector
	repo       repository.PerformanceRepository
	validator  *DataValidator
	normalizer *DataNormalizer
	metrics    *IngestionMetrics
	logger     *logrus.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	collector datasource.RaceCollector,
	repo repository.PerformanceRepository,
	validator *DataValidator,
	normalizer *DataNormalizer,
	logger *logrus.Logger,
) *IngestionService {
	return &IngestionService{
		collector:  collector,
		repo:       repo,
		validator:  validator,
		normalizer: normalizer,
		metrics:    NewIngestionMetrics(),
		logger:     logger,
	}
}

// IngestRange collects every day from start to end inclusive and stores past performances.
// A failing day is counted and skipped.
func (s *IngestionService) IngestRange(ctx context.Context, start, end time.Time) (*IngestionMetrics, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	s.metrics.Reset()
	began := time.Now()

	s.logger.WithFields(logrus.Fields{
		"source": s.collector.Name(),
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}).Info("Starting past performance ingestion")

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return s.metrics, err
		}
		if err := s.IngestDay(ctx, day); err != nil {
			s.metrics.RecordError()
			s.logger.WithError(err).WithField("date", day.Format("2006-01-02")).Warn("Failed to ingest day")
		}
	}

	s.metrics.SetDuration(time.Since(began))
	s.logger.WithField("metrics", s.metrics.String()).Info("Past performance ingestion complete")
	return s.metrics, nil
}

// IngestDay collects one day and stores every runner's past performances
func (s *IngestionService) IngestDay(ctx context.Context, date time.Time) error {
	races, err := s.collector.Collect(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to collect races: %w", err)
	}

	for i := range races {
		s.metrics.RecordRace()
		if err := s.processRace(ctx, &races[i]); err != nil {
			s.metrics.RecordError()
			s.logger.WithError(err).WithField("race_id", races[i].SourceID).Warn("Error processing race")
		}
	}
	return nil
}

// processRace processes a single race: normalize, validate, persist
func (s *IngestionService) processRace(ctx context.Context, raw *datasource.RaceData) error {
	race, err := s.normalizer.NormalizeRace(raw)
	if err != nil {
		return fmt.Errorf("failed to normalize race: %w", err)
	}

	report := s.validator.Validate(race)
	if !report.IsValid {
		s.metrics.RecordValidationError()
		return fmt.Errorf("race validation failed (quality %.3f): %v", report.QualityScore, report.Errors)
	}

	for _, horse := range race.Horses {
		if len(horse.Past) == 0 {
			continue
		}
		if err := s.repo.InsertBatch(ctx, horse.Key(), horse.Past); err != nil {
			s.metrics.RecordError()
			s.logger.WithError(err).WithField("horse", horse.Name).Warn("Failed to store past performances")
			continue
		}
		s.metrics.RecordRecords(len(horse.Past))
	}

	s.metrics.RecordStored()
	return nil
}

// GetMetrics returns current ingestion metrics
func (s *IngestionService) GetMetrics() *IngestionMetrics {
	return s.metrics
}
