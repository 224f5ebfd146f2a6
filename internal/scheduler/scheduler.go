// Package scheduler runs the bot's daily cron jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job timeouts
const (
	BroadcastTimeout = 10 * time.Minute
	IngestionTimeout = 30 * time.Minute
)

// Broadcaster sends the daily prediction and owns the prediction cache
type Broadcaster interface {
	Broadcast(ctx context.Context, trigger string) error
	ResetDaily()
}

// Ingester stores past performances for a racing day
type Ingester interface {
	IngestDay(ctx context.Context, date time.Time) error
}

// Scheduler manages the daily broadcast, cache reset and ingestion jobs
type Scheduler struct {
	cron            *cron.Cron
	location        *time.Location
	logger          *logrus.Logger
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          map[string]cron.EntryID
	gracefulTimeout time.Duration
}

// NewScheduler creates a scheduler evaluating cron specs in loc
func NewScheduler(loc *time.Location, logger *logrus.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(loc)),
		location:        loc,
		logger:          logger,
		jobIDs:          make(map[string]cron.EntryID),
		gracefulTimeout: 30 * time.Second,
	}
}

// ScheduleBroadcast schedules the daily prediction broadcast
func (s *Scheduler) ScheduleBroadcast(spec string, b Broadcaster) error {
	return s.add("broadcast", spec, s.broadcastJob(b))
}

// ScheduleCacheReset schedules clearing the prediction cache
func (s *Scheduler) ScheduleCacheReset(spec string, b Broadcaster) error {
	return s.add("cache_reset", spec, func() {
		b.ResetDaily()
	})
}

// ScheduleIngestion schedules storing the day's past performances
func (s *Scheduler) ScheduleIngestion(spec string, ing Ingester) error {
	return s.add("ingestion", spec, s.ingestionJob(ing))
}

func (s *Scheduler) broadcastJob(b Broadcaster) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), BroadcastTimeout)
		defer cancel()

		start := time.Now()
		if err := b.Broadcast(ctx, "scheduled"); err != nil {
			s.logger.WithError(err).Error("Scheduled broadcast failed")
			return
		}
		s.logger.WithField("duration", time.Since(start)).Info("Scheduled broadcast completed")
	}
}

func (s *Scheduler) ingestionJob(ing Ingester) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), IngestionTimeout)
		defer cancel()

		day := time.Now().In(s.location)
		if err := ing.IngestDay(ctx, day); err != nil {
			s.logger.WithError(err).WithField("date", day.Format("2006-01-02")).Error("Scheduled ingestion failed")
		}
	}
}

func (s *Scheduler) add(name, spec string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return errors.New("cannot schedule job while scheduler is running")
	}
	if _, exists := s.jobIDs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to add %s job: %w", name, err)
	}
	s.jobIDs[name] = entryID

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"cron":     spec,
		"timezone": s.location.String(),
	}).Info("Scheduled job")
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return errors.New("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return errors.New("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")
	return nil
}

// Stop waits for running jobs up to the graceful timeout
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler jobs still running after %v", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns the next run time of the named job, or zero if it is not
// scheduled or the scheduler is stopped.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.jobIDs[name]
	if !ok || !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Jobs returns the names of the scheduled jobs
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobIDs))
	for name := range s.jobIDs {
		names = append(names, name)
	}
	return names
}
