package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/keiba-line-bot/internal/config"
	"github.com/yourusername/keiba-line-bot/internal/line"
	applogger "github.com/yourusername/keiba-line-bot/internal/logger"
	"github.com/yourusername/keiba-line-bot/internal/metrics"
	"github.com/yourusername/keiba-line-bot/internal/models"
	"github.com/yourusername/keiba-line-bot/internal/service"
)

// ErrDeliverySuspended is returned while the delivery circuit breaker is open.
var ErrDeliverySuspended = errors.New("line delivery suspended by circuit breaker")

// Broadcast triggers
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Predictor produces day predictions
type Predictor interface {
	RunPrediction(ctx context.Context, date time.Time, budget decimal.Decimal) *models.PredictionResult
}

// OrchestratorStatus represents current bot status
type OrchestratorStatus struct {
	CircuitBreakerState string    `json:"circuit_breaker_state"`
	CachedPredictions   int       `json:"cached_predictions"`
	CacheHitRatio       float64   `json:"cache_hit_ratio"`
	Broadcasts          int       `json:"broadcasts"`
	LastBroadcast       time.Time `json:"last_broadcast,omitempty"`
	LastBroadcastOK     bool      `json:"last_broadcast_ok"`
	LastUpdate          time.Time `json:"last_update"`
}

// Orchestrator answers chat commands and sends the daily broadcast
type Orchestrator struct {
	predictor Predictor
	sender    line.Sender
	cache     *PredictionCache
	breaker   *CircuitBreaker
	formatter *Formatter
	budget    decimal.Decimal
	location  *time.Location
	helpText  string
	logger    *logrus.Logger
	audit     *applogger.AuditLogger
	inflight  singleflight.Group
	now       func() time.Time

	mu              sync.Mutex
	broadcasts      int
	lastBroadcast   time.Time
	lastBroadcastOK bool
}

// NewOrchestrator creates a new bot orchestrator
func NewOrchestrator(cfg *config.Config, predictor Predictor, sender line.Sender, logger *logrus.Logger) (*Orchestrator, error) {
	if predictor == nil || sender == nil {
		return nil, errors.New("orchestrator requires a predictor and a sender")
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	budget := decimal.NewFromFloat(cfg.Staking.DailyBudget)
	cleanup := time.Duration(cfg.Cache.CleanupIntervalMinutes) * time.Minute

	o := &Orchestrator{
		predictor: predictor,
		sender:    sender,
		cache:     NewPredictionCache(cfg.Cache.PredictionTTL(), cleanup),
		breaker:   NewCircuitBreaker("line_delivery", DefaultCircuitBreakerConfig(), logger),
		formatter: NewFormatter(loc, cfg.LINE.BroadcastMaxRaces),
		budget:    budget,
		location:  loc,
		helpText:  HelpText(budget, cronClock(cfg.Scheduler.BroadcastCron)),
		logger:    logger,
		audit:     applogger.NewAuditLogger(logger),
		now:       time.Now,
	}

	logger.WithFields(logrus.Fields{
		"budget":   budget.String(),
		"timezone": loc.String(),
	}).Info("Bot orchestrator initialized")
	return o, nil
}

// HandleWebhook answers every event of a verified webhook delivery. Reply
// failures are logged per event; the first one is returned.
func (o *Orchestrator) HandleWebhook(ctx context.Context, wh *line.Webhook) error {
	var firstErr error
	for _, ev := range wh.Events {
		if err := o.HandleEvent(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HandleEvent replies to a single webhook event.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev line.Event) error {
	metrics.RecordWebhookEvent(ev.Type)

	var reply string
	switch ev.Type {
	case line.EventTypeMessage, line.EventTypePostback:
		text := ev.Text()
		if text == "" {
			return nil
		}
		reply = o.Respond(ctx, text, ev.Time())
	case line.EventTypeFollow:
		reply = o.helpText
	default:
		return nil
	}
	if ev.ReplyToken == "" || reply == "" {
		return nil
	}

	if err := o.sender.Reply(ctx, ev.ReplyToken, line.TextMessages(reply)...); err != nil {
		o.breaker.RecordFailure(err)
		o.logger.WithError(err).WithFields(logrus.Fields{
			"source":     ev.Source.ID(),
			"event_type": ev.Type,
		}).Error("Failed to send reply")
		return fmt.Errorf("failed to reply: %w", err)
	}
	o.breaker.RecordSuccess()
	return nil
}

// Respond builds the reply text for a chat message received at at.
func (o *Orchestrator) Respond(ctx context.Context, text string, at time.Time) string {
	if at.IsZero() {
		at = o.now()
	}
	at = at.In(o.location)
	cmd := ParseCommand(text, at)

	o.logger.WithFields(logrus.Fields{
		"command":  cmd.Kind.String(),
		"race_ref": cmd.RaceRef,
	}).Debug("Handling chat command")

	switch cmd.Kind {
	case CommandToday, CommandTomorrow:
		return o.formatter.FormatDay(o.Predict(ctx, cmd.Date))
	case CommandRace:
		result := o.Predict(ctx, cmd.Date)
		if !result.Succeeded() {
			return o.formatter.FormatError(result)
		}
		race, ok := findRace(result.Races, cmd.RaceRef)
		if !ok {
			return o.formatter.FormatError(&models.PredictionResult{ErrorKind: models.ErrorKindNotFound})
		}
		return o.formatter.FormatRace(race)
	case CommandStats:
		result := o.cache.Get(cmd.Date)
		_, _, ratio := o.cache.Stats()
		return o.formatter.FormatStats(at, result, o.budget, o.cache.ItemCount(), ratio)
	case CommandHelp:
		return o.helpText
	}
	return UnknownCommandText
}

// Predict returns the prediction for date, running the pipeline at most once
// per date while a result is cached. Concurrent callers share one run.
func (o *Orchestrator) Predict(ctx context.Context, date time.Time) *models.PredictionResult {
	if cached := o.cache.Get(date); cached != nil {
		return cached
	}

	key := DateKey(date)
	v, _, _ := o.inflight.Do(key, func() (interface{}, error) {
		result := o.predictor.RunPrediction(ctx, date, o.budget)
		o.cache.Set(date, result)
		return result, nil
	})
	return v.(*models.PredictionResult)
}

// Broadcast sends today's prediction to every follower.
func (o *Orchestrator) Broadcast(ctx context.Context, trigger string) error {
	if !o.breaker.Allow() {
		o.audit.LogBroadcast(trigger, 0, false, "circuit breaker open")
		return ErrDeliverySuspended
	}

	now := o.now().In(o.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, o.location)
	result := o.Predict(ctx, today)
	if !result.Succeeded() {
		o.finishBroadcast(false)
		o.audit.LogBroadcast(trigger, 0, false, result.ErrorKind)
		return fmt.Errorf("prediction for %s failed: %s", result.Date, result.Error)
	}

	text := o.formatter.FormatDay(result)
	if err := o.sender.Broadcast(ctx, line.TextMessages(text)...); err != nil {
		o.breaker.RecordFailure(err)
		o.finishBroadcast(false)
		o.audit.LogBroadcast(trigger, len(result.Races), false, err.Error())
		return fmt.Errorf("failed to broadcast: %w", err)
	}

	o.breaker.RecordSuccess()
	o.finishBroadcast(true)
	o.audit.LogBroadcast(trigger, len(result.Races), true, "")
	return nil
}

// ResetDaily drops every cached prediction.
func (o *Orchestrator) ResetDaily() {
	hits, misses, ratio := o.cache.Stats()
	o.cache.Clear()
	o.logger.WithFields(logrus.Fields{
		"hits":      hits,
		"misses":    misses,
		"hit_ratio": ratio,
	}).Info("Prediction cache reset")
}

// Status returns a snapshot of the bot state
func (o *Orchestrator) Status() OrchestratorStatus {
	_, _, ratio := o.cache.Stats()

	o.mu.Lock()
	defer o.mu.Unlock()
	return OrchestratorStatus{
		CircuitBreakerState: o.breaker.State().String(),
		CachedPredictions:   o.cache.ItemCount(),
		CacheHitRatio:       ratio,
		Broadcasts:          o.broadcasts,
		LastBroadcast:       o.lastBroadcast,
		LastBroadcastOK:     o.lastBroadcastOK,
		LastUpdate:          o.now(),
	}
}

// HelpText returns the command list shown to new followers.
func (o *Orchestrator) HelpText() string {
	return o.helpText
}

func (o *Orchestrator) finishBroadcast(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastBroadcast = o.now()
	o.lastBroadcastOK = ok
	if ok {
		o.broadcasts++
	}
}

// findRace looks up a race reference in a day's predictions.
func findRace(races []models.RacePrediction, ref string) (models.RacePrediction, bool) {
	keys := make([]service.RaceKey, len(races))
	for i, r := range races {
		keys[i] = service.RaceKey{ID: r.RaceID, Track: r.Track, Number: r.RaceNumber}
	}
	if i := service.MatchRace(keys, ref); i >= 0 {
		return races[i], true
	}
	return models.RacePrediction{}, false
}

// cronClock renders the hour and minute fields of a daily cron spec as "10:00".
func cronClock(spec string) string {
	fields := strings.Fields(spec)
	if len(fields) < 2 {
		return "定時"
	}
	minute, errM := strconv.Atoi(fields[0])
	hour, errH := strconv.Atoi(fields[1])
	if errM != nil || errH != nil {
		return "定時"
	}
	return fmt.Sprintf("%d:%02d", hour, minute)
}
