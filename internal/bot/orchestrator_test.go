package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/keiba-line-bot/internal/config"
	"github.com/yourusername/keiba-line-bot/internal/line"
	"github.com/yourusername/keiba-line-bot/internal/logger"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// MockPredictor is a mock implementation of Predictor
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) RunPrediction(ctx context.Context, date time.Time, budget decimal.Decimal) *models.PredictionResult {
	args := m.Called(ctx, date, budget)
	return args.Get(0).(*models.PredictionResult)
}

// MockSender is a mock implementation of line.Sender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Reply(ctx context.Context, replyToken string, messages ...line.Message) error {
	args := m.Called(ctx, replyToken, messages)
	return args.Error(0)
}

func (m *MockSender) Push(ctx context.Context, to string, messages ...line.Message) error {
	args := m.Called(ctx, to, messages)
	return args.Error(0)
}

func (m *MockSender) Broadcast(ctx context.Context, messages ...line.Message) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

var raceDay = time.Date(2024, 5, 26, 9, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		LINE:      config.LINEConfig{BroadcastMaxRaces: 5},
		Staking:   config.StakingConfig{DailyBudget: 20000},
		Scheduler: config.SchedulerConfig{BroadcastCron: "0 10 * * *", Timezone: "UTC"},
		Cache:     config.CacheConfig{PredictionTTLMinutes: 60, CleanupIntervalMinutes: 10},
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *MockPredictor, *MockSender) {
	t.Helper()
	predictor := new(MockPredictor)
	sender := new(MockSender)

	o, err := NewOrchestrator(testConfig(), predictor, sender, logger.Discard())
	require.NoError(t, err)
	o.now = func() time.Time { return raceDay }
	return o, predictor, sender
}

func textEvent(text string) line.Event {
	return line.Event{
		Type:       line.EventTypeMessage,
		Timestamp:  raceDay.UnixMilli(),
		ReplyToken: "reply-1",
		Source:     line.Source{Type: "user", UserID: "U1234"},
		Message:    &line.EventMessage{ID: "m1", Type: "text", Text: text},
	}
}

func replyText(messages []line.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}

// yenEqual matches a budget by value; decimals built from floats carry a
// different exponent than NewFromInt.
func yenEqual(v int64) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(v)) })
}

func TestNewOrchestratorRequiresCollaborators(t *testing.T) {
	_, err := NewOrchestrator(testConfig(), nil, new(MockSender), logger.Discard())
	assert.Error(t, err)
}

func TestPredictCachesSuccess(t *testing.T) {
	o, predictor, _ := newTestOrchestrator(t)
	predictor.On("RunPrediction", mock.Anything, mock.Anything, yenEqual(20000)).
		Return(sampleResult()).Once()

	first := o.Predict(context.Background(), raceDay)
	second := o.Predict(context.Background(), raceDay)

	assert.Same(t, first, second)
	predictor.AssertNumberOfCalls(t, "RunPrediction", 1)
}

func TestPredictRetriesAfterError(t *testing.T) {
	o, predictor, _ := newTestOrchestrator(t)
	failed := models.ErrorResult(uuid.New(), "2024-05-26", models.ErrCollectionFailure, time.Second)
	predictor.On("RunPrediction", mock.Anything, mock.Anything, mock.Anything).Return(failed)

	o.Predict(context.Background(), raceDay)
	o.Predict(context.Background(), raceDay)

	predictor.AssertNumberOfCalls(t, "RunPrediction", 2)
}

func TestHandleEventReplies(t *testing.T) {
	tests := []struct {
		name    string
		event   line.Event
		predict bool
		want    string
	}{
		{"today", textEvent("予想"), true, "東京優駿"},
		{"race by number", textEvent("レース 12"), true, "目黒記念"},
		{"unknown race", textEvent("レース 5"), true, "見つかりませんでした"},
		{"help", textEvent("ヘルプ"), false, "コマンド一覧"},
		{"unknown command", textEvent("こんにちは"), false, "コマンドが認識できませんでした"},
		{"follow", line.Event{Type: line.EventTypeFollow, ReplyToken: "reply-1"}, false, "毎日10:00に自動で予想を配信します"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, predictor, sender := newTestOrchestrator(t)
			if tt.predict {
				predictor.On("RunPrediction", mock.Anything, mock.Anything, mock.Anything).Return(sampleResult()).Once()
			}

			var sent []line.Message
			sender.On("Reply", mock.Anything, "reply-1", mock.Anything).
				Run(func(args mock.Arguments) { sent = args.Get(2).([]line.Message) }).
				Return(nil).Once()

			require.NoError(t, o.HandleEvent(context.Background(), tt.event))
			assert.Contains(t, replyText(sent), tt.want)
			predictor.AssertExpectations(t)
			sender.AssertExpectations(t)
		})
	}
}

func TestHandleEventIgnoresNonText(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	sticker := textEvent("")
	sticker.Message.Type = "sticker"
	require.NoError(t, o.HandleEvent(context.Background(), sticker))
	require.NoError(t, o.HandleEvent(context.Background(), line.Event{Type: line.EventTypeUnfollow}))

	sender.AssertNotCalled(t, "Reply", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhookReturnsReplyError(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)
	sender.On("Reply", mock.Anything, "reply-1", mock.Anything).Return(errors.New("invalid reply token"))

	wh := &line.Webhook{Events: []line.Event{textEvent("ヘルプ"), textEvent("ヘルプ")}}
	err := o.HandleWebhook(context.Background(), wh)
	assert.ErrorContains(t, err, "invalid reply token")
	sender.AssertNumberOfCalls(t, "Reply", 2)
}

func TestBroadcast(t *testing.T) {
	o, predictor, sender := newTestOrchestrator(t)
	predictor.On("RunPrediction", mock.Anything, mock.Anything, mock.Anything).Return(sampleResult()).Once()

	var sent []line.Message
	sender.On("Broadcast", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]line.Message) }).
		Return(nil).Once()

	require.NoError(t, o.Broadcast(context.Background(), TriggerManual))
	assert.Contains(t, replyText(sent), "📋 本日の投資サマリー")

	status := o.Status()
	assert.Equal(t, 1, status.Broadcasts)
	assert.True(t, status.LastBroadcastOK)
	assert.Equal(t, 1, status.CachedPredictions)
	assert.Equal(t, "CLOSED", status.CircuitBreakerState)
}

func TestBroadcastSkipsFailedPrediction(t *testing.T) {
	o, predictor, sender := newTestOrchestrator(t)
	failed := models.ErrorResult(uuid.New(), "2024-05-26", models.ErrValidationFailure, time.Second)
	predictor.On("RunPrediction", mock.Anything, mock.Anything, mock.Anything).Return(failed)

	err := o.Broadcast(context.Background(), TriggerScheduled)
	assert.Error(t, err)
	sender.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	assert.False(t, o.Status().LastBroadcastOK)
}

func TestBroadcastSuspendedAfterFailures(t *testing.T) {
	o, predictor, sender := newTestOrchestrator(t)
	predictor.On("RunPrediction", mock.Anything, mock.Anything, mock.Anything).Return(sampleResult()).Once()
	sender.On("Broadcast", mock.Anything, mock.Anything).Return(errors.New("503 service unavailable"))

	for i := 0; i < 3; i++ {
		assert.Error(t, o.Broadcast(context.Background(), TriggerScheduled))
	}
	err := o.Broadcast(context.Background(), TriggerScheduled)

	assert.ErrorIs(t, err, ErrDeliverySuspended)
	sender.AssertNumberOfCalls(t, "Broadcast", 3)
	assert.Equal(t, "OPEN", o.Status().CircuitBreakerState)
}

func TestResetDailyDropsCache(t *testing.T) {
	o, predictor, _ := newTestOrchestrator(t)
	predictor.On("RunPrediction", mock.Anything, mock.Anything, mock.Anything).Return(sampleResult())

	o.Predict(context.Background(), raceDay)
	o.ResetDaily()
	o.Predict(context.Background(), raceDay)

	predictor.AssertNumberOfCalls(t, "RunPrediction", 2)
}

func TestStatsReplyUsesCache(t *testing.T) {
	o, predictor, _ := newTestOrchestrator(t)
	predictor.On("RunPrediction", mock.Anything, mock.Anything, mock.Anything).Return(sampleResult()).Once()

	o.Predict(context.Background(), raceDay)
	text := o.Respond(context.Background(), "統計", raceDay)

	assert.Contains(t, text, "本日の推奨投資額: ¥5,000")
	predictor.AssertNumberOfCalls(t, "RunPrediction", 1)
}

func TestFindRace(t *testing.T) {
	races := sampleResult().Races
	tests := []struct {
		ref    string
		number int
		ok     bool
	}{
		{"202405260512", 12, true},
		{"11", 11, true},
		{"11R", 11, true},
		{"東京12R", 12, true},
		{"京都11R", 0, false},
		{"5", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			race, ok := findRace(races, tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.number, race.RaceNumber)
		})
	}
}

func TestCronClock(t *testing.T) {
	assert.Equal(t, "10:00", cronClock("0 10 * * *"))
	assert.Equal(t, "9:30", cronClock("30 9 * * 6,0"))
	assert.Equal(t, "定時", cronClock("@daily"))
	assert.Equal(t, "定時", cronClock("*/5 * * * *"))
}
