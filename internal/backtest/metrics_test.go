package backtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/keiba-line-bot/internal/config"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

var reviewRun = uuid.MustParse("6f1c1f5e-9a51-4a8e-9a1f-3b5f7f9a0c11")

func settled(day int, raceID string, score float64, bt models.BetType, amount int64, odds, prob, conf float64, payout int64) models.SettledStake {
	return models.SettledStake{
		RunID:      reviewRun,
		RaceID:     raceID,
		RaceDate:   time.Date(2024, 5, day, 15, 40, 0, 0, time.UTC),
		FinalScore: score,
		Hit:        payout > 0,
		Payout:     decimal.NewFromInt(payout),
		Stake: models.StakeRecommendation{
			RaceID:         raceID,
			BetType:        bt,
			Amount:         decimal.NewFromInt(amount),
			Odds:           odds,
			WinProbability: prob,
			Confidence:     conf,
		},
	}
}

// Two racing days: +3000 then -2500 against a 10000 bankroll.
func sampleStakes() []models.SettledStake {
	return []models.SettledStake{
		settled(25, "202405250511", 80, models.BetTypeWin, 1000, 5.0, 0.3, 0.85, 5000),
		settled(25, "202405250511", 80, models.BetTypePlace, 1000, 1.8, 0.5, 0.55, 0),
		settled(26, "202405260512", 70, models.BetTypeWin, 2000, 4.0, 0.25, 0.7, 0),
		settled(26, "202405260512", 70, models.BetTypeTrifecta, 500, 50, 0.02, 0.15, 0),
	}
}

func sampleConfig() ReviewConfig {
	return ReviewConfig{
		StartDate:          time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		InitialBankroll:    10000,
		CalibrationBuckets: 5,
	}
}

func TestCalculateMetrics(t *testing.T) {
	m := CalculateMetrics(sampleStakes(), sampleConfig())

	assert.Equal(t, 4, m.Overall.Stakes)
	assert.Equal(t, 1, m.Overall.Hits)
	assert.InDelta(t, 0.25, m.Overall.HitRate, 1e-9)
	assert.True(t, m.Overall.Invested.Equal(decimal.NewFromInt(4500)))
	assert.True(t, m.Overall.Returned.Equal(decimal.NewFromInt(5000)))
	assert.InDelta(t, 500.0/4500.0, m.Overall.ROI, 1e-9)

	assert.InDelta(t, 4000.0/3500.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 4000, m.LargestWin, 1e-9)
	assert.InDelta(t, -2000, m.LargestLoss, 1e-9)

	assert.Equal(t, 2, m.Races)
	assert.InDelta(t, 75, m.ScoreMean, 1e-9)
	assert.InDelta(t, 7.0711, m.ScoreStdDev, 1e-3)
	assert.InDelta(t, 0.8029/4, m.BrierScore, 1e-9)

	assert.Equal(t, 2, m.RacingDays)
	assert.InDelta(t, 2500.0/13000.0, m.MaxDrawdown, 1e-9)
}

func TestCalculateMetricsByBetType(t *testing.T) {
	m := CalculateMetrics(sampleStakes(), sampleConfig())
	require.Len(t, m.ByBetType, 3)

	tests := []struct {
		betType string
		stakes  int
		hitRate float64
		roi     float64
	}{
		{"place", 1, 0, -1},
		{"trifecta", 1, 0, -1},
		{"win", 2, 0.5, 2000.0 / 3000.0},
	}
	for i, tt := range tests {
		t.Run(tt.betType, func(t *testing.T) {
			bt := m.ByBetType[i]
			assert.Equal(t, tt.betType, bt.BetType)
			assert.Equal(t, tt.stakes, bt.Stakes)
			assert.InDelta(t, tt.hitRate, bt.HitRate, 1e-9)
			assert.InDelta(t, tt.roi, bt.ROI, 1e-9)
		})
	}
}

func TestCalculateMetricsEmpty(t *testing.T) {
	cfg := sampleConfig()
	m := CalculateMetrics(nil, cfg)
	assert.Zero(t, m.Overall.Stakes)
	assert.Empty(t, m.ByBetType)
	assert.Equal(t, cfg.StartDate, m.StartDate)
	assert.JSONEq(t, m.ToJSON(), CalculateMetrics([]models.SettledStake{}, cfg).ToJSON())
}

func TestCalibration(t *testing.T) {
	buckets := calibrate(sampleStakes(), 5)
	require.Len(t, buckets, 5)

	counts := make([]int, len(buckets))
	for i, b := range buckets {
		counts[i] = b.Count
	}
	assert.Equal(t, []int{1, 0, 1, 1, 1}, counts)
	assert.InDelta(t, 0.85, buckets[4].MeanConfidence, 1e-9)
	assert.InDelta(t, 1.0, buckets[4].HitRate, 1e-9)
	assert.InDelta(t, 0.15, buckets[4].Gap(), 1e-9)

	// gaps 0.15, 0.55, 0.7, 0.15 weighted equally
	ece := expectedCalibrationError(buckets, 4)
	assert.InDelta(t, (0.15+0.55+0.7+0.15)/4, ece, 1e-9)
}

func TestCalibrationClampsConfidence(t *testing.T) {
	stakes := []models.SettledStake{
		settled(25, "r1", 60, models.BetTypeWin, 100, 3, 0.3, 1.0, 300),
		settled(25, "r2", 60, models.BetTypeWin, 100, 3, 0.3, -0.2, 0),
	}
	buckets := calibrate(stakes, 4)
	assert.Equal(t, 1, buckets[0].Count)
	assert.Equal(t, 1, buckets[3].Count)
}

func TestBrierScoreSkipsMissingProbability(t *testing.T) {
	stakes := []models.SettledStake{
		settled(25, "r1", 60, models.BetTypeWin, 100, 3, 0, 0.5, 300),
		settled(25, "r2", 60, models.BetTypeWin, 100, 3, 0.4, 0.5, 0),
	}
	assert.InDelta(t, 0.16, brierScore(stakes), 1e-9)
}

func TestProfitFactorWithoutLosses(t *testing.T) {
	stakes := []models.SettledStake{settled(25, "r1", 60, models.BetTypeWin, 100, 3, 0.3, 0.5, 300)}
	factor, win, loss := profitStats(stakes)
	assert.Equal(t, 999.0, factor)
	assert.InDelta(t, 200, win, 1e-9)
	assert.Zero(t, loss)
}

func TestSharpeRatio(t *testing.T) {
	assert.NotZero(t, calculateSharpeRatio([]float64{0.01, 0.02, -0.01, 0.03}))
	assert.Zero(t, calculateSharpeRatio([]float64{0.01}))
	assert.Zero(t, calculateSharpeRatio([]float64{0.02, 0.02, 0.02}))
}

func TestFromConfig(t *testing.T) {
	end := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	rc, err := FromConfig(configReview(0, 0), 20000, end)
	require.NoError(t, err)
	assert.Equal(t, end.AddDate(0, 0, -30), rc.StartDate)
	assert.Equal(t, 5, rc.CalibrationBuckets)
	assert.Equal(t, 20000.0, rc.InitialBankroll)

	rc, err = FromConfig(configReview(7, 10), 20000, end)
	require.NoError(t, err)
	assert.Equal(t, end.AddDate(0, 0, -7), rc.StartDate)
	assert.Equal(t, 10, rc.CalibrationBuckets)

	_, err = FromConfig(configReview(7, 10), 0, end)
	assert.Error(t, err)
}

func TestReviewConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ReviewConfig)
		wantErr bool
	}{
		{"valid", func(*ReviewConfig) {}, false},
		{"reversed window", func(c *ReviewConfig) { c.StartDate = c.EndDate.AddDate(0, 0, 1) }, true},
		{"no bankroll", func(c *ReviewConfig) { c.InitialBankroll = 0 }, true},
		{"negative iterations", func(c *ReviewConfig) { c.MonteCarloIterations = -1 }, true},
		{"no buckets", func(c *ReviewConfig) { c.CalibrationBuckets = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sampleConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func configReview(lookback, buckets int) config.ReviewConfig {
	return config.ReviewConfig{LookbackDays: lookback, CalibrationBuckets: buckets, MonteCarloIterations: 100}
}
