package backtest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/keiba-line-bot/internal/models"
)

func TestBuildEquityCurve(t *testing.T) {
	stakes := sampleStakes()
	// input order must not matter
	reversed := []models.SettledStake{stakes[3], stakes[2], stakes[1], stakes[0]}

	curve := BuildEquityCurve(reversed, 10000)
	require.Len(t, curve, 2)

	assert.Equal(t, 25, curve[0].Time.Day())
	assert.InDelta(t, 3000, curve[0].DailyPnL, 1e-9)
	assert.InDelta(t, 13000, curve[0].Value, 1e-9)
	assert.Zero(t, curve[0].Drawdown)

	assert.Equal(t, 26, curve[1].Time.Day())
	assert.InDelta(t, -2500, curve[1].DailyPnL, 1e-9)
	assert.InDelta(t, 10500, curve[1].Value, 1e-9)
	assert.InDelta(t, 2500.0/13000.0, curve[1].Drawdown, 1e-9)
	assert.InDelta(t, 2500.0/13000.0, curve.MaxDrawdown(), 1e-9)
}

func TestEquityCurveReturns(t *testing.T) {
	curve := BuildEquityCurve(sampleStakes(), 10000)
	returns := curve.GetReturns()
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.3, returns[0], 1e-9)
	assert.InDelta(t, -2500.0/13000.0, returns[1], 1e-9)
	assert.Greater(t, curve.GetVolatility(), 0.0)

	assert.Empty(t, EquityCurve{}.GetReturns())
	assert.Zero(t, EquityCurve{}.GetVolatility())
}

func TestEquityCurveExport(t *testing.T) {
	curve := BuildEquityCurve(sampleStakes(), 10000)

	csv := curve.ToCSV()
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,value,drawdown,daily_pnl", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2024-05-25,13000.000000,"))

	assert.Contains(t, curve.ToJSON(), `"daily_pnl":3000`)
}
