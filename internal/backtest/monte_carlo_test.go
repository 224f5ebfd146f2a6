package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/keiba-line-bot/internal/models"
)

func TestRunMonteCarloCertainOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		stake      models.SettledStake
		final      float64
		profitProb float64
		ruinProb   float64
	}{
		{
			name:       "certain win at quoted odds",
			stake:      settled(25, "r1", 70, models.BetTypeWin, 100, 2.0, 1.0, 0.9, 0),
			final:      1100,
			profitProb: 1,
		},
		{
			name:       "certain win pays realised payout",
			stake:      settled(25, "r1", 70, models.BetTypeWin, 100, 2.0, 1.0, 0.9, 300),
			final:      1200,
			profitProb: 1,
		},
		{
			name:  "no probability and no odds never wins",
			stake: settled(25, "r1", 70, models.BetTypeWin, 100, 0, 0, 0.9, 0),
			final: 900,
		},
		{
			name:     "whole bankroll lost",
			stake:    settled(25, "r1", 70, models.BetTypeWin, 1000, 0, 0, 0.9, 0),
			final:    0,
			ruinProb: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := RunMonteCarlo(context.Background(), []models.SettledStake{tt.stake}, MonteCarloConfig{
				Iterations:      50,
				Seed:            7,
				InitialBankroll: 1000,
			})
			require.NoError(t, err)
			assert.Equal(t, 50, res.Iterations)
			assert.InDelta(t, (tt.final-1000)/1000, res.MeanReturn, 1e-9)
			assert.InDelta(t, 0, res.StdReturn, 1e-9)
			assert.InDelta(t, tt.profitProb, res.ProbabilityOfProfit, 1e-9)
			assert.InDelta(t, tt.ruinProb, res.ProbabilityOfRuin, 1e-9)
			assert.InDelta(t, 0, res.ConfidenceIntervals["95%"], 1e-9)
		})
	}
}

func TestRunMonteCarloSeeded(t *testing.T) {
	cfg := MonteCarloConfig{Iterations: 200, Seed: 42, InitialBankroll: 10000}

	a, err := RunMonteCarlo(context.Background(), sampleStakes(), cfg)
	require.NoError(t, err)
	b, err := RunMonteCarlo(context.Background(), sampleStakes(), cfg)
	require.NoError(t, err)

	assert.Equal(t, a.Distribution, b.Distribution)
	assert.LessOrEqual(t, a.VaR99, a.VaR95)
	assert.GreaterOrEqual(t, a.ConfidenceIntervals["99%"], a.ConfidenceIntervals["90%"])
}

func TestRunMonteCarloErrors(t *testing.T) {
	_, err := RunMonteCarlo(context.Background(), sampleStakes(), MonteCarloConfig{Iterations: 10})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RunMonteCarlo(ctx, sampleStakes(), MonteCarloConfig{Iterations: 10, InitialBankroll: 1000})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunMonteCarloDefaultsIterations(t *testing.T) {
	res, err := RunMonteCarlo(context.Background(), nil, MonteCarloConfig{Seed: 1, InitialBankroll: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1000, res.Iterations)
	assert.Zero(t, res.MeanReturn)
}
