package backtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/keiba-line-bot/internal/models"
)

// MonteCarloConfig configures monte carlo simulation
type MonteCarloConfig struct {
	Iterations      int
	Seed            int64
	InitialBankroll float64
}

// MonteCarloResult represents monte carlo outcomes
type MonteCarloResult struct {
	Iterations          int                `json:"iterations"`
	MeanReturn          float64            `json:"mean_return"`
	StdReturn           float64            `json:"std_return"`
	VaR95               float64            `json:"var_95"`
	VaR99               float64            `json:"var_99"`
	ProbabilityOfProfit float64            `json:"probability_of_profit"`
	ProbabilityOfRuin   float64            `json:"probability_of_ruin"`
	ConfidenceIntervals map[string]float64 `json:"confidence_intervals"`
	Distribution        []float64          `json:"-"`
}

// RunMonteCarlo replays the reviewed stakes with outcomes drawn from their
// stated win probabilities. A hit pays the realised payout ratio when one was
// recorded, otherwise the quoted odds.
func RunMonteCarlo(ctx context.Context, stakes []models.SettledStake, cfg MonteCarloConfig) (MonteCarloResult, error) {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1000
	}
	if cfg.InitialBankroll <= 0 {
		return MonteCarloResult{}, fmt.Errorf("initial bankroll must be positive")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	type draw struct {
		amount, ratio, prob float64
	}
	draws := make([]draw, 0, len(stakes))
	for _, s := range stakes {
		amount, _ := s.Stake.Amount.Float64()
		ratio := s.Stake.Odds
		if s.Hit && s.Stake.Amount.IsPositive() {
			ratio, _ = s.Payout.Div(s.Stake.Amount).Float64()
		}
		prob := s.Stake.WinProbability
		if prob <= 0 && s.Stake.Odds > 1 {
			prob = 1 / s.Stake.Odds
		}
		draws = append(draws, draw{amount: amount, ratio: ratio, prob: prob})
	}

	rng := rand.New(rand.NewSource(seed))
	distribution := make([]float64, cfg.Iterations)

	for i := 0; i < cfg.Iterations; i++ {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return MonteCarloResult{}, err
			}
		}
		bankroll := cfg.InitialBankroll
		for _, d := range draws {
			bankroll -= d.amount
			if rng.Float64() < d.prob {
				bankroll += d.amount * d.ratio
			}
			if bankroll <= 0 {
				bankroll = 0
				break
			}
		}
		distribution[i] = bankroll
	}

	sorted := append([]float64(nil), distribution...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	initial := cfg.InitialBankroll

	return MonteCarloResult{
		Iterations:          cfg.Iterations,
		MeanReturn:          (mean - initial) / initial,
		StdReturn:           std / initial,
		VaR95:               (quantile(sorted, 0.05) - initial) / initial,
		VaR99:               (quantile(sorted, 0.01) - initial) / initial,
		ProbabilityOfProfit: fractionWhere(sorted, func(v float64) bool { return v > initial }),
		ProbabilityOfRuin:   fractionWhere(sorted, func(v float64) bool { return v <= 0 }),
		ConfidenceIntervals: CalculateConfidenceIntervals(sorted, []float64{0.9, 0.95, 0.99}),
		Distribution:        distribution,
	}, nil
}

// CalculateConfidenceIntervals returns the width of each central interval of
// a sorted distribution.
func CalculateConfidenceIntervals(sorted []float64, levels []float64) map[string]float64 {
	results := make(map[string]float64)
	for _, level := range levels {
		p := (1.0 - level) / 2.0
		results[fmt.Sprintf("%.0f%%", level*100)] = quantile(sorted, 1.0-p) - quantile(sorted, p)
	}
	return results
}

func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

func fractionWhere(values []float64, pred func(float64) bool) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if pred(v) {
			count++
		}
	}
	return float64(count) / float64(len(values))
}
