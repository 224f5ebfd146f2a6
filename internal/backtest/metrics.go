package backtest

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/keiba-line-bot/internal/models"
)

// AllBetTypes labels the aggregate row
const AllBetTypes = "all"

// BetTypeStats summarises settled stakes of one bet type
type BetTypeStats struct {
	BetType  string          `json:"bet_type"`
	Stakes   int             `json:"stakes"`
	Hits     int             `json:"hits"`
	HitRate  float64         `json:"hit_rate"`
	Invested decimal.Decimal `json:"invested"`
	Returned decimal.Decimal `json:"returned"`
	ROI      float64         `json:"roi"`
}

// Profit is the total returned minus the total invested.
func (b BetTypeStats) Profit() decimal.Decimal {
	return b.Returned.Sub(b.Invested)
}

// CalibrationBucket compares stated confidence with observed hit rate
type CalibrationBucket struct {
	Lower          float64 `json:"lower"`
	Upper          float64 `json:"upper"`
	Count          int     `json:"count"`
	MeanConfidence float64 `json:"mean_confidence"`
	HitRate        float64 `json:"hit_rate"`
}

// Gap is the absolute difference between confidence and hit rate.
func (c CalibrationBucket) Gap() float64 {
	return math.Abs(c.MeanConfidence - c.HitRate)
}

// Metrics represents review results over a window
type Metrics struct {
	Overall          BetTypeStats        `json:"overall"`
	ByBetType        []BetTypeStats      `json:"by_bet_type"`
	ProfitFactor     float64             `json:"profit_factor"`
	LargestWin       float64             `json:"largest_win"`
	LargestLoss      float64             `json:"largest_loss"`
	Races            int                 `json:"races"`
	ScoreMean        float64             `json:"score_mean"`
	ScoreStdDev      float64             `json:"score_stddev"`
	BrierScore       float64             `json:"brier_score"`
	CalibrationError float64             `json:"calibration_error"`
	Calibration      []CalibrationBucket `json:"calibration"`
	MaxDrawdown      float64             `json:"max_drawdown"`
	SharpeRatio      float64             `json:"sharpe_ratio"`
	StartDate        time.Time           `json:"start_date"`
	EndDate          time.Time           `json:"end_date"`
	RacingDays       int                 `json:"racing_days"`
}

// CalculateMetrics reviews settled stakes. The equity curve starts from
// cfg.InitialBankroll.
func CalculateMetrics(stakes []models.SettledStake, cfg ReviewConfig) Metrics {
	metrics := Metrics{
		StartDate: cfg.StartDate,
		EndDate:   cfg.EndDate,
	}
	if len(stakes) == 0 {
		return metrics
	}

	metrics.Overall, metrics.ByBetType = betTypeStats(stakes)
	metrics.ProfitFactor, metrics.LargestWin, metrics.LargestLoss = profitStats(stakes)
	metrics.Races, metrics.ScoreMean, metrics.ScoreStdDev = scoreStability(stakes)
	metrics.BrierScore = brierScore(stakes)
	metrics.Calibration = calibrate(stakes, cfg.CalibrationBuckets)
	metrics.CalibrationError = expectedCalibrationError(metrics.Calibration, len(stakes))

	curve := BuildEquityCurve(stakes, cfg.InitialBankroll)
	metrics.RacingDays = len(curve)
	metrics.MaxDrawdown = curve.MaxDrawdown()
	metrics.SharpeRatio = calculateSharpeRatio(curve.GetReturns())

	return metrics
}

// ToJSON exports metrics to JSON
func (m Metrics) ToJSON() string {
	data, _ := json.Marshal(m)
	return string(data)
}

func betTypeStats(stakes []models.SettledStake) (BetTypeStats, []BetTypeStats) {
	overall := BetTypeStats{BetType: AllBetTypes}
	byType := make(map[models.BetType]*BetTypeStats)

	for _, s := range stakes {
		bt, ok := byType[s.Stake.BetType]
		if !ok {
			bt = &BetTypeStats{BetType: string(s.Stake.BetType)}
			byType[s.Stake.BetType] = bt
		}
		for _, agg := range []*BetTypeStats{&overall, bt} {
			agg.Stakes++
			agg.Invested = agg.Invested.Add(s.Stake.Amount)
			agg.Returned = agg.Returned.Add(s.Payout)
			if s.Hit {
				agg.Hits++
			}
		}
	}

	finish(&overall)
	out := make([]BetTypeStats, 0, len(byType))
	for _, bt := range byType {
		finish(bt)
		out = append(out, *bt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BetType < out[j].BetType })
	return overall, out
}

func finish(b *BetTypeStats) {
	if b.Stakes > 0 {
		b.HitRate = float64(b.Hits) / float64(b.Stakes)
	}
	if b.Invested.IsPositive() {
		b.ROI, _ = b.Profit().Div(b.Invested).Float64()
	}
}

func profitStats(stakes []models.SettledStake) (factor, largestWin, largestLoss float64) {
	grossProfit := 0.0
	grossLoss := 0.0
	for _, s := range stakes {
		pl, _ := s.Profit().Float64()
		if pl > 0 {
			grossProfit += pl
			largestWin = math.Max(largestWin, pl)
		} else {
			grossLoss += -pl
			largestLoss = math.Min(largestLoss, pl)
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return 999, largestWin, largestLoss
		}
		return 0, largestWin, largestLoss
	}
	return grossProfit / grossLoss, largestWin, largestLoss
}

// scoreStability is the spread of final scores across reviewed races.
func scoreStability(stakes []models.SettledStake) (races int, mean, stddev float64) {
	seen := make(map[string]bool)
	scores := make([]float64, 0, len(stakes))
	for _, s := range stakes {
		key := s.RunID.String() + "/" + s.RaceID
		if seen[key] {
			continue
		}
		seen[key] = true
		scores = append(scores, s.FinalScore)
	}
	if len(scores) == 0 {
		return 0, 0, 0
	}
	if len(scores) == 1 {
		return 1, scores[0], 0
	}
	mean, stddev = stat.MeanStdDev(scores, nil)
	return len(scores), mean, stddev
}

// brierScore measures the stated win probabilities against outcomes. Stakes
// without a probability are skipped.
func brierScore(stakes []models.SettledStake) float64 {
	errs := make([]float64, 0, len(stakes))
	for _, s := range stakes {
		p := s.Stake.WinProbability
		if p <= 0 {
			continue
		}
		outcome := 0.0
		if s.Hit {
			outcome = 1
		}
		errs = append(errs, (p-outcome)*(p-outcome))
	}
	if len(errs) == 0 {
		return 0
	}
	return stat.Mean(errs, nil)
}

func calibrate(stakes []models.SettledStake, n int) []CalibrationBucket {
	if n <= 0 {
		n = 5
	}
	width := 1.0 / float64(n)
	confidences := make([][]float64, n)
	hits := make([][]float64, n)

	for _, s := range stakes {
		c := math.Min(math.Max(s.Stake.Confidence, 0), 1)
		i := int(c / width)
		if i >= n {
			i = n - 1
		}
		confidences[i] = append(confidences[i], c)
		h := 0.0
		if s.Hit {
			h = 1
		}
		hits[i] = append(hits[i], h)
	}

	buckets := make([]CalibrationBucket, 0, n)
	for i := 0; i < n; i++ {
		b := CalibrationBucket{
			Lower: float64(i) * width,
			Upper: float64(i+1) * width,
			Count: len(confidences[i]),
		}
		if b.Count > 0 {
			b.MeanConfidence = stat.Mean(confidences[i], nil)
			b.HitRate = stat.Mean(hits[i], nil)
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// expectedCalibrationError is the count-weighted mean bucket gap.
func expectedCalibrationError(buckets []CalibrationBucket, total int) float64 {
	if total == 0 {
		return 0
	}
	gaps := make([]float64, 0, len(buckets))
	weights := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		if b.Count == 0 {
			continue
		}
		gaps = append(gaps, b.Gap())
		weights = append(weights, float64(b.Count))
	}
	if len(gaps) == 0 {
		return 0
	}
	return stat.Mean(gaps, weights)
}

// calculateSharpeRatio annualises daily returns over a racing year of
// roughly 104 days.
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(104)
}
