package backtest

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/yourusername/keiba-line-bot/internal/models"
	"gonum.org/v1/gonum/stat"
)

// EquityPoint represents a racing day in the equity curve
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"`
	DailyPnL float64   `json:"daily_pnl"`
}

// EquityCurve represents a time-series of equity points
type EquityCurve []EquityPoint

// BuildEquityCurve accumulates settled profit per racing day from initial.
func BuildEquityCurve(stakes []models.SettledStake, initial float64) EquityCurve {
	daily := make(map[string]float64)
	days := make(map[string]time.Time)
	for _, s := range stakes {
		d := s.RaceDate
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		key := day.Format("2006-01-02")
		pl, _ := s.Profit().Float64()
		daily[key] += pl
		days[key] = day
	}

	keys := make([]string, 0, len(daily))
	for k := range daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	curve := make(EquityCurve, 0, len(keys))
	value := initial
	peak := initial
	for _, k := range keys {
		value += daily[k]
		if value > peak {
			peak = value
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - value) / peak
		}
		curve = append(curve, EquityPoint{Time: days[k], Value: value, Drawdown: dd, DailyPnL: daily[k]})
	}
	return curve
}

// GetReturns calculates daily returns. The first day is measured against the
// starting bankroll.
func (e EquityCurve) GetReturns() []float64 {
	if len(e) == 0 {
		return []float64{}
	}
	returns := make([]float64, 0, len(e))
	for i, p := range e {
		prev := p.Value - p.DailyPnL
		if i > 0 {
			prev = e[i-1].Value
		}
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, p.DailyPnL/prev)
	}
	return returns
}

// GetVolatility calculates standard deviation of returns
func (e EquityCurve) GetVolatility() float64 {
	returns := e.GetReturns()
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil)
}

// MaxDrawdown returns the deepest peak-to-trough fall
func (e EquityCurve) MaxDrawdown() float64 {
	maxDD := 0.0
	for _, p := range e {
		if p.Drawdown > maxDD {
			maxDD = p.Drawdown
		}
	}
	return maxDD
}

// ToCSV exports equity curve to CSV string
func (e EquityCurve) ToCSV() string {
	var buf bytes.Buffer
	buf.WriteString("date,value,drawdown,daily_pnl\n")
	for _, point := range e {
		buf.WriteString(point.Time.Format("2006-01-02"))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Value))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Drawdown))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.DailyPnL))
		buf.WriteString("\n")
	}
	return buf.String()
}

// ToJSON exports equity curve to JSON string
func (e EquityCurve) ToJSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
