package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateConsoleReport formats a review for terminal output
func GenerateConsoleReport(result *ReviewResult) string {
	m := result.Metrics
	var builder strings.Builder
	builder.WriteString("Recommendation Review\n")
	builder.WriteString("=====================\n")
	builder.WriteString(fmt.Sprintf("Window: %s - %s (%d racing days)\n",
		result.Config.StartDate.Format("2006-01-02"), result.Config.EndDate.Format("2006-01-02"), m.RacingDays))
	if result.Empty() {
		builder.WriteString("No settled stakes in window\n")
		return builder.String()
	}

	builder.WriteString(fmt.Sprintf("Stakes: %d (%d races)\n", m.Overall.Stakes, m.Races))
	builder.WriteString(fmt.Sprintf("Hit Rate: %.2f%%\n", m.Overall.HitRate*100))
	builder.WriteString(fmt.Sprintf("ROI: %.2f%%\n", m.Overall.ROI*100))
	builder.WriteString(fmt.Sprintf("Invested: %s  Returned: %s\n", m.Overall.Invested.StringFixed(0), m.Overall.Returned.StringFixed(0)))
	builder.WriteString(fmt.Sprintf("Profit Factor: %.2f\n", m.ProfitFactor))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%\n", m.MaxDrawdown*100))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.2f\n", m.SharpeRatio))
	builder.WriteString(fmt.Sprintf("Score: mean %.1f, stddev %.2f\n", m.ScoreMean, m.ScoreStdDev))
	builder.WriteString(fmt.Sprintf("Brier Score: %.4f\n", m.BrierScore))
	builder.WriteString(fmt.Sprintf("Calibration Error: %.4f\n", m.CalibrationError))

	builder.WriteString("\nBy bet type\n")
	for _, bt := range m.ByBetType {
		builder.WriteString(fmt.Sprintf("  %-9s %4d stakes  hit %6.2f%%  roi %7.2f%%\n",
			bt.BetType, bt.Stakes, bt.HitRate*100, bt.ROI*100))
	}

	builder.WriteString("\nCalibration\n")
	for _, b := range m.Calibration {
		if b.Count == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("  %.2f-%.2f  n=%-4d confidence %.2f  hit %.2f\n",
			b.Lower, b.Upper, b.Count, b.MeanConfidence, b.HitRate))
	}

	if mc := result.MonteCarlo; mc != nil {
		builder.WriteString(fmt.Sprintf("\nMonte Carlo (%d runs)\n", mc.Iterations))
		builder.WriteString(fmt.Sprintf("  Mean Return: %.2f%%\n", mc.MeanReturn*100))
		builder.WriteString(fmt.Sprintf("  VaR 95%%: %.2f%%\n", mc.VaR95*100))
		builder.WriteString(fmt.Sprintf("  P(profit): %.2f%%  P(ruin): %.2f%%\n", mc.ProbabilityOfProfit*100, mc.ProbabilityOfRuin*100))
	}
	return builder.String()
}

// GenerateCSVExport exports key metrics for spreadsheets
func GenerateCSVExport(result *ReviewResult, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	m := result.Metrics
	var b strings.Builder
	b.WriteString("metric,value\n")
	b.WriteString(fmt.Sprintf("stakes,%d\n", m.Overall.Stakes))
	b.WriteString(fmt.Sprintf("hit_rate,%.4f\n", m.Overall.HitRate))
	b.WriteString(fmt.Sprintf("roi,%.4f\n", m.Overall.ROI))
	b.WriteString(fmt.Sprintf("profit_factor,%.4f\n", m.ProfitFactor))
	b.WriteString(fmt.Sprintf("max_drawdown,%.4f\n", m.MaxDrawdown))
	b.WriteString(fmt.Sprintf("sharpe_ratio,%.4f\n", m.SharpeRatio))
	b.WriteString(fmt.Sprintf("brier_score,%.4f\n", m.BrierScore))
	b.WriteString(fmt.Sprintf("calibration_error,%.4f\n", m.CalibrationError))
	for _, bt := range m.ByBetType {
		b.WriteString(fmt.Sprintf("hit_rate_%s,%.4f\n", bt.BetType, bt.HitRate))
		b.WriteString(fmt.Sprintf("roi_%s,%.4f\n", bt.BetType, bt.ROI))
	}
	return os.WriteFile(outputPath, []byte(b.String()), 0o644)
}

// WriteJSONReport writes the full review as indented JSON
func WriteJSONReport(result *ReviewResult, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}
