package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/keiba-line-bot/internal/backtest"
)

var (
	reviewDays   int
	reviewEnd    string
	reviewOutput string
	reviewCSV    string
	reviewSeed   int64
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review how settled recommendations performed",
	Long: `Measures hit rate and ROI per bet type, score stability, confidence
calibration and drawdown over settled recommendations, and replays them in a
Monte Carlo bankroll simulation.`,
	Example: `  keiba-bot review --days 60 --csv out/review.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireDB(); err != nil {
			return err
		}

		end, err := a.parseDate(reviewEnd)
		if err != nil {
			return err
		}
		// include every race run on the end day
		end = end.Add(24*time.Hour - time.Nanosecond)

		reviewCfg := cfg.Review
		if reviewDays > 0 {
			reviewCfg.LookbackDays = reviewDays
		}
		if reviewOutput != "" {
			reviewCfg.OutputPath = reviewOutput
		}
		rc, err := backtest.FromConfig(reviewCfg, cfg.Staking.DailyBudget, end)
		if err != nil {
			return err
		}
		rc.Seed = reviewSeed

		reviewer, err := backtest.NewReviewer(a.repos.Outcome, appLog)
		if err != nil {
			return err
		}
		result, err := reviewer.Run(cmd.Context(), rc)
		if err != nil {
			return err
		}

		fmt.Print(backtest.GenerateConsoleReport(result))
		if reviewCSV != "" {
			if err := backtest.GenerateCSVExport(result, reviewCSV); err != nil {
				return fmt.Errorf("failed to export csv: %w", err)
			}
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().IntVar(&reviewDays, "days", 0, "Lookback window in days (default review.lookback_days)")
	reviewCmd.Flags().StringVar(&reviewEnd, "end", "", "Last day of the window (YYYY-MM-DD), default today")
	reviewCmd.Flags().StringVarP(&reviewOutput, "output", "o", "", "Write the full review as JSON")
	reviewCmd.Flags().StringVar(&reviewCSV, "csv", "", "Write key metrics as CSV")
	reviewCmd.Flags().Int64Var(&reviewSeed, "seed", 0, "Monte Carlo seed, 0 for random")
	rootCmd.AddCommand(reviewCmd)
}
