package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourusername/keiba-line-bot/internal/models"
	"github.com/yourusername/keiba-line-bot/internal/service"
)

var settleCmd = &cobra.Command{
	Use:   "settle <results.json>",
	Short: "Record official results and settle stored recommendations",
	Long: `Reads one race outcome, or a JSON array of them, records each result and
settles the stored recommendations of that race. Payouts are per 100 yen.`,
	Example: `  keiba-bot settle results/2024-05-26.json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcomes, err := readOutcomes(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireDB(); err != nil {
			return err
		}

		settlement := service.NewSettlementService(a.repos.Outcome, appLog)
		failed := 0
		for i := range outcomes {
			summary, err := settlement.RecordOutcome(cmd.Context(), &outcomes[i])
			if err != nil {
				failed++
				appLog.WithError(err).WithField("race_id", outcomes[i].RaceID).Error("Failed to record outcome")
				continue
			}
			fmt.Printf("%s: settled %d, hits %d, invested %s, returned %s\n",
				summary.RaceID, summary.Settled, summary.Hits,
				summary.Invested.StringFixed(0), summary.Payout.StringFixed(0))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d outcomes failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settleCmd)
}

func readOutcomes(path string) ([]models.RaceOutcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	data = bytes.TrimSpace(data)

	var outcomes []models.RaceOutcome
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &outcomes)
	} else {
		var one models.RaceOutcome
		err = json.Unmarshal(data, &one)
		outcomes = append(outcomes, one)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	return outcomes, nil
}
