package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	ingestStart string
	ingestEnd   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store past performances from collected race cards",
	Long: `Collects every race day between --start and --end and stores the past
performances printed on each race card, keyed by horse, for the scorers to use.`,
	Example: `  keiba-bot ingest --start 2024-05-01 --end 2024-05-31`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireDB(); err != nil {
			return err
		}

		start, err := a.parseDate(ingestStart)
		if err != nil {
			return err
		}
		end := start
		if ingestEnd != "" {
			if end, err = a.parseDate(ingestEnd); err != nil {
				return err
			}
		}

		m, err := a.ingestion().IngestRange(cmd.Context(), start, end)
		if err != nil {
			return err
		}
		fmt.Println(m.String())
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestStart, "start", "", "First day (YYYY-MM-DD), default today")
	ingestCmd.Flags().StringVar(&ingestEnd, "end", "", "Last day (YYYY-MM-DD), default --start")
	rootCmd.AddCommand(ingestCmd)
}
