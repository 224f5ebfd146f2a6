package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourusername/keiba-line-bot/internal/bot"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

var (
	predictDate string
	predictJSON bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run the day's prediction and print it",
	Long: `Collects every race of the day, runs the analysis pipeline and prints the
message the bot would send. Use --json for the full prediction result.`,
	Example: `  keiba-bot predict
  keiba-bot predict --date 2024-05-26 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		date, err := a.parseDate(predictDate)
		if err != nil {
			return err
		}
		result := a.prediction.RunPrediction(cmd.Context(), date, a.budget())
		return printResult(result, func(f *bot.Formatter) string { return f.FormatDay(result) }, a)
	},
}

var raceCmd = &cobra.Command{
	Use:   "race <race>",
	Short: "Analyse a single race",
	Long:  `Analyses one race, given as a number ("11", "11R"), a track and number ("東京11R") or a race ID.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		date, err := a.parseDate(predictDate)
		if err != nil {
			return err
		}
		result := a.prediction.RunRace(cmd.Context(), date, args[0], a.budget())
		return printResult(result, func(f *bot.Formatter) string {
			if !result.Succeeded() || len(result.Races) == 0 {
				return f.FormatError(result)
			}
			return f.FormatRace(result.Races[0])
		}, a)
	},
}

func init() {
	for _, c := range []*cobra.Command{predictCmd, raceCmd} {
		c.Flags().StringVarP(&predictDate, "date", "d", "", "Race day (YYYY-MM-DD), default today")
		c.Flags().BoolVar(&predictJSON, "json", false, "Print the full result as JSON")
		rootCmd.AddCommand(c)
	}
}

func printResult(result *models.PredictionResult, text func(*bot.Formatter) string, a *app) error {
	if predictJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Println(text(bot.NewFormatter(a.loc, cfg.LINE.BroadcastMaxRaces)))
	}
	if !result.Succeeded() {
		return fmt.Errorf("prediction failed (%s): %s", result.ErrorKind, result.Error)
	}
	return nil
}
