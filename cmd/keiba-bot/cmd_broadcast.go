package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yourusername/keiba-line-bot/internal/bot"
	"github.com/yourusername/keiba-line-bot/internal/line"
	"github.com/yourusername/keiba-line-bot/internal/scheduler"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Predict today and broadcast it to every follower once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		orchestrator, err := bot.NewOrchestrator(cfg, a.prediction, line.NewClient(cfg.LINE, appLog), appLog)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), scheduler.BroadcastTimeout)
		defer cancel()
		return orchestrator.Broadcast(ctx, bot.TriggerManual)
	},
}

func init() {
	rootCmd.AddCommand(broadcastCmd)
}
