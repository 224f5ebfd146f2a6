package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/keiba-line-bot/internal/bot"
	"github.com/yourusername/keiba-line-bot/internal/health"
	"github.com/yourusername/keiba-line-bot/internal/line"
	"github.com/yourusername/keiba-line-bot/internal/metrics"
	"github.com/yourusername/keiba-line-bot/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LINE webhook server and daily schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     cfg.App.Version,
		"source":      cfg.DataSource.Name,
	}).Info("keiba-bot starting")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	client := line.NewClient(cfg.LINE, appLog)
	orchestrator, err := bot.NewOrchestrator(cfg, a.prediction, client, appLog)
	if err != nil {
		return err
	}

	srvCfg := health.Config{
		ServiceName:   cfg.App.Name,
		Version:       cfg.App.Version,
		Commit:        GitCommit,
		Port:          cfg.Server.Port,
		ReadTimeout:   time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:  time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		EventTimeout:  time.Duration(cfg.Server.EventTimeoutSeconds) * time.Second,
		ChannelSecret: cfg.LINE.ChannelSecret,
		AdminToken:    cfg.Server.AdminToken,
		Location:      a.loc,
		Logger:        appLog,
		Bot:           orchestrator,
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsPath = cfg.Metrics.Path
	}
	if a.db != nil {
		srvCfg.DB = a.db
	}
	server := health.NewServer(srvCfg)

	sched := scheduler.NewScheduler(a.loc, appLog)
	if cfg.Scheduler.Enabled {
		if err := sched.ScheduleBroadcast(cfg.Scheduler.BroadcastCron, orchestrator); err != nil {
			return err
		}
		if cfg.Scheduler.ResetCron != "" {
			if err := sched.ScheduleCacheReset(cfg.Scheduler.ResetCron, orchestrator); err != nil {
				return err
			}
		}
		if cfg.Scheduler.IngestCron != "" {
			if a.repos == nil {
				appLog.Warn("ingest_cron set without a database; ingestion not scheduled")
			} else if err := sched.ScheduleIngestion(cfg.Scheduler.IngestCron, a.ingestion()); err != nil {
				return err
			}
		}
		if err := sched.Start(); err != nil {
			return err
		}
	}

	if err := server.Start(context.Background()); err != nil {
		return err
	}
	server.SetReady(true)
	appLog.WithField("port", cfg.Server.Port).Info("keiba-bot ready")

	<-ctx.Done()
	appLog.Info("Shutdown signal received")
	server.SetReady(false)

	if sched.IsRunning() {
		if err := sched.Stop(); err != nil {
			appLog.WithError(err).Warn("Scheduler stop incomplete")
		}
	}
	if err := server.Shutdown(); err != nil {
		appLog.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	appLog.Info("keiba-bot stopped")
	return nil
}
