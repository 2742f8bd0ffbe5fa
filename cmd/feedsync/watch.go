package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/feedsync/internal/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the feed live until interrupted",
	Long: "Loads the feed, subscribes to pushed updates and refreshes on the configured schedule. " +
		"New jobs are sent to the configured notifier. Blocks until SIGINT/SIGTERM.",
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"source", cfg.Source.Type,
		"realtime", cfg.Realtime.Type,
		"schedule", cfg.Refresh.Schedule,
		"notification", cfg.Notification.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true, logger)
	if err != nil {
		logger.Error("failed to set up feed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if ok, err := a.gate(ctx, cmd.OutOrStdout()); err != nil || !ok {
		return err
	}

	n := setupNotifier(cfg, &http.Client{Timeout: cfg.API.Timeout}, logger)
	f := a.newFeed(n, logger)
	defer f.Teardown()

	f.OnNewJobs(func(count int) {
		counts := f.TabCounts()
		logger.Info("feed updated", "new", count, "total", counts.All, "for_you", counts.ForYou)
	})

	if err := f.Initialize(ctx, cfg.Feed); err != nil {
		return fmt.Errorf("loading feed: %w", err)
	}

	counts := f.TabCounts()
	logger.Info("watching feed",
		"jobs", counts.All,
		"for_you", counts.ForYou,
		"saved", counts.Saved,
		"applied", counts.Applied,
	)

	if cfg.Refresh.Schedule == "" {
		<-ctx.Done()
	} else {
		sched := scheduler.NewScheduler(cfg.Refresh.Schedule, f.Refresh, false, logger)
		if err := sched.Run(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	logger.Info("goodbye")
	return nil
}
