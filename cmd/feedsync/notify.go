package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/amishk599/feedsync/internal/model"
	"github.com/amishk599/feedsync/internal/notifier"
)

var notifyFromFeed int

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test new-jobs digest",
	Long: "Sends a sample new-jobs digest through the configured notifier. " +
		"With --from-feed N the first N jobs of the live feed are sent instead.",
	RunE: runNotifyTest,
}

func init() {
	notifyTestCmd.Flags().IntVar(&notifyFromFeed, "from-feed", 0, "send the first N jobs of the live feed instead of a sample")
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(debug)
	n := setupNotifier(cfg, &http.Client{Timeout: cfg.API.Timeout}, logger)

	if notifyFromFeed <= 0 {
		if err := notifier.SendTestMessage(n); err != nil {
			return fmt.Errorf("sending test notification: %w", err)
		}
		logger.Info("test notification sent", "notifier", cfg.Notification.Type)
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
	defer cancel()

	a, err := newApp(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sent, err := sendFeedDigest(ctx, a.fetcher, n, notifyFromFeed)
	if err != nil {
		return err
	}
	if sent == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "feed is empty, nothing to send")
		return nil
	}
	logger.Info("feed digest sent", "jobs", sent, "notifier", cfg.Notification.Type)
	return nil
}

// sendFeedDigest notifies the first limit jobs of the feed and reports how
// many were sent.
func sendFeedDigest(ctx context.Context, f model.Fetcher, n model.Notifier, limit int) (int, error) {
	res, err := f.FetchJobs(ctx, model.FetchParams{Limit: limit})
	if err != nil {
		return 0, fmt.Errorf("fetching feed: %w", err)
	}
	jobs := res.Jobs
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	if err := n.Notify(jobs); err != nil {
		return 0, fmt.Errorf("sending feed digest: %w", err)
	}
	return len(jobs), nil
}
