package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amishk599/feedsync/internal/api"
	"github.com/amishk599/feedsync/internal/config"
	"github.com/amishk599/feedsync/internal/feed"
	"github.com/amishk599/feedsync/internal/model"
	"github.com/amishk599/feedsync/internal/notifier"
	"github.com/amishk599/feedsync/internal/ratelimit"
	"github.com/amishk599/feedsync/internal/realtime"
	"github.com/amishk599/feedsync/internal/retry"
	"github.com/amishk599/feedsync/internal/source"
	"github.com/amishk599/feedsync/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "feedsync",
	Short: "Keep a live job feed in sync with the server",
	Long:  "feedsync pulls the job feed, applies pushed updates, triggers scrapes and keeps the feed fresh.",
	// Default to `watch` so that `feedsync` with no args runs the daemon.
	RunE:         runWatch,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: FEEDSYNC_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// errFeatureClosed is returned when the feature gate denies access.
var errFeatureClosed = errors.New("feature not available")

// loadConfig loads .env (if present) and then the config file.
// Priority: --config flag > FEEDSYNC_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	return config.Load(config.ResolvePath(path))
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// quietLogger keeps one-shot command output clean unless --debug is set.
func quietLogger(dbg bool) *slog.Logger {
	if dbg {
		return setupLogger(true)
	}
	return discardLogger()
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// app holds the wired collaborators of one command run.
type app struct {
	cfg      *config.Config
	client   *api.Client
	features model.FeatureGate
	fetcher  model.Fetcher
	stats    model.StatsProvider
	source   realtime.Source
	snapshot *store.SQLiteSnapshot
	logger   *slog.Logger
	closers  []func()
}

// Close releases connections opened by newApp, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp builds the fetch chain (source -> rate limit -> retry), the optional
// realtime source and the optional snapshot. withRealtime is false for
// one-shot commands.
func newApp(ctx context.Context, cfg *config.Config, withRealtime bool, logger *slog.Logger) (*app, error) {
	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	a := &app{
		cfg:    cfg,
		client: api.NewClient(cfg.API.BaseURL, cfg.API.Token, httpClient),
		logger: logger,
	}
	a.features = a.client

	var (
		fetcher model.Fetcher       = a.client
		stats   model.StatsProvider = a.client
	)
	if cfg.Source.Type == "postgres" {
		pool, err := source.NewPostgresPool(ctx, cfg.Source.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		pg := source.NewPostgresSource(pool)
		fetcher, stats = pg, pg
		logger.Info("reading feed from postgres")
	}

	limiter := ratelimit.NewLimiter(cfg.Source.Type, cfg.Refresh.MinDelay)
	policy := retry.Policy{MaxRetries: cfg.Refresh.MaxRetries, BaseDelay: cfg.Refresh.RetryBaseDelay}
	a.fetcher = retry.NewRetryFetcher(ratelimit.NewLimitedFetcher(fetcher, limiter), policy, logger)
	a.stats = retry.NewRetryStats(ratelimit.NewLimitedStats(stats, limiter), policy, logger)

	if withRealtime {
		switch cfg.Realtime.Type {
		case "sse":
			a.source = realtime.NewSSESource(cfg.Realtime.URL, cfg.API.Token, realtime.NewSSEClient(cfg.API.Timeout), logger)
		case "redis":
			client, err := realtime.NewRedisClient(ctx, cfg.Realtime.RedisURL)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.closers = append(a.closers, func() { client.Close() })
			a.source = realtime.NewRedisSource(client, cfg.Realtime.Channel, logger)
		}
	}

	if cfg.SnapshotPath != "" {
		snap, err := store.NewSQLiteSnapshot(cfg.SnapshotPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { snap.Close() })
		a.snapshot = snap
	}

	return a, nil
}

// newFeed creates an orchestrator over the app's collaborators.
func (a *app) newFeed(n model.Notifier, logger *slog.Logger) *feed.Orchestrator {
	opts := feed.Options{
		Fetcher:        a.fetcher,
		Scraper:        a.client,
		Stats:          a.stats,
		Source:         a.source,
		Notifier:       n,
		PollInterval:   a.cfg.Scrape.PollInterval,
		RequestTimeout: a.cfg.Scrape.RequestTimeout,
		Logger:         logger,
	}
	// A nil *SQLiteSnapshot must not become a non-nil interface.
	if a.snapshot != nil {
		opts.Snapshot = a.snapshot
	}
	return feed.New(opts)
}

// checkFeature asks the server whether the configured feature is enabled.
// An empty feature skips the check.
func (a *app) checkFeature(ctx context.Context) error {
	if a.cfg.Feature == "" {
		return nil
	}
	ok, err := a.features.CanAccessFeature(ctx, a.cfg.Feature)
	if err != nil {
		return fmt.Errorf("checking feature %q: %w", a.cfg.Feature, err)
	}
	if !ok {
		return errFeatureClosed
	}
	return nil
}

// printComingSoon renders the static fallback shown when the gate is closed.
func printComingSoon(w io.Writer, feature string) {
	fmt.Fprintf(w, "\n  🚧  %s is coming soon.\n\n", feature)
	fmt.Fprintln(w, "  Your account does not have access to the live job feed yet.")
	fmt.Fprintln(w, "  We'll let you know as soon as it is switched on.")
	fmt.Fprintln(w)
}

// gate runs checkFeature and prints the fallback when the gate is closed.
// It reports whether the caller may continue.
func (a *app) gate(ctx context.Context, w io.Writer) (bool, error) {
	err := a.checkFeature(ctx)
	if errors.Is(err, errFeatureClosed) {
		a.logger.Info("feature gate closed", "feature", a.cfg.Feature)
		printComingSoon(w, a.cfg.Feature)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
