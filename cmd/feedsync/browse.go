package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/feedsync/internal/browse"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the live feed interactively (TUI)",
	Long:  "Full-screen feed with tabs, search, manual refresh and scrapes. Pushed jobs appear as they arrive.",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Log output while the alt-screen is up corrupts the display.
	logger := discardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if ok, err := a.gate(ctx, cmd.OutOrStdout()); err != nil || !ok {
		return err
	}

	f := a.newFeed(nil, logger)
	defer f.Teardown()

	return browse.Run(ctx, f, cfg.Feed)
}
