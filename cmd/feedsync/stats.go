package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the server's feed counters",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()

	a, err := newApp(ctx, cfg, false, quietLogger(debug))
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if ok, err := a.gate(ctx, out); err != nil || !ok {
		return err
	}

	stats, err := a.stats.GetJobStats(ctx)
	if err != nil {
		return fmt.Errorf("fetching stats: %w", err)
	}

	fmt.Fprintf(out, "%-16s %d\n", "Total", stats.Total)
	fmt.Fprintf(out, "%-16s %d\n", "With contact", stats.WithContact)
	fmt.Fprintf(out, "%-16s %d\n", "For you", stats.ForYou)
	last := "never"
	if stats.LastScrapedAt != nil {
		last = fmt.Sprintf("%s (%s ago)", stats.LastScrapedAt.Local().Format("2006-01-02 15:04"),
			time.Since(*stats.LastScrapedAt).Round(time.Minute))
	}
	fmt.Fprintf(out, "%-16s %s\n", "Last scraped", last)
	return nil
}
