package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/feedsync/internal/model"
	"github.com/amishk599/feedsync/internal/scrape"
)

var (
	scrapeLocation string
	scrapeDate     string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <query>",
	Short: "Start a scrape and follow it to the end",
	Long: "Triggers a server-side scrape for <query>, prints every status transition until it " +
		"completes or fails, then prints the refreshed tab counts. Ctrl-C cancels the scrape.",
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeLocation, "location", "l", "", "location to scrape, e.g. \"Houston, TX\"")
	scrapeCmd.Flags().StringVarP(&scrapeDate, "date", "d", "", "only postings newer than this, e.g. 24h or 7d")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := quietLogger(debug)
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Realtime on: pushed progress ends the scrape sooner than the next poll.
	a, err := newApp(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if ok, err := a.gate(ctx, out); err != nil || !ok {
		return err
	}

	f := a.newFeed(nil, logger)
	defer f.Teardown()

	start := time.Now()
	f.OnScrapeStatus(func(op *scrape.Operation, status model.ScrapeStatus) {
		fmt.Fprintf(out, "[%6s] %-9s %s\n", time.Since(start).Round(time.Second), status, op.ID)
	})

	if err := f.Initialize(ctx, cfg.Feed); err != nil {
		return fmt.Errorf("loading feed: %w", err)
	}
	before := f.TabCounts()

	op, err := f.StartScrape(ctx, model.ScrapeRequest{
		Query:      args[0],
		Location:   scrapeLocation,
		DateFilter: scrapeDate,
	})
	if err != nil {
		return err
	}

	select {
	case <-op.Done():
	case <-ctx.Done():
		op.Cancel()
		<-op.Done()
	}
	status, opErr := op.Status(), op.Err()

	fmt.Fprintln(out)
	switch status {
	case model.StatusCompleted:
		after := f.TabCounts()
		fmt.Fprintf(out, "Scrape for %q completed in %s, %d new jobs.\n",
			args[0], time.Since(start).Round(time.Second), after.All-before.All)
		if opErr != nil {
			fmt.Fprintf(out, "warning: %v\n", opErr)
		}
		printCounts(out, after, model.TabAll)
		return nil
	default:
		if opErr == nil {
			opErr = fmt.Errorf("scrape reported failure")
		}
		return fmt.Errorf("scrape for %q failed: %w", args[0], opErr)
	}
}
