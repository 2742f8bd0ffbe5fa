package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/feedsync/internal/feed"
	"github.com/amishk599/feedsync/internal/filter"
	"github.com/amishk599/feedsync/internal/model"
	"github.com/amishk599/feedsync/internal/store"
)

var (
	feedSearch  string
	feedTab     string
	feedOffline bool
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print the feed once and exit",
	Long: "One-shot pull of the feed, filtered by --search and --tab, with per-tab counts. " +
		"Falls back to the last saved snapshot when the server cannot be reached.",
	RunE: runFeed,
}

func init() {
	feedCmd.Flags().StringVarP(&feedSearch, "search", "s", "", "case-insensitive search over title, company and description")
	feedCmd.Flags().StringVarP(&feedTab, "tab", "t", "all", "tab to show: all, for-you, saved, applied")
	feedCmd.Flags().BoolVar(&feedOffline, "offline", false, "show the saved snapshot without contacting the server")
	rootCmd.AddCommand(feedCmd)
}

func runFeed(cmd *cobra.Command, args []string) error {
	tab, err := model.ParseTab(feedTab)
	if err != nil {
		return err
	}
	state := model.FilterState{SearchQuery: feedSearch, ActiveTab: tab}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := quietLogger(debug)
	out := cmd.OutOrStdout()

	if feedOffline {
		return printSnapshot(out, cfg.SnapshotPath, state)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if ok, err := a.gate(ctx, out); err != nil || !ok {
		return err
	}

	f := a.newFeed(nil, logger)
	defer f.Teardown()

	if err := f.Initialize(ctx, cfg.Feed); err != nil {
		if a.snapshot == nil {
			return fmt.Errorf("loading feed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "server unreachable (%v), showing saved snapshot\n", err)
		return printSnapshot(out, cfg.SnapshotPath, state)
	}

	f.Search(state.SearchQuery)
	printView(out, f.SetTab(state.ActiveTab), f.Stats())
	return nil
}

func printSnapshot(w io.Writer, path string, state model.FilterState) error {
	if path == "" {
		return fmt.Errorf("no snapshot_path configured")
	}
	snap, err := store.NewSQLiteSnapshot(path)
	if err != nil {
		return err
	}
	defer snap.Close()

	records, err := snap.Load()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "(offline snapshot, may be out of date)")
	printView(w, feed.View{
		Jobs:   filter.FilteredView(records, state),
		Counts: filter.TabCounts(records),
		Filter: state,
	}, model.JobStats{})
	return nil
}

func printView(w io.Writer, v feed.View, stats model.JobStats) {
	printCounts(w, v.Counts, v.Filter.ActiveTab)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-32s %-20s %-18s %5s  %s\n", "Title", "Company", "Location", "Match", "Posted")
	fmt.Fprintln(w, strings.Repeat("─", 90))
	for _, j := range v.Jobs {
		posted := "n/a"
		if j.PostedAt != nil {
			posted = j.PostedAt.Format("2006-01-02")
		}
		match := "-"
		if j.AIMatchScore > 0 {
			match = fmt.Sprintf("%d%%", j.AIMatchScore)
		}
		fmt.Fprintf(w, "%-32s %-20s %-18s %5s  %s\n",
			truncate(j.Title, 32), truncate(j.Company, 20), truncate(j.Location, 18), match, posted)
	}

	fmt.Fprintf(w, "\nShowing %d of %d jobs", len(v.Jobs), v.Counts.All)
	if v.Filter.SearchQuery != "" {
		fmt.Fprintf(w, " matching %q", v.Filter.SearchQuery)
	}
	fmt.Fprintln(w)
	if stats.Total > 0 {
		fmt.Fprintf(w, "Server: %d total, %d with contact, %d for you\n", stats.Total, stats.WithContact, stats.ForYou)
	}
}

func printCounts(w io.Writer, c model.TabCounts, active model.Tab) {
	labels := map[model.Tab]string{
		model.TabAll:     "All",
		model.TabForYou:  "For You",
		model.TabSaved:   "Saved",
		model.TabApplied: "Applied",
	}
	parts := make([]string, 0, len(model.Tabs))
	for _, tab := range model.Tabs {
		label := fmt.Sprintf("%s (%d)", labels[tab], c.Count(tab))
		if tab == active {
			label = "[" + label + "]"
		}
		parts = append(parts, label)
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
