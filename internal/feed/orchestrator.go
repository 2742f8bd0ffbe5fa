// Package feed composes the job store, filters, scrape controller and
// realtime channel into the single surface the presentation layer uses.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/feedsync/internal/filter"
	"github.com/amishk599/feedsync/internal/model"
	"github.com/amishk599/feedsync/internal/realtime"
	"github.com/amishk599/feedsync/internal/scrape"
	"github.com/amishk599/feedsync/internal/store"
)

// ErrTornDown is returned by operations on an orchestrator after Teardown.
var ErrTornDown = errors.New("feed orchestrator torn down")

// View is a filtered slice of the feed together with the tab counts it was
// computed alongside.
type View struct {
	Jobs   []model.JobRecord
	Counts model.TabCounts
	Filter model.FilterState
}

// Options wires the orchestrator's collaborators. Fetcher and Scraper are
// required; the rest are optional.
type Options struct {
	Fetcher  model.Fetcher
	Scraper  model.ScrapeClient
	Stats    model.StatsProvider
	Source   realtime.Source
	Notifier model.Notifier
	Snapshot model.Snapshotter

	PollInterval   time.Duration
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// Orchestrator owns one feed: its store, filter state, scrape controller and
// realtime subscription.
type Orchestrator struct {
	store      *store.MemoryStore
	fetcher    model.Fetcher
	stats      model.StatsProvider
	snapshot   model.Snapshotter
	controller *scrape.Controller
	channel    *realtime.Channel
	logger     *slog.Logger

	mu        sync.Mutex
	filter    model.FilterState
	params    model.FetchParams
	lastStats model.JobStats
	tornDown  bool

	snapMu       sync.Mutex
	teardownOnce sync.Once
}

// New creates an orchestrator. Nothing is fetched until Initialize.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:    store.NewMemoryStore(),
		fetcher:  opts.Fetcher,
		stats:    opts.Stats,
		snapshot: opts.Snapshot,
		logger:   opts.Logger,
		filter:   model.FilterState{ActiveTab: model.TabAll},
	}
	o.controller = scrape.NewController(opts.Scraper, o.Refresh, opts.PollInterval, opts.RequestTimeout, opts.Logger)
	if opts.Source != nil {
		o.channel = realtime.NewChannel(opts.Source, pushTarget{o}, o.controller, opts.Notifier, opts.Logger)
	}
	return o
}

// OnNewJobs registers a callback for the number of jobs a push appended.
// Call before Initialize.
func (o *Orchestrator) OnNewJobs(fn func(count int)) {
	if o.channel != nil {
		o.channel.OnNewJobs(fn)
	}
}

// OnScrapeStatus registers a scrape status observer. Call before StartScrape.
func (o *Orchestrator) OnScrapeStatus(fn scrape.StatusFunc) {
	o.controller.OnStatus(fn)
}

// Initialize pulls the feed, seeds the store and opens the realtime
// subscription. Stats are fetched concurrently; a stats failure is logged
// only. On fetch failure the store is left untouched.
func (o *Orchestrator) Initialize(ctx context.Context, params model.FetchParams) error {
	o.mu.Lock()
	if o.tornDown {
		o.mu.Unlock()
		return ErrTornDown
	}
	o.params = params
	o.mu.Unlock()

	var (
		res   model.FetchResult
		stats *model.JobStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := o.fetcher.FetchJobs(gctx, params)
		if err != nil {
			return fmt.Errorf("initial fetch: %w", err)
		}
		res = r
		return nil
	})
	if o.stats != nil {
		g.Go(func() error {
			s, err := o.stats.GetJobStats(gctx)
			if err != nil {
				o.logger.Warn("job stats unavailable", "error", err)
				return nil
			}
			stats = &s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if o.isTornDown() {
		return ErrTornDown
	}

	if stats != nil {
		res.Stats = *stats
	}
	o.apply(res)
	o.logger.Info("feed initialized", "jobs", o.store.Count())

	if o.channel != nil {
		_, err := o.channel.Subscribe(ctx)
		switch {
		case errors.Is(err, realtime.ErrClosed):
			return ErrTornDown
		case err != nil:
			o.logger.Warn("realtime updates unavailable, feed will only change on refresh", "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) isTornDown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tornDown
}

// Refresh re-pulls the feed with the initialize params and merges it into the
// store. On failure the store is left untouched.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	params := o.params
	o.mu.Unlock()

	res, err := o.fetcher.FetchJobs(ctx, params)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	o.apply(res)
	return nil
}

func (o *Orchestrator) apply(res model.FetchResult) {
	up := o.store.UpsertMany(res.Jobs)
	if up.Dropped > 0 {
		o.logger.Warn("dropped jobs without id", "count", up.Dropped)
	}
	o.logger.Debug("feed merged",
		"fetched", len(res.Jobs),
		"appended", len(up.Appended),
		"replaced", up.Replaced,
	)

	if res.Stats != (model.JobStats{}) {
		o.mu.Lock()
		o.lastStats = res.Stats
		o.mu.Unlock()
	}
	o.saveSnapshot()
}

// pushTarget merges pushed jobs into the store and writes the snapshot
// through, like a refresh does.
type pushTarget struct{ o *Orchestrator }

func (t pushTarget) UpsertMany(records []model.JobRecord) model.UpsertResult {
	res := t.o.store.UpsertMany(records)
	if len(res.Appended) > 0 || res.Replaced > 0 {
		t.o.saveSnapshot()
	}
	return res
}

func (o *Orchestrator) saveSnapshot() {
	if o.snapshot == nil {
		return
	}
	o.snapMu.Lock()
	defer o.snapMu.Unlock()
	if err := o.snapshot.Save(o.store.All()); err != nil {
		o.logger.Warn("saving feed snapshot failed", "error", err)
	}
}

// Search sets the search query and returns the recomputed view.
func (o *Orchestrator) Search(query string) View {
	o.mu.Lock()
	o.filter.SearchQuery = query
	o.mu.Unlock()
	return o.View()
}

// SetTab sets the active tab and returns the recomputed view.
func (o *Orchestrator) SetTab(tab model.Tab) View {
	o.mu.Lock()
	o.filter.ActiveTab = tab
	o.mu.Unlock()
	return o.View()
}

// View computes the filtered jobs and tab counts from one store snapshot.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	state := o.filter
	o.mu.Unlock()

	records := o.store.All()
	return View{
		Jobs:   filter.FilteredView(records, state),
		Counts: filter.TabCounts(records),
		Filter: state,
	}
}

func (o *Orchestrator) FilteredView() []model.JobRecord {
	return o.View().Jobs
}

func (o *Orchestrator) TabCounts() model.TabCounts {
	return filter.TabCounts(o.store.All())
}

// Stats returns the last server-side counters seen.
func (o *Orchestrator) Stats() model.JobStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastStats
}

func (o *Orchestrator) Count() int {
	return o.store.Count()
}

// Remove withdraws a job from the feed.
func (o *Orchestrator) Remove(id string) bool {
	job, ok := o.store.Get(id)
	if !ok || !o.store.Remove(id) {
		return false
	}
	o.logger.Info("job removed", "id", id, "title", job.Title)
	o.saveSnapshot()
	return true
}

// StartScrape triggers a scrape. The feed is refreshed once when it
// completes. Fails with model.ErrOperationInProgress while one is active.
func (o *Orchestrator) StartScrape(ctx context.Context, req model.ScrapeRequest) (*scrape.Operation, error) {
	if o.isTornDown() {
		return nil, ErrTornDown
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("scrape query is required")
	}
	op, err := o.controller.Trigger(ctx, req)
	if errors.Is(err, scrape.ErrClosed) {
		return nil, ErrTornDown
	}
	return op, err
}

// CancelScrape abandons the active scrape, if any.
func (o *Orchestrator) CancelScrape() {
	o.controller.Cancel()
}

// ScrapeStatus returns the status of the most recent scrape, idle if none.
func (o *Orchestrator) ScrapeStatus() model.ScrapeStatus {
	return o.controller.Status()
}

// Teardown closes the realtime subscription and stops any scrape poll loop.
// Safe to call more than once.
func (o *Orchestrator) Teardown() {
	o.teardownOnce.Do(func() {
		o.mu.Lock()
		o.tornDown = true
		o.mu.Unlock()

		if o.channel != nil {
			o.channel.Close()
		}
		o.controller.Close()
		o.logger.Info("feed torn down")
	})
}
