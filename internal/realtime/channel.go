package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/amishk599/feedsync/internal/model"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("realtime channel closed")

// Source is a transport that delivers raw event payloads until the returned
// unsubscribe func is called or ctx is done.
type Source interface {
	Subscribe(ctx context.Context, deliver func([]byte)) (func(), error)
}

// Upserter merges pushed records into the feed.
type Upserter interface {
	UpsertMany(records []model.JobRecord) model.UpsertResult
}

// ProgressSink receives scraping progress pushed by the server.
type ProgressSink interface {
	ApplyProgress(status model.ScrapeStatus) bool
}

// Subscription is one open realtime channel.
type Subscription struct {
	ID string

	cancel      context.CancelFunc
	unsubscribe func()
	closed      atomic.Bool
	once        sync.Once
}

// Close tears the subscription down. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// Channel applies server-pushed events to the feed.
type Channel struct {
	source   Source
	store    Upserter
	progress ProgressSink
	notifier model.Notifier
	validate *validator.Validate
	logger   *slog.Logger

	hookMu    sync.Mutex
	onNewJobs func(count int)

	mu     sync.Mutex
	sub    *Subscription
	closed bool
}

// NewChannel creates a channel. progress and notifier may be nil.
func NewChannel(source Source, store Upserter, progress ProgressSink, notifier model.Notifier, logger *slog.Logger) *Channel {
	return &Channel{
		source:   source,
		store:    store,
		progress: progress,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
	}
}

// OnNewJobs registers a callback receiving the number of newly appended jobs
// per new_jobs event. Call before Subscribe.
func (c *Channel) OnNewJobs(fn func(count int)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onNewJobs = fn
}

// Subscribe opens the channel, closing any previous subscription first.
func (c *Channel) Subscribe(ctx context.Context) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.sub != nil {
		c.logger.Info("replacing realtime subscription", "subscription", c.sub.ID)
		c.sub.Close()
		c.sub = nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{ID: uuid.NewString(), cancel: cancel}

	unsubscribe, err := c.source.Subscribe(subCtx, func(data []byte) {
		if sub.closed.Load() {
			return
		}
		c.handle(data)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to realtime updates: %w", err)
	}
	sub.unsubscribe = unsubscribe
	c.sub = sub

	c.logger.Info("realtime subscription opened", "subscription", sub.ID)
	return sub, nil
}

// Unsubscribe closes the active subscription. No-op when none is open.
func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return
	}
	c.sub.Close()
	c.logger.Info("realtime subscription closed", "subscription", c.sub.ID)
	c.sub = nil
}

// Close unsubscribes and refuses further subscriptions.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Unsubscribe()
}

func (c *Channel) handle(data []byte) {
	ev, err := DecodeEvent(c.validate, data)
	if err != nil {
		c.logger.Warn("dropping realtime event", "error", err)
		return
	}

	switch ev.Type {
	case EventNewJobs:
		c.applyNewJobs(ev.Jobs)
	case EventScrapingProgress:
		if c.progress == nil || !c.progress.ApplyProgress(ev.Progress()) {
			c.logger.Debug("scraping progress ignored", "status", ev.Progress())
		}
	}
}

func (c *Channel) applyNewJobs(jobs []model.JobRecord) {
	res := c.store.UpsertMany(jobs)
	if res.Dropped > 0 {
		c.logger.Warn("dropped pushed jobs without id", "count", res.Dropped)
	}
	c.logger.Info("new jobs pushed",
		"received", len(jobs),
		"appended", len(res.Appended),
		"replaced", res.Replaced,
	)

	if len(res.Appended) == 0 {
		return
	}
	if c.notifier != nil {
		if err := c.notifier.Notify(res.Appended); err != nil {
			c.logger.Error("notification failed", "error", err)
		}
	}

	c.hookMu.Lock()
	fn := c.onNewJobs
	c.hookMu.Unlock()
	if fn != nil {
		fn(len(res.Appended))
	}
}
