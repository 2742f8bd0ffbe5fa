package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/feedsync/internal/model"
)

// Limiter enforces a minimum gap between requests to the feed API. The first
// request passes immediately.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter creates a limiter allowing one request per minDelay. A zero
// minDelay disables limiting.
func NewLimiter(name string, minDelay time.Duration) *Limiter {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Limiter{limiter: rate.NewLimiter(limit, 1), name: name}
}

// Wait blocks until the next request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", l.name, err)
	}
	return nil
}

// LimitedFetcher waits on a Limiter before delegating to the wrapped Fetcher.
// Decorators talking to the same backend should share one Limiter.
type LimitedFetcher struct {
	inner   model.Fetcher
	limiter *Limiter
}

func NewLimitedFetcher(inner model.Fetcher, limiter *Limiter) *LimitedFetcher {
	return &LimitedFetcher{inner: inner, limiter: limiter}
}

func (f *LimitedFetcher) FetchJobs(ctx context.Context, params model.FetchParams) (model.FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return model.FetchResult{}, err
	}
	return f.inner.FetchJobs(ctx, params)
}

// LimitedStats is the StatsProvider counterpart of LimitedFetcher.
type LimitedStats struct {
	inner   model.StatsProvider
	limiter *Limiter
}

func NewLimitedStats(inner model.StatsProvider, limiter *Limiter) *LimitedStats {
	return &LimitedStats{inner: inner, limiter: limiter}
}

func (s *LimitedStats) GetJobStats(ctx context.Context) (model.JobStats, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return model.JobStats{}, err
	}
	return s.inner.GetJobStats(ctx)
}
