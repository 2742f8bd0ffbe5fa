package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/amishk599/feedsync/internal/model"
)

// Policy holds the backoff settings shared by the retrying decorators.
// MaxRetries is the number of additional attempts after the first failure;
// BaseDelay doubles on each subsequent retry.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// RetryFetcher retries transient feed pulls with exponential backoff and
// jitter. Scrape status polls are not wrapped; a failed poll ends the
// operation.
type RetryFetcher struct {
	inner  model.Fetcher
	policy Policy
	logger *slog.Logger
}

// NewRetryFetcher wraps a Fetcher with retry logic.
func NewRetryFetcher(inner model.Fetcher, policy Policy, logger *slog.Logger) *RetryFetcher {
	return &RetryFetcher{inner: inner, policy: policy, logger: logger}
}

// FetchJobs pulls the feed, retrying on transient errors.
func (f *RetryFetcher) FetchJobs(ctx context.Context, params model.FetchParams) (model.FetchResult, error) {
	return Do(ctx, f.policy, f.logger, "fetch jobs", func(ctx context.Context) (model.FetchResult, error) {
		return f.inner.FetchJobs(ctx, params)
	})
}

// RetryStats retries transient stats reads.
type RetryStats struct {
	inner  model.StatsProvider
	policy Policy
	logger *slog.Logger
}

func NewRetryStats(inner model.StatsProvider, policy Policy, logger *slog.Logger) *RetryStats {
	return &RetryStats{inner: inner, policy: policy, logger: logger}
}

func (s *RetryStats) GetJobStats(ctx context.Context) (model.JobStats, error) {
	return Do(ctx, s.policy, s.logger, "job stats", s.inner.GetJobStats)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. The last error is returned.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	v, err := fn(ctx)
	for attempt := 1; err != nil && isRetryable(err) && attempt <= p.MaxRetries; attempt++ {
		delay := p.backoffDelay(attempt, err)
		logger.Warn("retrying after transient error",
			"op", op,
			"attempt", attempt,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
		v, err = fn(ctx)
	}
	if err != nil {
		return zero, err
	}
	return v, nil
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// A Retry-After duration from the server takes precedence.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := p.BaseDelay << (attempt - 1)
	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	// network, DNS
	return true
}
