package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/feedsync/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockFetcher calls a function on each invocation, tracking call count.
type mockFetcher struct {
	calls int
	fn    func(attempt int) (model.FetchResult, error)
}

func (m *mockFetcher) FetchJobs(_ context.Context, _ model.FetchParams) (model.FetchResult, error) {
	m.calls++
	return m.fn(m.calls)
}

var fastPolicy = Policy{MaxRetries: 2, BaseDelay: 10 * time.Millisecond}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) (model.FetchResult, error) {
		return model.FetchResult{Jobs: []model.JobRecord{{ID: "1", Title: "Welder"}}}, nil
	}}

	rf := NewRetryFetcher(mock, fastPolicy, discardLogger())
	got, err := rf.FetchJobs(context.Background(), model.FetchParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Jobs) != 1 || got.Jobs[0].ID != "1" {
		t.Fatalf("unexpected jobs: %v", got.Jobs)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_RetriesOn5xx_SucceedsOnSecondAttempt(t *testing.T) {
	mock := &mockFetcher{fn: func(attempt int) (model.FetchResult, error) {
		if attempt == 1 {
			return model.FetchResult{}, &model.HTTPError{StatusCode: 503, Err: errors.New("service unavailable")}
		}
		return model.FetchResult{Jobs: []model.JobRecord{{ID: "1"}}}, nil
	}}

	rf := NewRetryFetcher(mock, fastPolicy, discardLogger())
	got, err := rf.FetchJobs(context.Background(), model.FetchParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(got.Jobs))
	}
	if mock.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryOn4xx(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) (model.FetchResult, error) {
		return model.FetchResult{}, &model.HTTPError{StatusCode: 401, Err: errors.New("unauthorized")}
	}}

	rf := NewRetryFetcher(mock, fastPolicy, discardLogger())
	_, err := rf.FetchJobs(context.Background(), model.FetchParams{})
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 401 {
		t.Fatalf("expected HTTPError with status 401, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) (model.FetchResult, error) {
		return model.FetchResult{}, &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}}

	rf := NewRetryFetcher(mock, fastPolicy, discardLogger())
	if _, err := rf.FetchJobs(context.Background(), model.FetchParams{}); err == nil {
		t.Fatal("expected error after max retries, got nil")
	}
	// 1 initial + 2 retries = 3
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", mock.calls)
	}
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) (model.FetchResult, error) {
		return model.FetchResult{}, &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rf := NewRetryFetcher(mock, Policy{MaxRetries: 2, BaseDelay: time.Second}, discardLogger())
	_, err := rf.FetchJobs(ctx, model.FetchParams{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", mock.calls)
	}
}

func TestRetry_HonoursRetryAfter(t *testing.T) {
	p := Policy{MaxRetries: 1, BaseDelay: time.Hour}
	err := &model.HTTPError{StatusCode: 429, RetryAfter: 15 * time.Millisecond}
	if got := p.backoffDelay(1, err); got != 15*time.Millisecond {
		t.Errorf("backoffDelay = %v, want Retry-After value", got)
	}
}

func TestRetry_BackoffGrows(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond}
	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 3: 400 * time.Millisecond} {
		got := p.backoffDelay(attempt, errors.New("dial tcp"))
		lo, hi := time.Duration(float64(base)*0.7), time.Duration(float64(base)*1.3)
		if got < lo || got > hi {
			t.Errorf("attempt %d delay = %v, want within [%v, %v]", attempt, got, lo, hi)
		}
	}
}

type mockStats struct{ calls int }

func (m *mockStats) GetJobStats(context.Context) (model.JobStats, error) {
	m.calls++
	if m.calls == 1 {
		return model.JobStats{}, errors.New("connection reset")
	}
	return model.JobStats{Total: 7}, nil
}

func TestRetryStats_RetriesNetworkError(t *testing.T) {
	mock := &mockStats{}
	rs := NewRetryStats(mock, fastPolicy, discardLogger())

	stats, err := rs.GetJobStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 7 || mock.calls != 2 {
		t.Errorf("stats = %+v after %d calls", stats, mock.calls)
	}
}
