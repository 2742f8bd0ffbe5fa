package browse

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/feedsync/internal/feed"
	"github.com/amishk599/feedsync/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubServer answers the orchestrator with a fixed feed and a scrape that
// stays running.
type stubServer struct{}

func (stubServer) FetchJobs(context.Context, model.FetchParams) (model.FetchResult, error) {
	return model.FetchResult{Jobs: []model.JobRecord{{ID: "1", Title: "Welder", AIMatchScore: 90}}}, nil
}

func (stubServer) TriggerScraping(context.Context, model.ScrapeRequest) (string, error) {
	return "op-1", nil
}

func (stubServer) GetScrapingStatus(context.Context, string) (model.ScrapeStatus, error) {
	return model.StatusRunning, nil
}

// pushSource hands the deliver func back to the test.
type pushSource struct {
	mu      sync.Mutex
	deliver func([]byte)
}

func (s *pushSource) Subscribe(_ context.Context, deliver func([]byte)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliver = deliver
	return func() {}, nil
}

func (s *pushSource) push(payload string) bool {
	s.mu.Lock()
	deliver := s.deliver
	s.mu.Unlock()
	if deliver == nil {
		return false
	}
	deliver([]byte(payload))
	return true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProgram_HooksDoNotBlockEventLoop(t *testing.T) {
	src := &pushSource{}
	o := feed.New(feed.Options{
		Fetcher:      stubServer{},
		Scraper:      stubServer{},
		Source:       src,
		PollInterval: time.Hour,
		Logger:       discardLogger(),
	})
	defer o.Teardown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newProgram(ctx, o, model.FetchParams{}, tea.WithInput(nil), tea.WithOutput(io.Discard))
	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	// The subscription opens once the initial load finishes.
	waitFor(t, "subscription", func() bool {
		return src.push(`{"type":"new_jobs","jobs":[{"id":"2","title":"Driver"}]}`)
	})

	if _, err := o.StartScrape(ctx, model.ScrapeRequest{Query: "welder"}); err != nil {
		t.Fatalf("StartScrape: %v", err)
	}
	p.Send(keyMsg("c"))
	waitFor(t, "cancelled scrape", func() bool {
		return o.ScrapeStatus() == model.StatusFailed
	})

	p.Send(keyMsg("q"))
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("program did not quit after cancelling a scrape")
	}
	if o.View().Counts.All != 2 {
		t.Errorf("counts = %+v, want 2 jobs", o.View().Counts)
	}
}
