// Package scheduler runs the periodic background refresh of the feed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec refreshes the feed every 15 minutes.
const DefaultSpec = "@every 15m"

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// Scheduler wraps robfig/cron and runs a single task on a cron spec.
// Overlapping runs are skipped.
type Scheduler struct {
	spec      string
	task      Task
	immediate bool
	logger    *slog.Logger
}

// NewScheduler creates a scheduler for spec, e.g. "@every 15m" or
// "*/30 * * * *". With immediate set, one run happens on start without
// waiting for the first tick.
func NewScheduler(spec string, task Task, immediate bool, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{spec: spec, task: task, immediate: immediate, logger: logger}
}

// ValidateSpec reports whether spec is a valid standard cron spec.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled. It waits for a
// running task to finish before returning nil.
func (s *Scheduler) Run(ctx context.Context) error {
	clog := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	id, err := c.AddFunc(s.spec, func() { s.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	if s.immediate {
		c.Entry(id).WrappedJob.Run()
	}

	c.Start()
	s.logger.Info("starting scheduler", "schedule", s.spec)

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.task(ctx); err != nil {
		s.logger.Error("scheduled refresh failed", "error", err)
		return
	}
	s.logger.Debug("scheduled refresh done", "took", time.Since(start).Round(time.Millisecond))
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
