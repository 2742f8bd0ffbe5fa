package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/feedsync/internal/model"
)

const (
	DefaultPollInterval   = 5 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// ErrClosed is returned by Trigger after Close.
var ErrClosed = errors.New("scrape controller closed")

// RefreshFunc re-fetches the feed after an operation completes.
type RefreshFunc func(ctx context.Context) error

// StatusFunc observes status transitions. It runs synchronously on whichever
// goroutine caused the transition: the Trigger caller (pending), the Cancel
// or Close caller (failed), the realtime goroutine via ApplyProgress, or the
// poll goroutine. It must not block on the caller and must not call Close.
type StatusFunc func(op *Operation, status model.ScrapeStatus)

// Controller drives one scrape operation at a time from trigger to a
// terminal state.
type Controller struct {
	client   model.ScrapeClient
	refresh  RefreshFunc
	interval time.Duration
	timeout  time.Duration
	onStatus StatusFunc
	logger   *slog.Logger

	mu            sync.Mutex
	op            *Operation
	closed        bool
	triggering    bool
	cancelTrigger context.CancelFunc
	triggerDone   chan struct{}
}

// NewController creates a controller. Zero durations fall back to the
// defaults.
func NewController(client model.ScrapeClient, refresh RefreshFunc, interval, requestTimeout time.Duration, logger *slog.Logger) *Controller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Controller{
		client:   client,
		refresh:  refresh,
		interval: interval,
		timeout:  requestTimeout,
		logger:   logger,
	}
}

// OnStatus registers a transition observer. Call before Trigger.
func (c *Controller) OnStatus(fn StatusFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Current returns the most recent operation, or nil if none was triggered.
func (c *Controller) Current() *Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.op
}

// Status returns the status of the most recent operation, idle if none.
func (c *Controller) Status() model.ScrapeStatus {
	if op := c.Current(); op != nil {
		return op.Status()
	}
	return model.StatusIdle
}

// Trigger starts a scrape and its poll loop, returning as soon as the server
// accepted the request. It fails with model.ErrOperationInProgress while a
// previous operation is not terminal.
func (c *Controller) Trigger(ctx context.Context, req model.ScrapeRequest) (*Operation, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.triggering || (c.op != nil && !c.op.Status().IsTerminal()) {
		c.mu.Unlock()
		return nil, model.ErrOperationInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.triggering = true
	c.cancelTrigger = cancel
	c.triggerDone = done
	c.mu.Unlock()

	id, err := c.client.TriggerScraping(ctx, req)

	c.mu.Lock()
	defer close(done)
	c.triggering = false
	c.cancelTrigger = nil
	c.triggerDone = nil
	cancel()
	if c.closed {
		c.mu.Unlock()
		if err == nil {
			c.logger.Info("abandoning scrape accepted after close", "operation", id)
		}
		return nil, ErrClosed
	}
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("triggering scrape for %q: %w", req.Query, err)
	}
	op := newOperation(c, id, req)
	c.op = op
	c.mu.Unlock()

	c.logger.Info("scrape triggered", "operation", id, "query", req.Query, "location", req.Location)
	c.transition(op, model.StatusPending)

	go c.run(op)
	return op, nil
}

// ApplyProgress forwards a status pushed over the realtime channel. It
// returns false when no operation is active.
func (c *Controller) ApplyProgress(status model.ScrapeStatus) bool {
	op := c.Current()
	if op == nil || op.Status().IsTerminal() {
		c.logger.Debug("ignoring scrape progress, no active operation", "status", status)
		return false
	}

	switch status {
	case model.StatusRunning:
		c.transition(op, model.StatusRunning)
	case model.StatusCompleted, model.StatusFailed:
		// The poll goroutine owns the terminal path; one queued status is enough.
		select {
		case op.progress <- status:
		default:
		}
	}
	return true
}

// Cancel abandons the active operation, if any.
func (c *Controller) Cancel() {
	if op := c.Current(); op != nil {
		c.cancelOperation(op)
	}
}

// Close aborts an in-flight trigger, cancels the active operation and waits
// for its poll loop to exit. Later triggers fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	cancel, pending := c.cancelTrigger, c.triggerDone
	op := c.op
	c.mu.Unlock()

	if pending != nil {
		cancel()
		<-pending
	}
	if op == nil {
		return
	}
	c.cancelOperation(op)
	<-op.done
}

func (c *Controller) cancelOperation(op *Operation) {
	if op.claimFinish() {
		op.setErr(context.Canceled)
		c.transition(op, model.StatusFailed)
		c.logger.Info("scrape cancelled", "operation", op.ID)
	}
	op.cancel()
}

// run is the poll loop. It exits on the first terminal observation, a
// transport error, or cancellation.
func (c *Controller) run(op *Operation) {
	defer close(op.done)
	defer op.cancel()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-op.ctx.Done():
			c.finish(op, model.StatusFailed, op.ctx.Err())
			return
		case status := <-op.progress:
			c.finish(op, status, nil)
			return
		case <-ticker.C:
			status, err := c.poll(op)
			if err != nil {
				c.logger.Error("scrape status poll failed", "operation", op.ID, "error", err)
				c.finish(op, model.StatusFailed, err)
				return
			}
			switch status {
			case model.StatusRunning:
				c.transition(op, model.StatusRunning)
			case model.StatusCompleted, model.StatusFailed:
				c.finish(op, status, nil)
				return
			}
		}
	}
}

func (c *Controller) poll(op *Operation) (model.ScrapeStatus, error) {
	ctx, cancel := context.WithTimeout(op.ctx, c.timeout)
	defer cancel()

	status, err := c.client.GetScrapingStatus(ctx, op.ID)
	if err != nil {
		return "", fmt.Errorf("polling scrape %s: %w", op.ID, err)
	}
	return status, nil
}

// finish moves op to a terminal status. On completion the feed is refreshed
// exactly once before the transition is published.
func (c *Controller) finish(op *Operation, status model.ScrapeStatus, cause error) {
	if !op.claimFinish() {
		return
	}

	if status == model.StatusCompleted && c.refresh != nil {
		if err := c.refresh(op.ctx); err != nil {
			c.logger.Error("refresh after scrape failed", "operation", op.ID, "error", err)
			op.setErr(fmt.Errorf("refreshing feed: %w", err))
		}
		// Cancelled while refreshing.
		if err := op.ctx.Err(); err != nil {
			status, cause = model.StatusFailed, err
		}
	}

	if cause != nil {
		op.setErr(cause)
	}
	c.transition(op, status)
}

func (c *Controller) transition(op *Operation, to model.ScrapeStatus) {
	if !op.transition(to) {
		return
	}
	c.logger.Info("scrape status", "operation", op.ID, "status", to)

	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(op, to)
	}
}
