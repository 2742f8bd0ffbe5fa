package scrape

import (
	"context"
	"sync"

	"github.com/amishk599/feedsync/internal/model"
)

// Operation is a handle on one scrape run. It lets callers observe status
// transitions and cancel the run.
type Operation struct {
	ID      string
	Request model.ScrapeRequest

	ctrl     *Controller
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	progress chan model.ScrapeStatus // terminal statuses pushed over the realtime channel

	mu        sync.Mutex
	status    model.ScrapeStatus
	history   []model.ScrapeStatus
	finishing bool
	err       error
}

func newOperation(ctrl *Controller, id string, req model.ScrapeRequest) *Operation {
	ctx, cancel := context.WithCancel(context.Background())
	return &Operation{
		ID:       id,
		Request:  req,
		ctrl:     ctrl,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: make(chan model.ScrapeStatus, 1),
		status:   model.StatusIdle,
		history:  []model.ScrapeStatus{model.StatusIdle},
	}
}

// Status returns the last known status.
func (o *Operation) Status() model.ScrapeStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// History returns every status the operation has been in, oldest first.
func (o *Operation) History() []model.ScrapeStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.ScrapeStatus, len(o.history))
	copy(out, o.history)
	return out
}

// Err returns why the operation failed, or a refresh error recorded after a
// completed run. Nil otherwise.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Done is closed once the poll loop has exited.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the poll loop exits or ctx is done and returns the
// final status.
func (o *Operation) Wait(ctx context.Context) (model.ScrapeStatus, error) {
	select {
	case <-o.done:
		return o.Status(), o.Err()
	case <-ctx.Done():
		return o.Status(), ctx.Err()
	}
}

// Cancel abandons the operation. The status becomes failed regardless of the
// remote state.
func (o *Operation) Cancel() {
	o.ctrl.cancelOperation(o)
}

// transition moves to the given status if the state machine allows it.
func (o *Operation) transition(to model.ScrapeStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !model.CanTransition(o.status, to) {
		return false
	}
	o.status = to
	o.history = append(o.history, to)
	return true
}

// claimFinish reserves the single terminal path of the operation.
func (o *Operation) claimFinish() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finishing || o.status.IsTerminal() {
		return false
	}
	o.finishing = true
	return true
}

func (o *Operation) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
}
