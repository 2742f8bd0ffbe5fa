package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOperationInProgress is returned when a scrape is triggered while
	// another one has not reached a terminal state.
	ErrOperationInProgress = errors.New("scrape operation already in progress")

	// ErrMalformedEvent marks a realtime payload that failed shape validation.
	ErrMalformedEvent = errors.New("malformed realtime event")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
