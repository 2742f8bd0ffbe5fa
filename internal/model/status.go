// Package model defines the feed's shared types and collaborator interfaces.
//
// Valid scrape status graph:
//
//	idle ──► pending ──► running ──► completed
//	            │           │
//	            │           └──────► failed
//	            └──► completed | failed
//
// completed and failed are terminal states.
package model

import "fmt"

// ScrapeStatus is the lifecycle state of a scrape operation.
type ScrapeStatus string

const (
	StatusIdle      ScrapeStatus = "idle"
	StatusPending   ScrapeStatus = "pending"
	StatusRunning   ScrapeStatus = "running"
	StatusCompleted ScrapeStatus = "completed"
	StatusFailed    ScrapeStatus = "failed"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[ScrapeStatus][]ScrapeStatus{
	StatusIdle:    {StatusPending},
	StatusPending: {StatusRunning, StatusCompleted, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
	// completed and failed are terminal
}

// ParseScrapeStatus converts a raw string to a ScrapeStatus, returning an
// error for unknown values.
func ParseScrapeStatus(s string) (ScrapeStatus, error) {
	st := ScrapeStatus(s)
	switch st {
	case StatusIdle, StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown scrape status %q", s)
}

// IsTerminal returns true for statuses that end an operation's lifecycle.
func (s ScrapeStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from → to is permitted.
func CanTransition(from, to ScrapeStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
