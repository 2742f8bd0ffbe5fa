package model

import (
	"context"
	"time"
)

// JobRecord is a single job posting as known to the feed.
type JobRecord struct {
	ID           string     `json:"id"`                    // stable across scrape runs
	Title        string     `json:"title"`                 // job title
	Company      string     `json:"company"`               // company name
	Description  string     `json:"description"`           // plain-text description
	Location     string     `json:"location,omitempty"`    // location string
	URL          string     `json:"url,omitempty"`         // direct apply link
	AIMatchScore int        `json:"aiMatchScore"`          // 0-100, zero when unscored
	IsSaved      bool       `json:"isSaved"`               // set by user action
	IsApplied    bool       `json:"isApplied"`             // set by user action
	HasContact   bool       `json:"hasContact,omitempty"`  // posting carries contact info
	PostedAt     *time.Time `json:"postedAt,omitempty"`    // nullable (not every source provides it)
	Source       string     `json:"source,omitempty"`      // board the posting was scraped from
}

// JobStats holds aggregate counters computed by the server.
type JobStats struct {
	Total         int        `json:"total"`
	WithContact   int        `json:"withContact"`
	ForYou        int        `json:"forYou"`
	LastScrapedAt *time.Time `json:"lastScrapedAt,omitempty"`
}

// FetchParams are the query parameters of a feed pull.
type FetchParams struct {
	Search          string
	Location        string
	DateFilter      string // e.g. "24h", "7d"; empty means any
	ContactRequired bool
	Limit           int // zero means server default
}

// FetchResult is the response of a feed pull.
type FetchResult struct {
	Jobs  []JobRecord
	Stats JobStats
}

// ScrapeRequest holds the parameters of a scrape operation. Immutable once
// the operation is created.
type ScrapeRequest struct {
	Query      string `json:"query"`
	Location   string `json:"location,omitempty"`
	DateFilter string `json:"dateFilter,omitempty"`
}

// UpsertResult reports what a batch upsert did to the store.
type UpsertResult struct {
	Appended []JobRecord // records whose ID was not in the store, in input order
	Replaced int         // records that replaced an existing entry
	Dropped  int         // records dropped for missing identity
}

// Fetcher pulls the job feed.
type Fetcher interface {
	FetchJobs(ctx context.Context, params FetchParams) (FetchResult, error)
}

// ScrapeClient starts scrape operations and reads their status.
type ScrapeClient interface {
	TriggerScraping(ctx context.Context, req ScrapeRequest) (string, error)
	GetScrapingStatus(ctx context.Context, operationID string) (ScrapeStatus, error)
}

// StatsProvider reads aggregate feed counters.
type StatsProvider interface {
	GetJobStats(ctx context.Context) (JobStats, error)
}

// FeatureGate decides whether the user may see a feature at all.
type FeatureGate interface {
	CanAccessFeature(ctx context.Context, feature string) (bool, error)
}

// Notifier sends notifications for newly discovered jobs.
type Notifier interface {
	Notify(jobs []JobRecord) error
}

// JobFilter decides whether a job belongs in a view.
type JobFilter interface {
	Match(job JobRecord) bool
}

// Snapshotter persists the last known feed so it can be shown when the
// server is unreachable.
type Snapshotter interface {
	Save(records []JobRecord) error
	Load() ([]JobRecord, error)
}
