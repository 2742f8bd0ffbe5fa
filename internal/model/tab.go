package model

import "fmt"

// Tab is a named predicate-based view over the feed.
type Tab string

const (
	TabAll     Tab = "all"
	TabForYou  Tab = "for-you"
	TabSaved   Tab = "saved"
	TabApplied Tab = "applied"
)

// Tabs lists every tab in display order.
var Tabs = []Tab{TabAll, TabForYou, TabSaved, TabApplied}

// ParseTab converts a raw string to a Tab. Empty input means TabAll.
func ParseTab(s string) (Tab, error) {
	if s == "" {
		return TabAll, nil
	}
	t := Tab(s)
	switch t {
	case TabAll, TabForYou, TabSaved, TabApplied:
		return t, nil
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// FilterState is the user's current search and tab selection.
type FilterState struct {
	SearchQuery string
	ActiveTab   Tab
}

// TabCounts holds the number of records matching each tab.
type TabCounts struct {
	All     int
	ForYou  int
	Saved   int
	Applied int
}

// Count returns the count for the given tab.
func (c TabCounts) Count(tab Tab) int {
	switch tab {
	case TabForYou:
		return c.ForYou
	case TabSaved:
		return c.Saved
	case TabApplied:
		return c.Applied
	default:
		return c.All
	}
}
