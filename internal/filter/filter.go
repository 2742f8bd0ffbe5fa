package filter

import (
	"strings"

	"github.com/amishk599/feedsync/internal/model"
)

// ForYouThreshold is the minimum AI match score for the for-you tab.
const ForYouThreshold = 80

// MatchesSearch returns true if query is empty or its lowercase form is a
// substring of the lowercase title, company, or description.
func MatchesSearch(job model.JobRecord, query string) bool {
	if query == "" {
		return true
	}
	return containsFold(job, strings.ToLower(query))
}

func containsFold(job model.JobRecord, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(job.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(job.Company), lowerQuery) ||
		strings.Contains(strings.ToLower(job.Description), lowerQuery)
}

// MatchesTab reports whether job belongs in tab. Unknown tabs behave like all.
func MatchesTab(job model.JobRecord, tab model.Tab) bool {
	switch tab {
	case model.TabForYou:
		return job.AIMatchScore >= ForYouThreshold
	case model.TabSaved:
		return job.IsSaved
	case model.TabApplied:
		return job.IsApplied
	default:
		return true
	}
}

// FeedFilter matches jobs against a search query and an active tab.
type FeedFilter struct {
	query string // lowercased
	tab   model.Tab
}

// NewFeedFilter returns a filter for the given state.
func NewFeedFilter(state model.FilterState) *FeedFilter {
	return &FeedFilter{
		query: strings.ToLower(state.SearchQuery),
		tab:   state.ActiveTab,
	}
}

// Match returns true if the job satisfies both the search and the tab.
func (f *FeedFilter) Match(job model.JobRecord) bool {
	if !MatchesTab(job, f.tab) {
		return false
	}
	return f.query == "" || containsFold(job, f.query)
}

// FilteredView returns the records matching state, in their original order.
func FilteredView(records []model.JobRecord, state model.FilterState) []model.JobRecord {
	return Apply(records, NewFeedFilter(state))
}

// Apply returns the records f matches, in their original order.
func Apply(records []model.JobRecord, f model.JobFilter) []model.JobRecord {
	out := make([]model.JobRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// TabCounts counts the records in each tab. Search is not applied.
func TabCounts(records []model.JobRecord) model.TabCounts {
	var c model.TabCounts
	for _, r := range records {
		c.All++
		if MatchesTab(r, model.TabForYou) {
			c.ForYou++
		}
		if MatchesTab(r, model.TabSaved) {
			c.Saved++
		}
		if MatchesTab(r, model.TabApplied) {
			c.Applied++
		}
	}
	return c
}
