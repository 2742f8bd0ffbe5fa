package browse

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/feedsync/internal/feed"
	"github.com/amishk599/feedsync/internal/filter"
	"github.com/amishk599/feedsync/internal/model"
	"github.com/amishk599/feedsync/internal/scrape"
)

// fakeFeed filters an in-memory slice the same way the orchestrator does.
type fakeFeed struct {
	jobs       []model.JobRecord
	state      model.FilterState
	initErr    error
	refreshErr error
	scrapeErr  error
	scrapes    []model.ScrapeRequest
	cancels    int
	removed    []string
}

func (f *fakeFeed) Initialize(context.Context, model.FetchParams) error { return f.initErr }
func (f *fakeFeed) Refresh(context.Context) error { return f.refreshErr }

func (f *fakeFeed) Search(query string) feed.View {
	f.state.SearchQuery = query
	return f.View()
}

func (f *fakeFeed) SetTab(tab model.Tab) feed.View {
	f.state.ActiveTab = tab
	return f.View()
}

func (f *fakeFeed) View() feed.View {
	if f.state.ActiveTab == "" {
		f.state.ActiveTab = model.TabAll
	}
	return feed.View{
		Jobs:   filter.FilteredView(f.jobs, f.state),
		Counts: filter.TabCounts(f.jobs),
		Filter: f.state,
	}
}

func (f *fakeFeed) Remove(id string) bool {
	for i, j := range f.jobs {
		if j.ID == id {
			f.jobs = append(f.jobs[:i], f.jobs[i+1:]...)
			f.removed = append(f.removed, id)
			return true
		}
	}
	return false
}

func (f *fakeFeed) StartScrape(_ context.Context, req model.ScrapeRequest) (*scrape.Operation, error) {
	f.scrapes = append(f.scrapes, req)
	return nil, f.scrapeErr
}

func (f *fakeFeed) CancelScrape()                    { f.cancels++ }
func (f *fakeFeed) OnNewJobs(func(int))              {}
func (f *fakeFeed) OnScrapeStatus(scrape.StatusFunc) {}

func sampleFeed() *fakeFeed {
	return &fakeFeed{jobs: []model.JobRecord{
		{ID: "1", Title: "Welder", Company: "Acme", AIMatchScore: 92},
		{ID: "2", Title: "Driver", Company: "Beta", AIMatchScore: 40, IsSaved: true},
		{ID: "3", Title: "Pipe Welder", Company: "Gamma", AIMatchScore: 81},
	}}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// step feeds msg to the model. Returned commands are not run; tests that
// need an async result call run.
func step(t *testing.T, m browseModel, msg tea.Msg) browseModel {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(browseModel)
}

// run feeds msg to the model, then executes the returned command and feeds
// its message back in.
func run(t *testing.T, m browseModel, msg tea.Msg) browseModel {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(browseModel)
	if cmd == nil {
		t.Fatal("expected a command")
	}
	return step(t, m, cmd())
}

func readyModel(t *testing.T, f *fakeFeed) browseModel {
	t.Helper()
	m := newBrowseModel(context.Background(), f, model.FetchParams{Location: "Houston"})
	m = step(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return step(t, m, m.initCmd()())
}

func TestBrowse_InitialLoad(t *testing.T) {
	m := readyModel(t, sampleFeed())

	if m.loading {
		t.Error("still loading after init")
	}
	if len(m.view.Jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(m.view.Jobs))
	}
	out := m.View()
	if !strings.Contains(out, "For You (2)") || !strings.Contains(out, "Saved (1)") {
		t.Errorf("tab bar missing counts:\n%s", out)
	}
}

func TestBrowse_InitialLoadError(t *testing.T) {
	f := sampleFeed()
	f.initErr = errors.New("connection refused")
	m := readyModel(t, f)

	if m.loadErr == nil {
		t.Fatal("expected load error")
	}
	if !strings.Contains(m.View(), "could not load feed") {
		t.Error("error not shown")
	}

	f.initErr = nil
	m = run(t, m, keyMsg("r"))
	if m.loadErr != nil || m.loading {
		t.Errorf("retry did not reload: loading=%v err=%v", m.loading, m.loadErr)
	}
}

func TestBrowse_TabSwitching(t *testing.T) {
	m := readyModel(t, sampleFeed())

	m = step(t, m, keyMsg("tab"))
	if m.view.Filter.ActiveTab != model.TabForYou || len(m.view.Jobs) != 2 {
		t.Errorf("after tab: %s with %d jobs", m.view.Filter.ActiveTab, len(m.view.Jobs))
	}

	m = step(t, m, keyMsg("3"))
	if m.view.Filter.ActiveTab != model.TabSaved || len(m.view.Jobs) != 1 {
		t.Errorf("after 3: %s with %d jobs", m.view.Filter.ActiveTab, len(m.view.Jobs))
	}

	m = step(t, m, keyMsg("4"))
	m = step(t, m, keyMsg("tab"))
	if m.view.Filter.ActiveTab != model.TabAll {
		t.Errorf("tab did not wrap around: %s", m.view.Filter.ActiveTab)
	}
}

func TestBrowse_SearchAsYouType(t *testing.T) {
	m := readyModel(t, sampleFeed())

	m = step(t, m, keyMsg("/"))
	if m.mode != modeSearch {
		t.Fatalf("mode = %v, want search", m.mode)
	}
	for _, r := range "weld" {
		m = step(t, m, keyMsg(string(r)))
	}
	if m.view.Filter.SearchQuery != "weld" || len(m.view.Jobs) != 2 {
		t.Errorf("search %q gave %d jobs", m.view.Filter.SearchQuery, len(m.view.Jobs))
	}
	if m.view.Counts.All != 3 {
		t.Errorf("counts narrowed by search: %+v", m.view.Counts)
	}

	m = step(t, m, keyMsg("esc"))
	if m.mode != modeList || m.view.Filter.SearchQuery != "" || len(m.view.Jobs) != 3 {
		t.Errorf("esc did not clear search: mode=%v query=%q jobs=%d", m.mode, m.view.Filter.SearchQuery, len(m.view.Jobs))
	}
}

func TestBrowse_StartScrape(t *testing.T) {
	f := sampleFeed()
	m := readyModel(t, f)

	m = step(t, m, keyMsg("s"))
	for _, r := range "welder" {
		m = step(t, m, keyMsg(string(r)))
	}
	m = run(t, m, keyMsg("enter"))

	if len(f.scrapes) != 1 {
		t.Fatalf("scrapes = %d, want 1", len(f.scrapes))
	}
	if f.scrapes[0].Query != "welder" || f.scrapes[0].Location != "Houston" {
		t.Errorf("request = %+v", f.scrapes[0])
	}
	if m.scrapeQuery != "welder" {
		t.Errorf("scrapeQuery = %q", m.scrapeQuery)
	}

	m = step(t, m, scrapeStatusMsg{status: model.StatusRunning})
	if !strings.Contains(m.View(), "running") {
		t.Error("running status not shown")
	}
	m = run(t, m, keyMsg("c"))
	if f.cancels != 1 {
		t.Errorf("cancels = %d, want 1", f.cancels)
	}
}

func TestBrowse_ScrapeAlreadyRunning(t *testing.T) {
	f := sampleFeed()
	f.scrapeErr = model.ErrOperationInProgress
	m := readyModel(t, f)

	m = step(t, m, keyMsg("s"))
	m = step(t, m, keyMsg("x"))
	m = run(t, m, keyMsg("enter"))

	if !m.flashErr || !strings.Contains(m.flash, "already running") {
		t.Errorf("flash = %q (err=%v)", m.flash, m.flashErr)
	}
}

func TestBrowse_NewJobsReloads(t *testing.T) {
	f := sampleFeed()
	m := readyModel(t, f)

	f.jobs = append(f.jobs, model.JobRecord{ID: "4", Title: "Electrician", Company: "Delta"})
	m = step(t, m, newJobsMsg{count: 1})

	if len(m.view.Jobs) != 4 {
		t.Errorf("jobs = %d, want 4", len(m.view.Jobs))
	}
	if m.flash != "1 new job" {
		t.Errorf("flash = %q", m.flash)
	}
}

func TestBrowse_RemoveSelected(t *testing.T) {
	f := sampleFeed()
	m := readyModel(t, f)

	m = step(t, m, keyMsg("down"))
	m = step(t, m, keyMsg("x"))

	if len(f.removed) != 1 || f.removed[0] != "2" {
		t.Fatalf("removed = %v, want [2]", f.removed)
	}
	if len(m.view.Jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(m.view.Jobs))
	}
}

func TestBrowse_DetailView(t *testing.T) {
	m := readyModel(t, sampleFeed())

	m = step(t, m, keyMsg("enter"))
	if m.mode != modeDetail {
		t.Fatalf("mode = %v, want detail", m.mode)
	}
	if !strings.Contains(m.View(), "Welder") || !strings.Contains(m.View(), "92%") {
		t.Errorf("detail view missing job fields:\n%s", m.View())
	}
	m = step(t, m, keyMsg("esc"))
	if m.mode != modeList {
		t.Errorf("mode = %v, want list", m.mode)
	}
}

func TestNextTab(t *testing.T) {
	tests := []struct {
		from  model.Tab
		delta int
		want  model.Tab
	}{
		{model.TabAll, 1, model.TabForYou},
		{model.TabApplied, 1, model.TabAll},
		{model.TabAll, -1, model.TabApplied},
		{model.Tab("bogus"), 1, model.TabAll},
	}
	for _, tt := range tests {
		if got := nextTab(tt.from, tt.delta); got != tt.want {
			t.Errorf("nextTab(%s, %d) = %s, want %s", tt.from, tt.delta, got, tt.want)
		}
	}
}
