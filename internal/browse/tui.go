package browse

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/feedsync/internal/feed"
	"github.com/amishk599/feedsync/internal/model"
	"github.com/amishk599/feedsync/internal/scrape"
)

// Lines per job item in the list view (title + subtitle + blank separator).
const jobItemHeight = 3

const requestTimeout = 30 * time.Second

// Feed is the part of the orchestrator the TUI drives.
type Feed interface {
	Initialize(ctx context.Context, params model.FetchParams) error
	Refresh(ctx context.Context) error
	Search(query string) feed.View
	SetTab(tab model.Tab) feed.View
	View() feed.View
	Remove(id string) bool
	StartScrape(ctx context.Context, req model.ScrapeRequest) (*scrape.Operation, error)
	CancelScrape()
	OnNewJobs(fn func(count int))
	OnScrapeStatus(fn scrape.StatusFunc)
}

var _ Feed = (*feed.Orchestrator)(nil)

type mode int

const (
	modeList mode = iota
	modeSearch
	modeScrapePrompt
	modeDetail
)

var (
	listBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")) // bright blue

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("24"))

	inactiveTabStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(lipgloss.Color("245"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	flashStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	jobTitleStyle = lipgloss.NewStyle().
			Bold(true)

	jobSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedJobTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedJobSubtitleStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("252")).
					Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(14)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	descDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	descBodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

// initDoneMsg is sent when the initial feed load completes.
type initDoneMsg struct{ err error }

// refreshDoneMsg is sent when a manual refresh completes.
type refreshDoneMsg struct{ err error }

// scrapeStartedMsg is sent once the server accepted (or rejected) a scrape.
type scrapeStartedMsg struct {
	query string
	err   error
}

// scrapeStatusMsg carries a status transition of the active scrape.
type scrapeStatusMsg struct {
	status model.ScrapeStatus
	err    error
}

// newJobsMsg is sent when a push appended jobs to the feed.
type newJobsMsg struct{ count int }

type browseModel struct {
	ctx    context.Context
	feed   Feed
	params model.FetchParams

	view     feed.View
	cursor   int
	width    int
	height   int
	ready    bool
	loading  bool
	loadErr  error
	mode     mode
	list     viewport.Model
	detail   viewport.Model
	search   textinput.Model
	query    textinput.Model
	spinner  spinner.Model
	flash    string
	flashErr bool

	scrapeStatus model.ScrapeStatus
	scrapeQuery  string
}

func newBrowseModel(ctx context.Context, f Feed, params model.FetchParams) browseModel {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search title, company, description"

	query := textinput.New()
	query.Prompt = "scrape: "
	query.Placeholder = "e.g. welder"

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

	return browseModel{
		ctx:          ctx,
		feed:         f,
		params:       params,
		loading:      true,
		search:       search,
		query:        query,
		spinner:      sp,
		scrapeStatus: model.StatusIdle,
		view:         feed.View{Filter: model.FilterState{ActiveTab: model.TabAll}},
	}
}

func (m browseModel) Init() tea.Cmd {
	return tea.Batch(m.initCmd(), m.spinner.Tick)
}

func (m browseModel) initCmd() tea.Cmd {
	ctx, f, params := m.ctx, m.feed, m.params
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return initDoneMsg{err: f.Initialize(ctx, params)}
	}
}

func (m browseModel) refreshCmd() tea.Cmd {
	ctx, f := m.ctx, m.feed
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return refreshDoneMsg{err: f.Refresh(ctx)}
	}
}

func (m browseModel) scrapeCmd(query string) tea.Cmd {
	ctx, f := m.ctx, m.feed
	req := model.ScrapeRequest{Query: query, Location: m.params.Location, DateFilter: m.params.DateFilter}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		_, err := f.StartScrape(ctx, req)
		return scrapeStartedMsg{query: query, err: err}
	}
}

// cancelCmd cancels off the event loop: the cancel publishes a failed status
// through the program synchronously.
func (m browseModel) cancelCmd() tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		f.CancelScrape()
		return nil
	}
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case initDoneMsg:
		m.loading = false
		m.loadErr = msg.err
		m.reload(m.feed.View())
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.setFlash(fmt.Sprintf("refresh failed: %v", msg.err), true)
		} else {
			m.setFlash("feed refreshed", false)
		}
		m.reload(m.feed.View())
		return m, nil

	case newJobsMsg:
		m.setFlash(fmt.Sprintf("%d new %s", msg.count, plural(msg.count, "job", "jobs")), false)
		m.reload(m.feed.View())
		return m, nil

	case scrapeStartedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, model.ErrOperationInProgress) {
				m.setFlash("a scrape is already running", true)
			} else {
				m.setFlash(fmt.Sprintf("scrape failed to start: %v", msg.err), true)
			}
			return m, nil
		}
		m.scrapeQuery = msg.query
		return m, nil

	case scrapeStatusMsg:
		m.scrapeStatus = msg.status
		switch {
		case msg.status == model.StatusCompleted:
			m.setFlash(fmt.Sprintf("scrape for %q completed", m.scrapeQuery), false)
			m.reload(m.feed.View())
		case msg.status == model.StatusFailed && msg.err != nil:
			m.setFlash(fmt.Sprintf("scrape failed: %v", msg.err), true)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeScrapePrompt:
			return m.updateScrapePrompt(msg)
		case modeDetail:
			return m.updateDetail(msg)
		default:
			return m.updateList(msg)
		}
	}

	return m, nil
}

func (m browseModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		return m, nil
	case "tab", "right", "l":
		m.reload(m.feed.SetTab(nextTab(m.view.Filter.ActiveTab, 1)))
		return m, nil
	case "shift+tab", "left", "h":
		m.reload(m.feed.SetTab(nextTab(m.view.Filter.ActiveTab, -1)))
		return m, nil
	case "1", "2", "3", "4":
		m.reload(m.feed.SetTab(model.Tabs[int(msg.String()[0]-'1')]))
		return m, nil
	case "/":
		m.mode = modeSearch
		m.search.SetValue(m.view.Filter.SearchQuery)
		return m, m.search.Focus()
	case "r":
		if m.loadErr != nil {
			m.loading = true
			m.loadErr = nil
			return m, m.initCmd()
		}
		m.setFlash("refreshing...", false)
		return m, m.refreshCmd()
	case "s":
		m.mode = modeScrapePrompt
		m.query.SetValue("")
		return m, m.query.Focus()
	case "c":
		if !m.scrapeStatus.IsTerminal() && m.scrapeStatus != model.StatusIdle {
			m.setFlash("cancelling scrape...", false)
			return m, m.cancelCmd()
		}
		return m, nil
	case "x":
		if job, ok := m.selected(); ok && m.feed.Remove(job.ID) {
			m.setFlash(fmt.Sprintf("removed %s", job.Title), false)
			m.reload(m.feed.View())
		}
		return m, nil
	case "enter":
		if job, ok := m.selected(); ok {
			m.mode = modeDetail
			m.detail = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
			m.detail.SetContent(m.renderDetail(job))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// updateSearch applies the query on every keystroke.
func (m browseModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		m.mode = modeList
		m.search.Blur()
		return m, nil
	case "esc":
		m.mode = modeList
		m.search.Blur()
		m.search.SetValue("")
		m.reload(m.feed.Search(""))
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != m.view.Filter.SearchQuery {
		m.reload(m.feed.Search(m.search.Value()))
	}
	return m, cmd
}

func (m browseModel) updateScrapePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = modeList
		m.query.Blur()
		return m, nil
	case "enter":
		q := strings.TrimSpace(m.query.Value())
		m.mode = modeList
		m.query.Blur()
		if q == "" {
			return m, nil
		}
		m.setFlash(fmt.Sprintf("starting scrape for %q...", q), false)
		return m, m.scrapeCmd(q)
	}

	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	return m, cmd
}

func (m browseModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.mode = modeList
		return m, nil
	case "o":
		if job, ok := m.selected(); ok && job.URL != "" {
			openURL(job.URL)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *browseModel) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashErr = isErr
}

// reload swaps in a freshly computed view, keeping the cursor in range.
func (m *browseModel) reload(v feed.View) {
	m.view = v
	m.cursor = clamp(m.cursor, 0, max(len(v.Jobs)-1, 0))
	m.recalcContent()
}

func (m *browseModel) selected() (model.JobRecord, bool) {
	if len(m.view.Jobs) == 0 {
		return model.JobRecord{}, false
	}
	return m.view.Jobs[m.cursor], true
}

func (m *browseModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(len(m.view.Jobs)-1, 0))
	m.recalcContent()
	m.ensureCursorVisible()
}

func (m *browseModel) ensureCursorVisible() {
	cursorTop := m.cursor * jobItemHeight
	cursorBottom := cursorTop + jobItemHeight - 1

	if cursorTop < m.list.YOffset {
		m.list.SetYOffset(cursorTop)
	} else if cursorBottom >= m.list.YOffset+m.list.Height {
		m.list.SetYOffset(cursorBottom - m.list.Height + 1)
	}
}

func (m *browseModel) recalcLayout() {
	width := max(m.width-2, 20)
	// Tab bar (1) + input line (1) + border top/bottom (2) + status bar (1).
	height := max(m.height-5, 5)

	if !m.ready {
		m.list = viewport.New(width, height)
		m.ready = true
	} else {
		m.list.Width = width
		m.list.Height = height
	}
	m.search.Width = width - 4
	m.query.Width = width - 10
	m.recalcContent()
}

func (m *browseModel) recalcContent() {
	if !m.ready {
		return
	}
	m.list.SetContent(renderJobs(m.view.Jobs, m.cursor))
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.mode == modeDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browseModel) viewList() string {
	var body string
	switch {
	case m.loading:
		body = fmt.Sprintf("\n  %s Loading feed...", m.spinner.View())
	case m.loadErr != nil:
		body = "\n  " + errorStyle.Render(fmt.Sprintf("⚠ could not load feed: %v", m.loadErr)) +
			"\n\n  press r to retry"
	default:
		body = m.list.View()
	}
	pane := listBorderStyle.Width(m.list.Width).Render(body)

	var input string
	switch m.mode {
	case modeSearch:
		input = m.search.View()
	case modeScrapePrompt:
		input = m.query.View()
	default:
		if q := m.view.Filter.SearchQuery; q != "" {
			input = jobSubtitleStyle.Render("/ " + q)
		} else if m.flash != "" {
			if m.flashErr {
				input = errorStyle.Render(m.flash)
			} else {
				input = flashStyle.Render(m.flash)
			}
		}
	}

	return renderTabs(m.view) + "\n" + input + "\n" + pane + "\n" + m.statusBar()
}

func (m browseModel) statusBar() string {
	scrapeText := "scrape: " + string(m.scrapeStatus)
	if m.scrapeStatus == model.StatusPending || m.scrapeStatus == model.StatusRunning {
		scrapeText = fmt.Sprintf("scrape: %s %s", m.scrapeStatus, m.spinner.View())
		if m.scrapeQuery != "" {
			scrapeText = fmt.Sprintf("scrape %q: %s %s", m.scrapeQuery, m.scrapeStatus, m.spinner.View())
		}
	}
	hints := "←/→ tab  ↑/↓ move  / search  r refresh  s scrape  c cancel  x remove  enter detail  q quit"
	return statusBarStyle.Width(m.width).Render(fmt.Sprintf(" %s | %s", scrapeText, hints))
}

func (m browseModel) viewDetail() string {
	title := detailTitleStyle.Render("Job Details")
	content := listBorderStyle.Width(m.width - 2).Render(m.detail.View())
	statusBar := statusBarStyle.Width(m.width).Render(" o open URL  esc/backspace back  ↑/↓ scroll  q quit")
	return title + "\n" + content + "\n" + statusBar
}

func (m browseModel) renderDetail(j model.JobRecord) string {
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Title", j.Title)
	addField("Company", j.Company)
	addField("Location", j.Location)
	addField("Job ID", j.ID)
	addField("Source", j.Source)
	if j.AIMatchScore > 0 {
		addField("Match", fmt.Sprintf("%d%%", j.AIMatchScore))
	}
	if j.PostedAt != nil {
		addField("Posted At", j.PostedAt.Local().Format("2006-01-02 15:04 MST"))
	}
	if j.HasContact {
		addField("Contact", "yes")
	}
	if j.IsSaved {
		addField("Saved", "yes")
	}
	if j.IsApplied {
		addField("Applied", "yes")
	}
	b.WriteByte('\n')
	addField("Apply URL", j.URL)

	if j.Description != "" {
		wrapWidth := max(m.width-8, 20)
		label := "── Description "
		b.WriteByte('\n')
		b.WriteString(descDividerStyle.Render(label+strings.Repeat("─", max(wrapWidth-len(label), 3))) + "\n\n")
		b.WriteString(descBodyStyle.Render(wordWrap(j.Description, wrapWidth)) + "\n")
	}
	return b.String()
}

func renderTabs(v feed.View) string {
	labels := map[model.Tab]string{
		model.TabAll:     "All",
		model.TabForYou:  "For You",
		model.TabSaved:   "Saved",
		model.TabApplied: "Applied",
	}
	parts := make([]string, 0, len(model.Tabs))
	for _, tab := range model.Tabs {
		label := fmt.Sprintf("%s (%d)", labels[tab], v.Counts.Count(tab))
		if tab == v.Filter.ActiveTab {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func renderJobs(jobs []model.JobRecord, cursor int) string {
	if len(jobs) == 0 {
		return "  (no jobs)"
	}

	var b strings.Builder
	for i, j := range jobs {
		titleSt := jobTitleStyle
		subtitleSt := jobSubtitleStyle
		prefix := "  "
		if i == cursor {
			titleSt = selectedJobTitleStyle
			subtitleSt = selectedJobSubtitleStyle
			prefix = "> "
		}

		title := j.Title
		if j.IsSaved {
			title += " ★"
		}
		if j.IsApplied {
			title += " ✓"
		}
		b.WriteString(prefix)
		b.WriteString(titleSt.Render(title))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(subtitle(j)))
		b.WriteByte('\n')

		if i < len(jobs)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func subtitle(j model.JobRecord) string {
	parts := []string{j.Company}
	if j.Location != "" {
		parts = append(parts, j.Location)
	}
	if j.AIMatchScore > 0 {
		parts = append(parts, fmt.Sprintf("match %d%%", j.AIMatchScore))
	}
	posted := "n/a"
	if j.PostedAt != nil {
		posted = j.PostedAt.Format("2006-01-02")
	}
	parts = append(parts, posted)
	return strings.Join(parts, " · ")
}

func nextTab(current model.Tab, delta int) model.Tab {
	n := len(model.Tabs)
	for i, t := range model.Tabs {
		if t == current {
			return model.Tabs[((i+delta)%n+n)%n]
		}
	}
	return model.TabAll
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the interactive feed browser. It initializes f inside the
// program and forwards pushed jobs and scrape transitions to the screen.
// The caller owns f and must tear it down after Run returns.
func Run(ctx context.Context, f Feed, params model.FetchParams) error {
	p := newProgram(ctx, f, params, tea.WithAltScreen())
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// newProgram builds the program and routes f's hooks into it. Hooks may fire
// on any goroutine, including one blocked inside a command.
func newProgram(ctx context.Context, f Feed, params model.FetchParams, opts ...tea.ProgramOption) *tea.Program {
	opts = append(opts, tea.WithContext(ctx))
	p := tea.NewProgram(newBrowseModel(ctx, f, params), opts...)

	f.OnNewJobs(func(count int) {
		p.Send(newJobsMsg{count: count})
	})
	f.OnScrapeStatus(func(op *scrape.Operation, status model.ScrapeStatus) {
		p.Send(scrapeStatusMsg{status: status, err: op.Err()})
	})
	return p
}
