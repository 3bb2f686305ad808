package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/pricewatch/internal/formatter"
	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/services"
	"github.com/desertthunder/pricewatch/internal/shared"
	"github.com/desertthunder/pricewatch/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	EntryView ViewState = iota
	WatchListView
	HistoryView
	ExportView
)

func (v ViewState) String() string {
	switch v {
	case EntryView:
		return "entry"
	case WatchListView:
		return "watches"
	case HistoryView:
		return "history"
	case ExportView:
		return "export"
	default:
		return ""
	}
}

// Session is the part of the session manager the dashboard reads and drives.
type Session interface {
	IsAuthenticated() bool
	User() *models.User
	Logout()
}

// Deps carries the dashboard's collaborators. Exporter and Login are optional.
type Deps struct {
	API       services.PriceService
	Session   Session
	Exporter  *tasks.HistoryExporter
	ExportDir string
	Login     func(ctx context.Context) error
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	deps         Deps
	view         ViewState
	width        int
	height       int
	watchList    list.Model
	watches      []models.Tracking
	selected     *models.Tracking
	series       formatter.Series
	loading      bool
	notice       string
	err          error
	progressChan chan tasks.ProgressUpdate
	exportDone   chan Msg
	progress     tasks.ProgressUpdate
	exportResult *tasks.HistoryExportResult
	exportErr    error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, deps Deps) *Model {
	m := &Model{
		ctx:       ctx,
		deps:      deps,
		view:      EntryView,
		width:     80,
		height:    24,
		help:      help.New(),
		keys:      newKeyMap(),
		watchList: newWatchList(nil, 76, 16),
	}
	if deps.Session != nil && deps.Session.IsAuthenticated() {
		m.view = WatchListView
	}
	return m
}

// ViewState reports the active view.
func (m *Model) ViewState() ViewState { return m.view }

// Init fetches the watch list when a session is already active.
func (m *Model) Init() tea.Cmd {
	if m.view == WatchListView {
		m.loading = true
		return m.fetchWatches()
	}
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.watchList.SetSize(max(msg.Width-4, 10), max(msg.Height-8, 5))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case EntryView:
			return m.handleEntryKeys(msg)
		case WatchListView:
			return m.handleWatchListKeys(msg)
		case HistoryView:
			return m.handleHistoryKeys(msg)
		case ExportView:
			return m.handleExportKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == WatchListView {
		var cmd tea.Cmd
		m.watchList, cmd = m.watchList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgWatchesFetched:
		data := msg.data.(watchesFetched)
		if m.view == EntryView {
			return m, nil
		}
		m.loading = false
		if data.err != nil {
			return m, m.fail(data.err)
		}
		m.err = nil
		m.watches = data.watches
		items := make([]list.Item, len(data.watches))
		for i, w := range data.watches {
			items[i] = watchItem{tracking: w}
		}
		m.watchList.SetItems(items)
		return m, nil

	case MsgHistoryFetched:
		data := msg.data.(historyFetched)
		if m.view == EntryView {
			return m, nil
		}
		m.loading = false
		if data.err != nil {
			return m, m.fail(data.err)
		}
		if data.tracking == nil {
			m.err = shared.ErrTrackingNotFound
			return m, nil
		}
		m.err = nil
		m.selected = data.tracking
		m.series = formatter.PrepareSeries(*data.tracking)
		m.view = HistoryView
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgExportComplete:
		data := msg.data.(exportComplete)
		m.loading = false
		m.progressChan = nil
		m.exportDone = nil
		m.exportResult = data.result
		m.exportErr = data.err
		if errors.Is(data.err, shared.ErrUnauthorized) {
			return m, m.fail(data.err)
		}
		return m, nil

	case MsgLoginFinished:
		m.loading = false
		if err, _ := msg.data.(error); err != nil {
			m.notice = shared.UserMessage(err)
			return m, nil
		}
		return m, m.enterDashboard()

	case MsgPromptDismissed:
		return m, m.enterDashboard()

	case MsgNavigationReset:
		m.reset()
		m.notice = "signed out"
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case EntryView:
		body = m.renderEntry()
	case WatchListView:
		body = m.renderWatchList()
	case HistoryView:
		body = m.renderHistory()
	case ExportView:
		body = m.renderExport()
	}
	return fmt.Sprintf("%s\n%s", m.renderHeader(), body)
}

func (m *Model) handleEntryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.login):
		if m.deps.Login == nil || m.loading {
			return m, nil
		}
		m.loading = true
		m.notice = "waiting for browser login..."
		return m, m.runLogin()
	case key.Matches(msg, m.keys.refresh):
		return m, m.enterDashboard()
	}
	return m, nil
}

func (m *Model) handleWatchListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.watchList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.watchList, cmd = m.watchList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.logout):
		m.deps.Session.Logout()
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		m.loading = true
		return m, m.fetchWatches()
	case key.Matches(msg, m.keys.export):
		if m.deps.Exporter == nil || len(m.watches) == 0 {
			return m, nil
		}
		m.view = ExportView
		return m, m.startExport()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.watchList.SelectedItem().(watchItem); ok {
			m.loading = true
			return m, m.fetchHistory(item.tracking.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.watchList, cmd = m.watchList.Update(msg)
	return m, cmd
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = WatchListView
		m.selected = nil
		m.err = nil
		return m, nil
	case key.Matches(msg, m.keys.logout):
		m.deps.Session.Logout()
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		if m.selected == nil {
			return m, nil
		}
		m.loading = true
		return m, m.fetchHistory(m.selected.ID)
	}
	return m, nil
}

func (m *Model) handleExportKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.progressChan != nil {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.enter):
		m.view = WatchListView
		m.exportResult = nil
		m.exportErr = nil
		return m, nil
	}
	return m, nil
}

// fail records err. A rejected token sends the user back to the entry view.
func (m *Model) fail(err error) tea.Cmd {
	if errors.Is(err, shared.ErrUnauthorized) {
		m.reset()
		m.notice = shared.UserMessage(err)
		return nil
	}
	m.err = err
	return nil
}

// reset returns to the entry view and drops everything fetched for the previous session.
func (m *Model) reset() {
	m.view = EntryView
	m.watches = nil
	m.watchList.SetItems(nil)
	m.selected = nil
	m.series = formatter.Series{}
	m.loading = false
	m.err = nil
	m.exportResult = nil
	m.exportErr = nil
}

func (m *Model) enterDashboard() tea.Cmd {
	if m.view != EntryView || m.deps.Session == nil || !m.deps.Session.IsAuthenticated() {
		return nil
	}
	m.notice = ""
	m.view = WatchListView
	m.loading = true
	return m.fetchWatches()
}

func (m *Model) fetchWatches() tea.Cmd {
	return func() tea.Msg {
		watches, err := m.deps.API.Trackings(m.ctx)
		return watchesFetchedMsg(watches, err)
	}
}

func (m *Model) fetchHistory(id string) tea.Cmd {
	return func() tea.Msg {
		t, err := m.deps.API.Tracking(m.ctx, id)
		return historyFetchedMsg(t, err)
	}
}

func (m *Model) runLogin() tea.Cmd {
	login := m.deps.Login
	return func() tea.Msg {
		return loginFinishedMsg(login(m.ctx))
	}
}

func (m *Model) startExport() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.progress = tasks.ProgressUpdate{Message: "Starting export..."}
	m.exportResult = nil
	m.exportErr = nil
	m.loading = true

	m.exportDone = make(chan Msg, 1)

	progress, done := m.progressChan, m.exportDone
	go func() {
		result, err := m.deps.Exporter.ExportAll(m.ctx, progress, tasks.HistoryExportOpts{OutputDir: m.deps.ExportDir})
		done <- exportCompleteMsg(result, err)
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.exportDone
	if progress == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderHeader() string {
	title := styles.title.Render("pricewatch")
	if m.deps.Session == nil {
		return title
	}
	if u := m.deps.Session.User(); u != nil {
		return fmt.Sprintf("%s  %s", title, styles.help.Render("signed in as "+u.DisplayName()))
	}
	return title
}

func (m *Model) renderStatus() string {
	switch {
	case m.loading:
		return styles.help.Render("loading...")
	case m.err != nil:
		return styles.err.Render("Error: " + shared.UserMessage(m.err))
	case m.notice != "":
		return styles.warn.Render(m.notice)
	}
	return ""
}

func (m *Model) renderEntry() string {
	var b strings.Builder
	b.WriteString("You are not signed in.\n\n")
	b.WriteString("Sign in with `pwatch auth login` or `pwatch auth telegram`, then press r.\n")
	keys := []key.Binding{m.keys.refresh, m.keys.quit}
	if m.deps.Login != nil {
		b.WriteString("Press o to sign in through the browser.\n")
		keys = []key.Binding{m.keys.login, m.keys.refresh, m.keys.quit}
	}
	if status := m.renderStatus(); status != "" {
		b.WriteString("\n" + status + "\n")
	}
	b.WriteString("\n" + m.help.ShortHelpView(keys))
	return b.String()
}

func (m *Model) renderWatchList() string {
	m.watchList.Title = fmt.Sprintf("Watches (%d)", len(m.watches))
	keys := []key.Binding{m.keys.enter, m.keys.refresh, m.keys.logout, m.keys.quit}
	if m.deps.Exporter != nil {
		keys = []key.Binding{m.keys.enter, m.keys.refresh, m.keys.export, m.keys.logout, m.keys.quit}
	}
	out := m.watchList.View()
	if status := m.renderStatus(); status != "" {
		out += "\n" + status
	}
	return fmt.Sprintf("%s\n\n%s", out, m.help.ShortHelpView(keys))
}

func (m *Model) renderHistory() string {
	if m.selected == nil {
		return m.renderStatus()
	}

	chartWidth := max(m.width-6, 20)
	chartHeight := max(m.height-12, 6)
	chart := formatter.RenderChart(m.series, chartWidth, chartHeight)

	info := fmt.Sprintf("target %s", price(m.selected.DesiredPrice))
	if latest, ok := m.selected.LatestPrice(); ok {
		style := styles.warn
		if latest <= m.selected.DesiredPrice {
			style = styles.ok
		}
		info += " • now " + style.Render(price(latest))
	}

	out := styles.frame.Render(chart) + "\n" + info
	if status := m.renderStatus(); status != "" {
		out += "\n" + status
	}
	keys := []key.Binding{m.keys.back, m.keys.refresh, m.keys.logout, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", out, m.help.ShortHelpView(keys))
}

func (m *Model) renderExport() string {
	title := styles.title.Render("Exporting price history")

	if m.progressChan != nil {
		step := ""
		if m.progress.Total > 0 {
			step = fmt.Sprintf("%s (%d/%d)\n", m.progress.Phase, m.progress.Step, m.progress.Total)
		}
		return fmt.Sprintf("%s\n%s%s", title, step, m.progress.Message)
	}

	if m.exportErr != nil {
		return fmt.Sprintf("%s\n%s\n\n%s", title,
			styles.err.Render("Export failed: "+shared.UserMessage(m.exportErr)),
			m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit}))
	}
	if m.exportResult == nil {
		return title
	}

	r := m.exportResult
	summary := styles.ok.Render(fmt.Sprintf("✓ Exported %d/%d watches", r.Succeeded, r.Total))
	info := fmt.Sprintf("\nDirectory: %s", r.OutputDirectory)
	if r.ManifestPath != "" {
		info += fmt.Sprintf("\nManifest: %s", r.ManifestPath)
	}

	var failed string
	if r.Failed > 0 {
		failed = "\n\n" + styles.warn.Render(fmt.Sprintf("Failed to export %d watches:", r.Failed))
		for _, res := range r.Results {
			if !res.Success() {
				failed += fmt.Sprintf("\n  • %s: %s", res.Title, res.Error)
			}
		}
	}

	return fmt.Sprintf("%s\n%s%s%s\n\n%s", title, summary, info, failed,
		m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit}))
}

func newWatchList(items []list.Item, width, height int) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.Title = "Watches"
	l.SetShowHelp(false)
	return l
}
