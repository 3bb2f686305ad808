package ui

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/session"
	"github.com/desertthunder/pricewatch/internal/shared"
	"github.com/desertthunder/pricewatch/internal/tasks"
	th "github.com/desertthunder/pricewatch/internal/testing"
	"github.com/desertthunder/pricewatch/internal/tokenstore"
)

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sampleWatches() []models.Tracking {
	return []models.Tracking{
		{ID: "t1", WBItemID: "111", CustomName: "Kettle", DesiredPrice: 1500, IsActive: true},
		{ID: "t2", WBItemID: "222", DesiredPrice: 300},
	}
}

func sampleHistory(id string) *models.Tracking {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return &models.Tracking{
		ID:           id,
		CustomName:   "Kettle",
		DesiredPrice: 1500,
		PriceHistory: []models.PricePoint{
			{Price: 1800, CheckedAt: base},
			{Price: 1400, CheckedAt: base.Add(48 * time.Hour)},
			{Price: 1600, CheckedAt: base.Add(24 * time.Hour)},
		},
	}
}

type harness struct {
	model *Model
	api   *th.MockPriceService
	sess  *session.Manager
	sent  chan tea.Msg
}

func newHarness(t *testing.T, signedIn bool) *harness {
	t.Helper()
	h := &harness{
		api: &th.MockPriceService{
			TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return sampleWatches(), nil },
			TrackingFunc:  func(ctx context.Context, id string) (*models.Tracking, error) { return sampleHistory(id), nil },
		},
		sent: make(chan tea.Msg, 4),
	}
	h.sess = session.NewManager(tokenstore.NewMemoryStore(), session.WithLogger(shared.NewLogger(io.Discard)))
	h.sess.SetHooks(Hooks(func(msg tea.Msg) { h.sent <- msg }))
	if signedIn {
		h.sess.Login(&models.User{ID: 1, Username: "ann"}, "tok")
		<-h.sent
	}
	h.model = NewModel(context.Background(), Deps{API: h.api, Session: h.sess})
	return h
}

// drive feeds msg into the model and runs the resulting commands until none remain.
func (h *harness) drive(msg tea.Msg) {
	_, cmd := h.model.Update(msg)
	for cmd != nil {
		_, cmd = h.model.Update(cmd())
	}
}

func (h *harness) hookMsg(t *testing.T) tea.Msg {
	t.Helper()
	select {
	case msg := <-h.sent:
		return msg
	case <-time.After(time.Second):
		t.Fatal("session hook did not fire")
		return nil
	}
}

func TestNewModel(t *testing.T) {
	t.Run("anonymous starts at entry", func(t *testing.T) {
		h := newHarness(t, false)
		if h.model.ViewState() != EntryView {
			t.Errorf("expected entry view, got %s", h.model.ViewState())
		}
		if cmd := h.model.Init(); cmd != nil {
			t.Error("expected no initial command for an anonymous session")
		}
		if !strings.Contains(h.model.View(), "not signed in") {
			t.Errorf("entry view missing prompt:\n%s", h.model.View())
		}
	})

	t.Run("signed in loads watches", func(t *testing.T) {
		h := newHarness(t, true)
		if h.model.ViewState() != WatchListView {
			t.Fatalf("expected watch list view, got %s", h.model.ViewState())
		}
		cmd := h.model.Init()
		if cmd == nil {
			t.Fatal("expected fetch command")
		}
		h.drive(cmd())

		if len(h.model.watches) != 2 {
			t.Errorf("expected 2 watches, got %d", len(h.model.watches))
		}
		view := h.model.View()
		for _, want := range []string{"Kettle", "signed in as ann"} {
			if !strings.Contains(view, want) {
				t.Errorf("watch list view missing %q", want)
			}
		}
	})
}

func TestHistoryNavigation(t *testing.T) {
	h := newHarness(t, true)
	h.drive(h.model.Init()())

	h.drive(keyPress("enter"))
	if h.model.ViewState() != HistoryView {
		t.Fatalf("expected history view, got %s", h.model.ViewState())
	}
	if h.model.series.Len() != 3 {
		t.Errorf("expected 3 points, got %d", h.model.series.Len())
	}
	if h.model.series.Prices[0] != 1800 || h.model.series.Prices[2] != 1400 {
		t.Errorf("expected chronological prices, got %v", h.model.series.Prices)
	}
	if !strings.Contains(h.model.View(), "target 1500 ₽") {
		t.Errorf("history view missing target:\n%s", h.model.View())
	}

	h.drive(keyPress("r"))
	if got := h.api.Calls("Tracking"); got != 2 {
		t.Errorf("expected refresh to refetch history, got %d calls", got)
	}

	h.drive(keyPress("esc"))
	if h.model.ViewState() != WatchListView {
		t.Errorf("expected watch list after esc, got %s", h.model.ViewState())
	}
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, true)
	h.drive(h.model.Init()())
	h.drive(keyPress("r"))
	if got := h.api.Calls("Trackings"); got != 2 {
		t.Errorf("expected 2 watch list fetches, got %d", got)
	}
}

func TestLogoutResetsNavigation(t *testing.T) {
	h := newHarness(t, true)
	h.drive(h.model.Init()())
	h.drive(keyPress("enter"))

	h.drive(keyPress("l"))
	if h.sess.IsAuthenticated() {
		t.Fatal("expected session to end")
	}

	h.drive(h.hookMsg(t))
	if h.model.ViewState() != EntryView {
		t.Errorf("expected entry view after logout, got %s", h.model.ViewState())
	}
	if h.model.selected != nil || len(h.model.watches) != 0 {
		t.Error("expected fetched data to be dropped")
	}
	if !strings.Contains(h.model.View(), "signed out") {
		t.Errorf("expected sign-out notice:\n%s", h.model.View())
	}
}

func TestUnauthorizedFetch(t *testing.T) {
	h := newHarness(t, true)
	h.api.TrackingsFunc = func(ctx context.Context) ([]models.Tracking, error) {
		return nil, &shared.APIError{Status: 401, Detail: "Not authenticated"}
	}

	h.drive(h.model.Init()())
	if h.model.ViewState() != EntryView {
		t.Fatalf("expected entry view after 401, got %s", h.model.ViewState())
	}
	if !strings.Contains(h.model.View(), "session expired, please log in again") {
		t.Errorf("expected session expired notice:\n%s", h.model.View())
	}
}

func TestOtherErrorsStayInView(t *testing.T) {
	h := newHarness(t, true)
	h.drive(h.model.Init()())
	h.api.TrackingsFunc = func(ctx context.Context) ([]models.Tracking, error) {
		return nil, shared.ErrServiceUnavailable
	}

	h.drive(keyPress("r"))
	if h.model.ViewState() != WatchListView {
		t.Errorf("expected to stay on watch list, got %s", h.model.ViewState())
	}
	if !strings.Contains(h.model.View(), "server unavailable") {
		t.Errorf("expected error line:\n%s", h.model.View())
	}
}

func TestStaleResultsIgnoredAfterReset(t *testing.T) {
	h := newHarness(t, true)
	fetch := h.model.Init()

	h.drive(NavigationResetMsg())
	h.drive(fetch())

	if h.model.ViewState() != EntryView {
		t.Errorf("late fetch result should not leave the entry view, got %s", h.model.ViewState())
	}
	if len(h.model.watches) != 0 {
		t.Error("late fetch result should be discarded")
	}
}

func TestBrowserLogin(t *testing.T) {
	h := newHarness(t, false)
	h.model.deps.Login = func(ctx context.Context) error {
		h.sess.Login(&models.User{ID: 2, Username: "bob"}, "fresh")
		return nil
	}

	h.drive(keyPress("o"))
	if h.model.ViewState() != WatchListView {
		t.Fatalf("expected watch list after login, got %s", h.model.ViewState())
	}
	if len(h.model.watches) != 2 {
		t.Errorf("expected watches to load, got %d", len(h.model.watches))
	}

	// the dismiss hook arrives after the login command already switched views
	h.drive(h.hookMsg(t))
	if got := h.api.Calls("Trackings"); got != 1 {
		t.Errorf("expected a single watch list fetch, got %d", got)
	}
}

func TestBrowserLoginFailure(t *testing.T) {
	h := newHarness(t, false)
	h.model.deps.Login = func(ctx context.Context) error { return shared.ErrTimeout }

	h.drive(keyPress("o"))
	if h.model.ViewState() != EntryView {
		t.Errorf("expected to stay on entry view, got %s", h.model.ViewState())
	}
	if !strings.Contains(h.model.View(), "timed out") {
		t.Errorf("expected failure notice:\n%s", h.model.View())
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t, true)
	h.model.deps.Exporter = tasks.NewHistoryExporter(h.api, nil, shared.NewLogger(io.Discard))
	h.model.deps.ExportDir = t.TempDir()
	h.drive(h.model.Init()())

	h.drive(keyPress("e"))
	if h.model.ViewState() != ExportView {
		t.Fatalf("expected export view, got %s", h.model.ViewState())
	}
	if h.model.exportResult == nil {
		t.Fatalf("expected export result, err: %v", h.model.exportErr)
	}
	if h.model.exportResult.Succeeded != 2 {
		t.Errorf("expected 2 exports, got %d", h.model.exportResult.Succeeded)
	}
	if !strings.Contains(h.model.View(), "Exported 2/2 watches") {
		t.Errorf("expected summary:\n%s", h.model.View())
	}

	h.drive(keyPress("esc"))
	if h.model.ViewState() != WatchListView {
		t.Errorf("expected watch list after export, got %s", h.model.ViewState())
	}
}

func TestExportUnauthorized(t *testing.T) {
	h := newHarness(t, true)
	h.model.deps.Exporter = tasks.NewHistoryExporter(h.api, nil, shared.NewLogger(io.Discard))
	h.model.deps.ExportDir = t.TempDir()
	h.drive(h.model.Init()())

	h.api.TrackingFunc = func(ctx context.Context, id string) (*models.Tracking, error) {
		return nil, &shared.APIError{Status: 401, Detail: "Not authenticated"}
	}
	h.drive(keyPress("e"))

	if h.model.ViewState() != EntryView {
		t.Fatalf("expected entry view after 401 during export, got %s", h.model.ViewState())
	}
	if h.model.exportResult != nil {
		t.Error("expected export result to be dropped")
	}
	if !strings.Contains(h.model.View(), "session expired, please log in again") {
		t.Errorf("expected session expired notice:\n%s", h.model.View())
	}
}

func TestWatchItem(t *testing.T) {
	item := watchItem{tracking: *sampleHistory("t1")}
	if item.Title() != "Kettle" {
		t.Errorf("unexpected title %q", item.Title())
	}
	desc := item.Description()
	for _, want := range []string{"target 1500 ₽", "now 1400 ₽", "paused"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description %q missing %q", desc, want)
		}
	}
	if price(99.5) != "99.50 ₽" {
		t.Errorf("unexpected price format %q", price(99.5))
	}
}
