package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/session"
	"github.com/desertthunder/pricewatch/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgWatchesFetched MsgKind = iota
	MsgHistoryFetched
	MsgProgressUpdate
	MsgExportComplete
	MsgLoginFinished
	MsgPromptDismissed
	MsgNavigationReset
)

type watchesFetched struct {
	watches []models.Tracking
	err     error
}

type historyFetched struct {
	tracking *models.Tracking
	err      error
}

type exportComplete struct {
	result *tasks.HistoryExportResult
	err    error
}

// watchesFetchedMsg is the constructor for [MsgWatchesFetched]
func watchesFetchedMsg(watches []models.Tracking, err error) Msg {
	return Msg{kind: MsgWatchesFetched, data: watchesFetched{watches, err}}
}

// historyFetchedMsg is the constructor for [MsgHistoryFetched]
func historyFetchedMsg(t *models.Tracking, err error) Msg {
	return Msg{kind: MsgHistoryFetched, data: historyFetched{t, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// exportCompleteMsg is the constructor for [MsgExportComplete]
func exportCompleteMsg(result *tasks.HistoryExportResult, err error) Msg {
	return Msg{kind: MsgExportComplete, data: exportComplete{result, err}}
}

func loginFinishedMsg(err error) Msg {
	return Msg{kind: MsgLoginFinished, data: err}
}

// PromptDismissedMsg is delivered when a login completes.
func PromptDismissedMsg() Msg { return Msg{kind: MsgPromptDismissed} }

// NavigationResetMsg is delivered when the session ends.
func NavigationResetMsg() Msg { return Msg{kind: MsgNavigationReset} }

// Hooks builds session hooks that forward session events into a running program.
//
// send is usually [tea.Program.Send]. Hooks fire from inside Update (the logout key), so
// messages are sent from a new goroutine to avoid blocking the event loop on itself.
func Hooks(send func(tea.Msg)) session.Hooks {
	return session.Hooks{
		DismissPrompt:   func() { go send(PromptDismissedMsg()) },
		ResetNavigation: func() { go send(NavigationResetMsg()) },
	}
}
