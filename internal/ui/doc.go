// Package ui implements the interactive price dashboard using bubbletea's Elm architecture.
//
// The TUI moves between four views:
//  1. [EntryView] : Shown while no one is signed in; offers browser login
//  2. [WatchListView] : Browse saved watches with their target and latest price
//  3. [HistoryView] : Price history chart of the selected watch against its target
//  4. [ExportView] : Progress and summary of a bulk history export
//
// The [Model] implements Init/Update/View and receives messages through the [Msg] union.
// Session events arrive through [Hooks]: a login dismisses the entry prompt and a logout
// resets navigation to [EntryView]. A 401 during any fetch shows
// "session expired, please log in again" and returns to [EntryView]; the transport has
// already demoted the session by then.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, l, e, q) with contextual
// help displayed via charmbracelet/bubbles/help.
package ui
