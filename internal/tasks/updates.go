package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchWatches Phase = iota
	FetchHistory
	ExportHistory
)

func (p Phase) String() string {
	switch p {
	case FetchWatches:
		return "fetch_watches"
	case FetchHistory:
		return "fetch_history"
	case ExportHistory:
		return "export_history"
	default:
		return ""
	}
}

func fetchingWatchesUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchWatches,
		Step:    0,
		Total:   1,
		Message: "Fetching watch list...",
	}
}

func foundWatchesUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchWatches,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d watches", total),
		Data:    total,
	}
}

func fetchingHistoryUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchHistory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching history: %s...", step, total, title),
	}
}

func exportCompletedUpdate(step, total int, res ExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportHistory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d points)", step, total, res.Title, res.Points),
		Data:    res,
	}
}

func exportFailedUpdate(step, total int, res ExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportHistory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.Title, res.Err),
		Data:    res,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
