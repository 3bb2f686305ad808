package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pricewatch/internal/formatter"
	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/services"
	"github.com/desertthunder/pricewatch/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers   = 4
	maxWorkers       = 10
	defaultRateLimit = 5.0
	manifestName     = "export_manifest.json"
)

// ExportRecorder persists a row for every exported history file.
type ExportRecorder interface {
	Record(trackingID, path string, points int) error
}

// HistoryExportOpts contains configuration for bulk history exports.
type HistoryExportOpts struct {
	OutputDir  string  // Base output directory (default: pwatch_export_{epoch})
	NumWorkers int     // Concurrent workers (default: 4, max: 10)
	RateLimit  float64 // History requests per second (default: 5)
}

// ExportResult is the outcome for a single watch.
type ExportResult struct {
	TrackingID string `json:"tracking_id"`
	Title      string `json:"title"`
	Path       string `json:"path,omitempty"`
	Points     int    `json:"points"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

// Success reports whether the watch's file was written.
func (r ExportResult) Success() bool { return r.Err == nil }

// HistoryExportResult summarizes an [HistoryExporter.ExportAll] run.
type HistoryExportResult struct {
	Total           int            `json:"total"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	OutputDirectory string         `json:"output_directory"`
	ManifestPath    string         `json:"-"`
	Results         []ExportResult `json:"results"`
}

// HistoryExporter writes the price history of every watch to disk.
type HistoryExporter struct {
	api      services.PriceService
	recorder ExportRecorder
	logger   *log.Logger
}

// NewHistoryExporter creates an exporter. recorder may be nil.
func NewHistoryExporter(api services.PriceService, recorder ExportRecorder, logger *log.Logger) *HistoryExporter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &HistoryExporter{api: api, recorder: recorder, logger: logger}
}

// ExportAll exports every watch's history to CSV using a rate-limited worker pool.
//
// Individual failures are collected in the result. The returned error is non-nil only when
// the watch list cannot be fetched, the output directory cannot be created, the context is
// cancelled, or the manifest cannot be written.
func (e *HistoryExporter) ExportAll(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	opts HistoryExportOpts,
) (*HistoryExportResult, error) {
	if e.api == nil {
		return nil, fmt.Errorf("%w: price service not initialized", shared.ErrServiceUnavailable)
	}

	opts = normalizeOpts(opts)
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	sendProgress(prog, fetchingWatchesUpdate())
	watches, err := e.api.Trackings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch watches: %w", err)
	}
	sendProgress(prog, foundWatchesUpdate(len(watches)))

	result := &HistoryExportResult{
		Total:           len(watches),
		OutputDirectory: opts.OutputDir,
		Results:         make([]ExportResult, 0, len(watches)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	results := make(chan ExportResult, len(watches))

	// a rejected token stops the remaining workers
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(opts.NumWorkers)
	go func() {
		for i, w := range watches {
			if runCtx.Err() != nil {
				results <- failedResult(w, runCtx.Err())
				continue
			}
			g.Go(func() error {
				sendProgress(prog, fetchingHistoryUpdate(i+1, len(watches), w.Title()))
				results <- e.exportOne(runCtx, limiter, w, opts.OutputDir)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var authErr error
	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Success() {
			result.Succeeded++
			sendProgress(prog, exportCompletedUpdate(completed, len(watches), res))
		} else {
			result.Failed++
			sendProgress(prog, exportFailedUpdate(completed, len(watches), res))
		}
		if authErr == nil && errors.Is(res.Err, shared.ErrUnauthorized) {
			authErr = res.Err
			cancel()
		}
	}

	if authErr != nil {
		e.logger.Warn("history export stopped, session rejected", "ok", result.Succeeded, "failed", result.Failed)
		return result, authErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, manifestName)
	data, err := shared.MarshalJSON(result, true)
	if err == nil {
		err = os.WriteFile(manifestPath, data, 0644)
	}
	if err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	e.logger.Info("history export finished", "dir", opts.OutputDir, "ok", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// exportOne fetches a single watch's history and writes it to dir.
func (e *HistoryExporter) exportOne(ctx context.Context, limiter *rate.Limiter, w models.Tracking, dir string) ExportResult {
	if err := limiter.Wait(ctx); err != nil {
		return failedResult(w, err)
	}

	full, err := e.api.Tracking(ctx, w.ID)
	if err != nil {
		return failedResult(w, fmt.Errorf("failed to fetch history: %w", err))
	}
	if full == nil {
		return failedResult(w, fmt.Errorf("%w: %s", shared.ErrTrackingNotFound, w.ID))
	}
	if full.ID == "" {
		full.ID = w.ID
	}

	path, err := formatter.WriteHistoryCSV(*full, dir)
	if err != nil {
		return failedResult(w, err)
	}

	res := ExportResult{
		TrackingID: full.ID,
		Title:      full.Title(),
		Path:       path,
		Points:     len(full.PriceHistory),
	}

	if e.recorder != nil {
		if err := e.recorder.Record(res.TrackingID, res.Path, res.Points); err != nil {
			e.logger.Warn("could not record export", "tracking", res.TrackingID, "error", err)
		}
	}
	return res
}

func failedResult(w models.Tracking, err error) ExportResult {
	if err == nil {
		err = errors.New("unknown error")
	}
	return ExportResult{
		TrackingID: w.ID,
		Title:      w.Title(),
		Error:      err.Error(),
		Err:        err,
	}
}

func normalizeOpts(opts HistoryExportOpts) HistoryExportOpts {
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("pwatch_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	if opts.NumWorkers > maxWorkers {
		opts.NumWorkers = maxWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	return opts
}
