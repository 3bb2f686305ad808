package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/shared"
	th "github.com/desertthunder/pricewatch/internal/testing"
)

type fakeRecorder struct {
	mu   sync.Mutex
	rows map[string]string
	err  error
}

func (r *fakeRecorder) Record(trackingID, path string, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = map[string]string{}
	}
	r.rows[trackingID] = path
	return r.err
}

func watches(n int) []models.Tracking {
	list := make([]models.Tracking, n)
	for i := range list {
		list[i] = models.Tracking{ID: fmt.Sprintf("t%d", i+1), WBItemID: fmt.Sprint(100 + i), DesiredPrice: 900}
	}
	return list
}

func history(id string) *models.Tracking {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Tracking{
		ID:           id,
		CustomName:   "Watch " + id,
		DesiredPrice: 900,
		PriceHistory: []models.PricePoint{
			{Price: 1000, CheckedAt: base.Add(24 * time.Hour)},
			{Price: 950, CheckedAt: base},
		},
	}
}

func newExporter(api *th.MockPriceService, rec ExportRecorder) *HistoryExporter {
	return NewHistoryExporter(api, rec, shared.NewLogger(io.Discard))
}

func TestExportAll(t *testing.T) {
	tests := []struct {
		name          string
		count         int
		failIDs       map[string]bool
		wantSucceeded int
		wantFailed    int
	}{
		{name: "single watch", count: 1, wantSucceeded: 1},
		{name: "several watches", count: 5, wantSucceeded: 5},
		{name: "partial failures", count: 4, failIDs: map[string]bool{"t2": true, "t4": true}, wantSucceeded: 2, wantFailed: 2},
		{name: "empty watch list", count: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			rec := &fakeRecorder{}
			api := &th.MockPriceService{
				TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(tt.count), nil },
				TrackingFunc: func(ctx context.Context, id string) (*models.Tracking, error) {
					if tt.failIDs[id] {
						return nil, shared.ErrServiceUnavailable
					}
					return history(id), nil
				},
			}

			result, err := newExporter(api, rec).ExportAll(context.Background(), nil, HistoryExportOpts{
				OutputDir: dir, NumWorkers: 2, RateLimit: 1000,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Total != tt.count {
				t.Errorf("expected total %d, got %d", tt.count, result.Total)
			}
			if result.Succeeded != tt.wantSucceeded || result.Failed != tt.wantFailed {
				t.Errorf("expected %d/%d, got %d/%d", tt.wantSucceeded, tt.wantFailed, result.Succeeded, result.Failed)
			}
			if len(result.Results) != tt.count {
				t.Errorf("expected %d results, got %d", tt.count, len(result.Results))
			}
			if got := api.Calls("Tracking"); got != tt.count {
				t.Errorf("expected %d history fetches, got %d", tt.count, got)
			}

			for _, res := range result.Results {
				if tt.failIDs[res.TrackingID] {
					if res.Success() || res.Error == "" {
						t.Errorf("expected %s to fail", res.TrackingID)
					}
					if !errors.Is(res.Err, shared.ErrServiceUnavailable) {
						t.Errorf("expected wrapped ErrServiceUnavailable, got %v", res.Err)
					}
					continue
				}
				th.AssertFileExists(t, res.Path)
				if res.Points != 2 {
					t.Errorf("expected 2 points for %s, got %d", res.TrackingID, res.Points)
				}
				if rec.rows[res.TrackingID] != res.Path {
					t.Errorf("export of %s not recorded", res.TrackingID)
				}
			}

			th.AssertFileExists(t, result.ManifestPath)
			var manifest HistoryExportResult
			if err := json.Unmarshal([]byte(th.MustReadFile(t, result.ManifestPath)), &manifest); err != nil {
				t.Fatalf("manifest is not valid JSON: %v", err)
			}
			if manifest.Succeeded != tt.wantSucceeded {
				t.Errorf("manifest succeeded = %d, want %d", manifest.Succeeded, tt.wantSucceeded)
			}
		})
	}
}

func TestExportAll_CSVContent(t *testing.T) {
	dir := t.TempDir()
	api := &th.MockPriceService{
		TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(1), nil },
		TrackingFunc:  func(ctx context.Context, id string) (*models.Tracking, error) { return history(id), nil },
	}

	result, err := newExporter(api, nil).ExportAll(context.Background(), nil, HistoryExportOpts{OutputDir: dir, RateLimit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(dir, "t1.csv")
	if result.Results[0].Path != path {
		t.Errorf("expected path %s, got %s", path, result.Results[0].Path)
	}
	content := th.MustReadFile(t, path)
	first := strings.Index(content, "01.03.2024")
	second := strings.Index(content, "02.03.2024")
	if first < 0 || second < 0 || first > second {
		t.Errorf("expected chronologically sorted rows, got:\n%s", content)
	}
}

func TestExportAll_ServiceErrors(t *testing.T) {
	t.Run("nil service", func(t *testing.T) {
		_, err := NewHistoryExporter(nil, nil, nil).ExportAll(context.Background(), nil, HistoryExportOpts{OutputDir: t.TempDir()})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("watch list fails", func(t *testing.T) {
		api := &th.MockPriceService{
			TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return nil, shared.ErrUnauthorized },
		}
		_, err := newExporter(api, nil).ExportAll(context.Background(), nil, HistoryExportOpts{OutputDir: t.TempDir()})
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("missing tracking", func(t *testing.T) {
		api := &th.MockPriceService{
			TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(1), nil },
		}
		result, err := newExporter(api, nil).ExportAll(context.Background(), nil, HistoryExportOpts{OutputDir: t.TempDir(), RateLimit: 1000})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !errors.Is(result.Results[0].Err, shared.ErrTrackingNotFound) {
			t.Errorf("expected ErrTrackingNotFound, got %v", result.Results[0].Err)
		}
	})

	t.Run("recorder failure is not fatal", func(t *testing.T) {
		api := &th.MockPriceService{
			TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(1), nil },
			TrackingFunc:  func(ctx context.Context, id string) (*models.Tracking, error) { return history(id), nil },
		}
		rec := &fakeRecorder{err: errors.New("disk full")}
		result, err := newExporter(api, rec).ExportAll(context.Background(), nil, HistoryExportOpts{OutputDir: t.TempDir(), RateLimit: 1000})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Succeeded != 1 {
			t.Errorf("expected export to succeed, got %+v", result.Results)
		}
	})
}

func TestExportAll_Unauthorized(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	api := &th.MockPriceService{
		TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(6), nil },
		TrackingFunc: func(ctx context.Context, id string) (*models.Tracking, error) {
			calls.Add(1)
			if id == "t2" {
				return nil, &shared.APIError{Status: 401, Detail: "Not authenticated"}
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				return history(id), nil
			}
		},
	}

	result, err := newExporter(api, nil).ExportAll(context.Background(), nil, HistoryExportOpts{
		OutputDir: dir, NumWorkers: 2, RateLimit: 1000,
	})
	if !errors.Is(err, shared.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if result == nil {
		t.Fatal("expected the partial result")
	}
	if result.Succeeded != 0 || result.Failed != result.Total {
		t.Errorf("expected every watch to fail, got %d ok / %d failed", result.Succeeded, result.Failed)
	}
	if n := int(calls.Load()); n >= result.Total {
		t.Errorf("expected remaining watches to be skipped, got %d history calls", n)
	}
	if _, err := os.Stat(filepath.Join(dir, manifestName)); !os.IsNotExist(err) {
		t.Error("manifest should not be written after a rejected session")
	}
}

func TestExportAll_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &th.MockPriceService{
		TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(5), nil },
		TrackingFunc: func(ctx context.Context, id string) (*models.Tracking, error) {
			cancel()
			return nil, ctx.Err()
		},
	}

	result, err := newExporter(api, nil).ExportAll(ctx, nil, HistoryExportOpts{OutputDir: t.TempDir(), NumWorkers: 1, RateLimit: 1000})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || result.Failed != 5 {
		t.Errorf("expected every watch to be reported as failed, got %+v", result)
	}
	if result.ManifestPath != "" {
		t.Error("manifest should not be written after cancellation")
	}
}

func TestExportAll_WorkerPoolLimits(t *testing.T) {
	var active, peak int32
	api := &th.MockPriceService{
		TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(8), nil },
		TrackingFunc: func(ctx context.Context, id string) (*models.Tracking, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return history(id), nil
		},
	}

	_, err := newExporter(api, nil).ExportAll(context.Background(), nil, HistoryExportOpts{OutputDir: t.TempDir(), NumWorkers: 2, RateLimit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak > 2 {
		t.Errorf("expected at most 2 concurrent fetches, saw %d", peak)
	}
}

func TestExportAll_RateLimiting(t *testing.T) {
	api := &th.MockPriceService{
		TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(3), nil },
		TrackingFunc:  func(ctx context.Context, id string) (*models.Tracking, error) { return history(id), nil },
	}

	start := time.Now()
	_, err := newExporter(api, nil).ExportAll(context.Background(), nil, HistoryExportOpts{OutputDir: t.TempDir(), NumWorkers: 3, RateLimit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// burst of 1 at 20/s: three requests need at least ~100ms
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected rate limiting to slow the export, took %v", elapsed)
	}
}

func TestExportAll_ProgressUpdates(t *testing.T) {
	api := &th.MockPriceService{
		TrackingsFunc: func(ctx context.Context) ([]models.Tracking, error) { return watches(3), nil },
		TrackingFunc:  func(ctx context.Context, id string) (*models.Tracking, error) { return history(id), nil },
	}

	prog := make(chan ProgressUpdate, 100)
	if _, err := newExporter(api, nil).ExportAll(context.Background(), prog, HistoryExportOpts{OutputDir: t.TempDir(), RateLimit: 1000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(prog)

	phases := map[Phase]int{}
	var last ProgressUpdate
	for u := range prog {
		phases[u.Phase]++
		if u.Phase == ExportHistory {
			last = u
		}
	}
	if phases[FetchWatches] != 2 {
		t.Errorf("expected 2 watch-list updates, got %d", phases[FetchWatches])
	}
	if phases[FetchHistory] != 3 || phases[ExportHistory] != 3 {
		t.Errorf("expected 3 fetch and 3 export updates, got %v", phases)
	}
	if last.Step != 3 || last.Total != 3 {
		t.Errorf("expected final update 3/3, got %d/%d", last.Step, last.Total)
	}
	if !strings.Contains(last.Message, "✓") {
		t.Errorf("expected success marker in %q", last.Message)
	}
}

func TestExportAll_InvalidOutputDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	api := &th.MockPriceService{}
	_, err := newExporter(api, nil).ExportAll(context.Background(), nil, HistoryExportOpts{OutputDir: filepath.Join(file, "sub")})
	if err == nil {
		t.Fatal("expected error for output directory under a regular file")
	}
	if api.Calls("Trackings") != 0 {
		t.Error("watch list should not be fetched when the directory cannot be created")
	}
}

func TestNormalizeOpts(t *testing.T) {
	got := normalizeOpts(HistoryExportOpts{NumWorkers: 50})
	if got.NumWorkers != maxWorkers {
		t.Errorf("expected workers capped at %d, got %d", maxWorkers, got.NumWorkers)
	}
	if got.RateLimit != defaultRateLimit {
		t.Errorf("expected default rate limit, got %v", got.RateLimit)
	}
	if !strings.HasPrefix(got.OutputDir, "pwatch_export_") {
		t.Errorf("unexpected default dir %q", got.OutputDir)
	}

	if got := normalizeOpts(HistoryExportOpts{}); got.NumWorkers != defaultWorkers {
		t.Errorf("expected default workers %d, got %d", defaultWorkers, got.NumWorkers)
	}
}

func TestSendProgress_NonBlocking(t *testing.T) {
	sendProgress(nil, ProgressUpdate{})

	full := make(chan ProgressUpdate)
	done := make(chan struct{})
	go func() {
		sendProgress(full, ProgressUpdate{Message: "dropped"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sendProgress blocked on an unbuffered channel")
	}
}
