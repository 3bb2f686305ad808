package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/pricewatch/internal/formatter"
	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/shared"
	"github.com/desertthunder/pricewatch/internal/tasks"
	"github.com/urfave/cli/v3"
)

const (
	chartWidth  = 60
	chartHeight = 12
)

// Product looks up a marketplace product by article number. Sign-in is not required.
func (r *Runner) Product(ctx context.Context, cmd *cli.Command) error {
	article, err := articleArg(cmd)
	if err != nil {
		return err
	}
	if err := r.start(ctx); err != nil {
		return err
	}

	r.logger.Debug("looking up product", "article", article)
	p, err := r.api.Product(ctx, article)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(p, true)
	}
	return r.writeBytes(formatter.ProductToText(*p))
}

// WatchAdd saves a watch for a product with a target price.
func (r *Runner) WatchAdd(ctx context.Context, cmd *cli.Command) error {
	article, err := articleArg(cmd)
	if err != nil {
		return err
	}
	target := cmd.Float("target-price")
	if target <= 0 {
		return fmt.Errorf("%w: --target-price must be positive", shared.ErrInvalidArgument)
	}
	if err := r.start(ctx); err != nil {
		return err
	}
	if !r.session.IsAuthenticated() {
		return shared.ErrNotAuthenticated
	}

	p, err := r.api.Product(ctx, article)
	if err != nil {
		return fmt.Errorf("failed to look up product: %w", err)
	}

	resp, err := r.api.SaveWatch(ctx, models.WatchRequest{
		Query:       strconv.FormatInt(article, 10),
		Results:     []models.Product{*p},
		TargetPrice: target,
		CustomName:  cmd.String("name"),
	})
	if err != nil {
		return err
	}

	r.logger.Info("watch saved", "tracking", resp.TrackingID, "article", article)
	r.writePlain("✓ Watching %s at %s or less\n", p.Name, strconv.FormatFloat(target, 'f', -1, 64))
	if resp.TrackingID != "" {
		r.writePlain("Tracking ID: %s\n", resp.TrackingID)
	}
	return nil
}

// WatchList prints the signed-in user's watches.
func (r *Runner) WatchList(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	watches, err := r.api.Trackings(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(watches, true)
	}
	if len(watches) == 0 {
		return r.writePlain("No watches yet. Add one with 'pwatch watch add <article> --target-price N'.\n")
	}
	return r.writeBytes(formatter.TrackingsToText(watches))
}

// History prints one watch's price history as a table and chart, or as CSV, Markdown or JSON.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("%w: tracking id", shared.ErrMissingArgument)
	}
	if err := r.start(ctx); err != nil {
		return err
	}

	t, err := r.api.Tracking(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case cmd.Bool("json"):
		t.PriceHistory = formatter.SortedHistory(t.PriceHistory)
		return r.writeJSON(t, true)
	case cmd.Bool("csv"):
		data, err := formatter.HistoryToCSV(*t)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	case cmd.Bool("markdown"):
		return r.writeBytes(formatter.HistoryToMarkdown(*t))
	}

	r.writePlainHeader(t.Title())
	if err := r.writeBytes(formatter.HistoryToText(*t)); err != nil {
		return err
	}
	if cmd.Bool("no-chart") || len(t.PriceHistory) == 0 {
		return nil
	}
	return r.writePlain("\n%s\n", formatter.RenderChart(formatter.PrepareSeries(*t), chartWidth, chartHeight))
}

// HistoryExport writes every watch's history to CSV, printing progress as it goes.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}
	if !r.session.IsAuthenticated() {
		return shared.ErrNotAuthenticated
	}

	prog := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range prog {
			if u.Phase == tasks.ExportHistory {
				r.writePlain("%s\n", u.Message)
			} else {
				r.logger.Debug(u.Message, "phase", u.Phase)
			}
		}
	}()

	result, err := r.exporter.ExportAll(ctx, prog, tasks.HistoryExportOpts{
		OutputDir:  cmd.String("dir"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
	})
	close(prog)
	<-done
	if err != nil && result == nil {
		return err
	}

	r.writePlainln("Exported %d/%d watches to %s", result.Succeeded, result.Total, result.OutputDirectory)
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}
	return err
}

// HistoryExports lists files recorded by previous exports.
func (r *Runner) HistoryExports(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}
	if r.exports == nil {
		return fmt.Errorf("%w: the export log needs the database (drop --ephemeral)", shared.ErrServiceUnavailable)
	}

	records, err := r.exports.List(map[string]any{
		"tracking_id": cmd.String("tracking"),
		"limit":       cmd.Int("limit"),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return r.writePlain("No exports recorded.\n")
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTRACKING\tPOINTS\tPATH")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			rec.CreatedAt().Local().Format(time.DateTime), rec.TrackingID(), rec.Points(), rec.Path())
	}
	w.Flush()
	return r.writeBytes([]byte(b.String()))
}

// Health checks that the price service is reachable.
func (r *Runner) Health(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}
	if err := r.api.Health(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Service is healthy\nURL: %s\n", r.config.API.BaseURL)
}

func articleArg(cmd *cli.Command) (int64, error) {
	raw := cmd.Args().First()
	if raw == "" {
		return 0, fmt.Errorf("%w: article", shared.ErrMissingArgument)
	}
	article, ok := models.ParseArticle(raw)
	if !ok {
		return 0, fmt.Errorf("%w: article must be a positive integer, got %q", shared.ErrInvalidArgument, raw)
	}
	return article, nil
}
