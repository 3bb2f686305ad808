// package formatter renders products, watches and price histories as text, CSV, Markdown and terminal charts
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/shared"
)

// DateLayout is the day.month.year layout used for chart and table dates.
const DateLayout = "02.01.2006"

// HistoryToCSV converts a tracking's price history to CSV, oldest first, with columns:
// checked_at, date, price, desired_price, rating, comment_count
func HistoryToCSV(t models.Tracking) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"checked_at", "date", "price", "desired_price", "rating", "comment_count"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, p := range SortedHistory(t.PriceHistory) {
		record := []string{
			p.CheckedAt.Format(time.RFC3339),
			p.CheckedAt.Format(DateLayout),
			formatFloat(p.Price),
			formatFloat(t.DesiredPrice),
			formatFloat(p.Rating),
			strconv.Itoa(p.CommentCount),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// HistoryToText renders a tracking and its history as an aligned plain-text table.
func HistoryToText(t models.Tracking) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Watch: %s\n", t.Title())
	fmt.Fprintf(&buf, "Article: %s\n", t.WBItemID)
	fmt.Fprintf(&buf, "Target price: %s\n", formatFloat(t.DesiredPrice))
	fmt.Fprintf(&buf, "Status: %s\n", activeString(t.IsActive))

	history := SortedHistory(t.PriceHistory)
	if len(history) == 0 {
		buf.WriteString("\nNo price history yet.\n")
		return buf.Bytes()
	}

	buf.WriteString("\n")
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tPRICE\tRATING\tREVIEWS\tTARGET MET")
	for _, p := range history {
		met := ""
		if t.DesiredPrice > 0 && p.Price <= t.DesiredPrice {
			met = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%d\t%s\n", p.CheckedAt.Format(DateLayout), formatFloat(p.Price), p.Rating, p.CommentCount, met)
	}
	tw.Flush()

	return buf.Bytes()
}

// HistoryToMarkdown renders a tracking report in Markdown.
func HistoryToMarkdown(t models.Tracking) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", t.Title())
	fmt.Fprintf(&buf, "**Article**: %s\n", t.WBItemID)
	fmt.Fprintf(&buf, "**Target price**: %s\n", formatFloat(t.DesiredPrice))
	fmt.Fprintf(&buf, "**Status**: %s\n\n", activeString(t.IsActive))

	buf.WriteString("## Price history\n\n")
	buf.WriteString("| Date | Price | Rating | Reviews |\n|---|---|---|---|\n")
	for _, p := range SortedHistory(t.PriceHistory) {
		fmt.Fprintf(&buf, "| %s | %s | %.1f | %d |\n", p.CheckedAt.Format(DateLayout), formatFloat(p.Price), p.Rating, p.CommentCount)
	}
	return buf.Bytes()
}

// ProductToText renders a product lookup result.
func ProductToText(p models.Product) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", p.Name)
	if p.Brand != "" {
		fmt.Fprintf(&buf, "Brand: %s\n", p.Brand)
	}
	fmt.Fprintf(&buf, "Price: %s\n", formatFloat(p.Price))
	fmt.Fprintf(&buf, "Rating: %.1f (%d reviews)\n", p.Rating, p.FeedbackCount)
	return buf.Bytes()
}

// TrackingsToText renders the watch list as a table.
func TrackingsToText(list []models.Tracking) []byte {
	var buf bytes.Buffer
	if len(list) == 0 {
		buf.WriteString("No watches yet.\n")
		return buf.Bytes()
	}

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tARTICLE\tTARGET\tLATEST\tACTIVE\tCREATED")
	for _, t := range list {
		latest := "-"
		if price, ok := t.LatestPrice(); ok {
			latest = formatFloat(price)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Title(), t.WBItemID, formatFloat(t.DesiredPrice), latest,
			activeString(t.IsActive), t.CreatedAt.Format(DateLayout))
	}
	tw.Flush()
	return buf.Bytes()
}

// ToJSON renders v as indented JSON.
func ToJSON(v any) ([]byte, error) {
	return shared.MarshalJSON(v, true)
}

// WriteHistoryCSV writes the tracking's history to {dir}/{id}.csv and returns the path.
func WriteHistoryCSV(t models.Tracking, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := HistoryToCSV(t)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	path := filepath.Join(dir, safeFilename(t.ID)+".csv")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}
	return path, nil
}

func safeFilename(s string) string {
	if s == "" {
		return "tracking"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func activeString(active bool) string {
	if active {
		return "active"
	}
	return "paused"
}
