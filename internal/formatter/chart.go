package formatter

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/pricewatch/internal/models"
)

// Series is chart-ready price history: one label, price and target per observation.
type Series struct {
	Title   string
	Dates   []time.Time
	Labels  []string
	Prices  []float64
	Desired []float64
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Prices) }

// SortedHistory returns a copy of history ordered by CheckedAt, oldest first.
func SortedHistory(history []models.PricePoint) []models.PricePoint {
	out := make([]models.PricePoint, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.Before(out[j].CheckedAt) })
	return out
}

// PrepareSeries orders the tracking's history by time and pairs every price with the
// tracking's desired price, so both lines have the same length.
func PrepareSeries(t models.Tracking) Series {
	history := SortedHistory(t.PriceHistory)
	s := Series{
		Title:   t.Title(),
		Dates:   make([]time.Time, len(history)),
		Labels:  make([]string, len(history)),
		Prices:  make([]float64, len(history)),
		Desired: make([]float64, len(history)),
	}
	for i, p := range history {
		s.Dates[i] = p.CheckedAt
		s.Labels[i] = p.CheckedAt.Format(DateLayout)
		s.Prices[i] = p.Price
		s.Desired[i] = t.DesiredPrice
	}
	return s
}

var (
	priceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4BC0C0"))
	desiredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6384"))
	axisStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
)

const (
	pricePoint  = "●"
	desiredMark = "─"
	bothMark    = "◆"
)

// RenderChart draws the price line and the desired-price line in a width x height plot
// area, with a y-axis of prices and the first and last dates underneath.
func RenderChart(s Series, width, height int) string {
	if s.Len() == 0 {
		return "No price history yet."
	}
	width = max(width, 2)
	height = max(height, 2)

	lo, hi := bounds(s)
	row := func(v float64) int {
		return int(math.Round((hi - v) / (hi - lo) * float64(height-1)))
	}

	grid := make([][]string, height)
	for r := range grid {
		grid[r] = make([]string, width)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}

	for c := 0; c < width; c++ {
		i := 0
		if s.Len() > 1 {
			i = int(math.Round(float64(c) * float64(s.Len()-1) / float64(width-1)))
		}
		pr, dr := row(s.Prices[i]), row(s.Desired[i])
		if grid[dr][c] == " " {
			grid[dr][c] = desiredStyle.Render(desiredMark)
		}
		if pr == dr {
			grid[pr][c] = priceStyle.Render(bothMark)
		} else {
			grid[pr][c] = priceStyle.Render(pricePoint)
		}
	}

	labelWidth := max(len(formatAxis(hi)), len(formatAxis(lo)))
	var b strings.Builder
	if s.Title != "" {
		b.WriteString(titleStyle.Render(s.Title))
		b.WriteString("\n")
	}
	for r := 0; r < height; r++ {
		label := ""
		switch r {
		case 0:
			label = formatAxis(hi)
		case height - 1:
			label = formatAxis(lo)
		case (height - 1) / 2:
			label = formatAxis((hi + lo) / 2)
		}
		b.WriteString(axisStyle.Render(fmt.Sprintf("%*s │", labelWidth, label)))
		b.WriteString(strings.Join(grid[r], ""))
		b.WriteString("\n")
	}
	b.WriteString(axisStyle.Render(strings.Repeat(" ", labelWidth) + " └" + strings.Repeat("─", width)))
	b.WriteString("\n")

	first, last := s.Labels[0], s.Labels[s.Len()-1]
	gap := width - len(first) - len(last)
	b.WriteString(strings.Repeat(" ", labelWidth+2))
	if s.Len() == 1 || gap < 1 {
		b.WriteString(first)
	} else {
		b.WriteString(first + strings.Repeat(" ", gap) + last)
	}
	b.WriteString("\n")
	b.WriteString(priceStyle.Render(pricePoint+" price") + "  " + desiredStyle.Render(desiredMark+" target"))
	return b.String()
}

func bounds(s Series) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i := range s.Prices {
		lo = math.Min(lo, math.Min(s.Prices[i], s.Desired[i]))
		hi = math.Max(hi, math.Max(s.Prices[i], s.Desired[i]))
	}
	if hi == lo {
		pad := math.Max(math.Abs(hi)*0.05, 1)
		lo, hi = lo-pad, hi+pad
	}
	return lo, hi
}

func formatAxis(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
