package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/pricewatch/internal/models"
)

var _ list.Item = watchItem{}

// watchItem wraps [models.Tracking] to implement [list.Item].
type watchItem struct {
	tracking models.Tracking
}

func (i watchItem) FilterValue() string { return i.tracking.Title() }
func (i watchItem) Title() string       { return i.tracking.Title() }
func (i watchItem) Description() string {
	parts := []string{fmt.Sprintf("target %s", price(i.tracking.DesiredPrice))}
	if latest, ok := i.tracking.LatestPrice(); ok {
		parts = append(parts, fmt.Sprintf("now %s", price(latest)))
	}
	if !i.tracking.IsActive {
		parts = append(parts, "paused")
	}
	return strings.Join(parts, " • ")
}

func price(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d ₽", int64(v))
	}
	return fmt.Sprintf("%.2f ₽", v)
}
