package models

import (
	"fmt"
	"time"
)

// ExportRecord records a history CSV written for a tracking.
type ExportRecord struct {
	id         string
	trackingID string
	path       string
	points     int
	createdAt  time.Time
}

// NewExportRecord creates an unsaved [ExportRecord].
func NewExportRecord(trackingID, path string, points int) *ExportRecord {
	return &ExportRecord{trackingID: trackingID, path: path, points: points, createdAt: time.Now()}
}

func (r *ExportRecord) ID() string               { return r.id }
func (r *ExportRecord) TrackingID() string       { return r.trackingID }
func (r *ExportRecord) Path() string             { return r.path }
func (r *ExportRecord) Points() int              { return r.points }
func (r *ExportRecord) CreatedAt() time.Time     { return r.createdAt }
func (r *ExportRecord) SetID(id string)          { r.id = id }
func (r *ExportRecord) SetCreatedAt(t time.Time) { r.createdAt = t }

// Validate checks required fields.
func (r *ExportRecord) Validate() error {
	if r.trackingID == "" {
		return fmt.Errorf("tracking id is required")
	}
	if r.path == "" {
		return fmt.Errorf("path is required")
	}
	if r.points < 0 {
		return fmt.Errorf("points must not be negative")
	}
	return nil
}
