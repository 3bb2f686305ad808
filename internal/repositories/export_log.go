package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/shared"
)

// ErrExportNotFound is returned when no export record matches the requested ID.
var ErrExportNotFound = errors.New("export record not found")

// ExportLogRepository implements [models.Repository] for [models.ExportRecord] persistence.
type ExportLogRepository struct {
	db *sql.DB
}

// NewExportLogRepository creates a new [ExportLogRepository] with the given database connection
func NewExportLogRepository(db *sql.DB) *ExportLogRepository {
	return &ExportLogRepository{db: db}
}

// Create inserts a record with a generated ID
func (r *ExportLogRepository) Create(rec *models.ExportRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()
	_, err := r.db.Exec(
		`INSERT INTO export_log (id, tracking_id, path, points, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, rec.TrackingID(), rec.Path(), rec.Points(), rec.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert export record: %w", err)
	}

	rec.SetID(id)
	return nil
}

// Get retrieves a record by ID
func (r *ExportLogRepository) Get(id string) (*models.ExportRecord, error) {
	row := r.db.QueryRow(`SELECT id, tracking_id, path, points, created_at FROM export_log WHERE id = ?`, id)

	rec, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrExportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query export record: %w", err)
	}
	return rec, nil
}

// Delete removes a record by ID
func (r *ExportLogRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM export_log WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete export record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrExportNotFound, id)
	}
	return nil
}

// List retrieves records newest first. Supported criteria: "tracking_id" (string), "limit" (int).
func (r *ExportLogRepository) List(criteria map[string]any) ([]*models.ExportRecord, error) {
	query := `SELECT id, tracking_id, path, points, created_at FROM export_log WHERE 1 = 1`
	args := []any{}

	if trackingID, ok := criteria["tracking_id"].(string); ok && trackingID != "" {
		query += " AND tracking_id = ?"
		args = append(args, trackingID)
	}

	query += " ORDER BY created_at DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query export records: %w", err)
	}
	defer rows.Close()

	var records []*models.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Record implements tasks.ExportRecorder.
func (r *ExportLogRepository) Record(trackingID, path string, points int) error {
	return r.Create(models.NewExportRecord(trackingID, path, points))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExport(s scanner) (*models.ExportRecord, error) {
	var (
		id, trackingID, path string
		points               int
		createdAt            time.Time
	)
	if err := s.Scan(&id, &trackingID, &path, &points, &createdAt); err != nil {
		return nil, err
	}

	rec := models.NewExportRecord(trackingID, path, points)
	rec.SetID(id)
	rec.SetCreatedAt(createdAt)
	return rec, nil
}
