package tokenstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/pricewatch/internal/models"
)

const queryTimeout = 5 * time.Second

// SQLiteStore implements [Store] over the session_store table.
//
// The table is created by shared.RunMigrations.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewSQLiteStore creates a store over db.
func NewSQLiteStore(db *sql.DB, logger *log.Logger) *SQLiteStore {
	if logger == nil {
		logger = log.Default()
	}
	return &SQLiteStore{db: db, logger: logger}
}

func (s *SQLiteStore) Save(token string) error {
	if token == "" {
		return s.delete(KeyAccessToken)
	}
	return s.set(KeyAccessToken, token)
}

func (s *SQLiteStore) Load() (string, bool) {
	v, ok, err := s.get(KeyAccessToken)
	if err != nil {
		s.logger.Warn("could not read stored token", "error", err)
		return "", false
	}
	return v, ok && v != ""
}

func (s *SQLiteStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM session_store WHERE key IN (?, ?)`, KeyAccessToken, KeyUser)
	if err != nil {
		return fmt.Errorf("failed to clear session store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveUser(user *models.User) error {
	if user == nil {
		return s.delete(KeyUser)
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return s.set(KeyUser, string(data))
}

func (s *SQLiteStore) LoadUser() (*models.User, bool) {
	v, ok, err := s.get(KeyUser)
	if err != nil {
		s.logger.Warn("could not read stored user", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var user models.User
	if err := json.Unmarshal([]byte(v), &user); err != nil {
		s.logger.Warn("discarding malformed user snapshot", "error", err)
		return nil, false
	}
	return &user, true
}

func (s *SQLiteStore) get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get session_store[%s]: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set session_store[%s]: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete session_store[%s]: %w", key, err)
	}
	return nil
}
