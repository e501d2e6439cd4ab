// Package sqlite provides a SQLite-backed development response cache.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/Scouterna/j26-signupinfo/internal/platform/storage/sqlitemigrate"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/storage"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists upstream responses in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.ResponseCache = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite response cache and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetResponse returns the response cached under key.
func (s *Store) GetResponse(ctx context.Context, key string) (storage.CachedResponse, error) {
	if err := ctx.Err(); err != nil {
		return storage.CachedResponse{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CachedResponse{}, fmt.Errorf("storage is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return storage.CachedResponse{}, fmt.Errorf("response key is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT response_key, body, stored_at
		   FROM upstream_responses
		  WHERE response_key = ?`,
		key,
	)
	var response storage.CachedResponse
	var storedAt int64
	if err := row.Scan(&response.Key, &response.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CachedResponse{}, storage.ErrNotFound
		}
		return storage.CachedResponse{}, fmt.Errorf("get response: %w", err)
	}
	response.StoredAt = fromMillis(storedAt)
	return response, nil
}

// PutResponse inserts or replaces the response cached under its key.
func (s *Store) PutResponse(ctx context.Context, response storage.CachedResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	key := strings.TrimSpace(response.Key)
	if key == "" {
		return fmt.Errorf("response key is required")
	}
	if len(response.Body) == 0 {
		return fmt.Errorf("response body is required")
	}
	storedAt := response.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO upstream_responses (response_key, body, stored_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(response_key) DO UPDATE SET
		   body = excluded.body,
		   stored_at = excluded.stored_at`,
		key,
		response.Body,
		toMillis(storedAt),
	)
	if err != nil {
		return fmt.Errorf("put response: %w", err)
	}
	return nil
}
