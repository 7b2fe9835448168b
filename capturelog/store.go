// Package capturelog records one row per capture attempt in a local SQLite
// database. Recording is best effort: a failing log store never blocks or
// fails a capture.
package capturelog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Entry is one capture attempt.
type Entry struct {
	CaptureID  string `json:"capture_id"`
	URL        string `json:"url"`
	Strategy   string `json:"strategy,omitempty"`
	Filename   string `json:"filename,omitempty"`
	RUT        string `json:"rut,omitempty"`
	IssueDate  string `json:"issue_date,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// Store wraps the SQLite capture log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates parent directories, opens the database, and applies the
// schema. The caller owns Close.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("capturelog: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("capturelog: open %s: %w", path, err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS captures (
			capture_id  TEXT PRIMARY KEY,
			url         TEXT NOT NULL,
			strategy    TEXT NOT NULL DEFAULT '',
			filename    TEXT NOT NULL DEFAULT '',
			rut         TEXT NOT NULL DEFAULT '',
			issue_date  TEXT NOT NULL DEFAULT '',
			bytes       INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			success     INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_captures_created ON captures(created_at);
	`)
	if err != nil {
		return fmt.Errorf("capturelog: init schema: %w", err)
	}
	return nil
}

// Record inserts an entry. Errors are logged, never propagated.
func (s *Store) Record(ctx context.Context, e Entry) {
	if e.CaptureID == "" {
		e.CaptureID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO captures (capture_id, url, strategy, filename, rut, issue_date,
			bytes, duration_ms, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CaptureID, e.URL, e.Strategy, e.Filename, e.RUT, e.IssueDate,
		e.Bytes, e.DurationMs, success, e.Error, e.CreatedAt)
	if err != nil {
		s.logger.Error("capturelog: record failed", "error", err, "url", e.URL)
	}
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT capture_id, url, strategy, filename, rut, issue_date,
			bytes, duration_ms, success, error, created_at
		FROM captures ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("capturelog: query: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var success int
		if err := rows.Scan(&e.CaptureID, &e.URL, &e.Strategy, &e.Filename,
			&e.RUT, &e.IssueDate, &e.Bytes, &e.DurationMs, &success,
			&e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("capturelog: scan: %w", err)
		}
		e.Success = success != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
