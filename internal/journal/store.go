// Package journal records every processed event twice: a bounded in-memory
// ring serving get_recent_events, and a sqlite audit trail that survives
// daemon restarts and is swept by retention.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"projd/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("chmod journal: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) InsertEvent(ctx context.Context, rec model.EventRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = model.EventPending
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO events(event_id, event_type, subtype, payload, received_at, status, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.EventID, rec.EventType, rec.Subtype, rec.Payload,
		ts(rec.ReceivedAt), string(rec.Status), rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) UpdateEventStatus(ctx context.Context, eventID string, status model.EventStatus, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE events SET status = ?, error_message = ? WHERE event_id = ?`,
		string(status), errorMessage, eventID)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent returns up to limit events, newest first, optionally filtered
// by event type.
func (s *Store) ListRecent(ctx context.Context, limit int, eventType string) ([]model.EventRecord, error) {
	if limit <= 0 {
		limit = DefaultRingCapacity
	}
	query := `
SELECT event_id, event_type, subtype, payload, received_at, status, error_message
FROM events`
	args := []any{}
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY received_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EventRecord
	for rows.Next() {
		var rec model.EventRecord
		var receivedAt, status string
		if err := rows.Scan(&rec.EventID, &rec.EventType, &rec.Subtype, &rec.Payload,
			&receivedAt, &status, &rec.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.ReceivedAt = parseTS(receivedAt)
		rec.Status = model.EventStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// PruneBefore deletes journal rows older than the cutoff and returns the
// number removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE received_at < ?`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return n, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
