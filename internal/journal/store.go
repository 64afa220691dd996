// Package journal keeps a SQLite audit log of every physical CLI attempt.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"btpctl/internal/logging"
)

// Entry is one physical attempt.
type Entry struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id"`
	Verb      string        `json:"verb"`
	Object    string        `json:"object,omitempty"`
	Argv      []string      `json:"argv"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	Kind      string        `json:"kind,omitempty"` // empty on success
	Attempt   int           `json:"attempt"`
	Killed    bool          `json:"killed,omitempty"`
	StartedAt time.Time     `json:"started_at"`
}

// Store provides SQLite-backed storage for journal entries.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.JournalDebug("Journal opened at %s (driver %s)", path, driverName)
	return store, nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			verb TEXT NOT NULL,
			object TEXT,
			argv TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			kind TEXT,
			attempt INTEGER NOT NULL,
			killed INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create attempts table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_request ON attempts(request_id)`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at)`)
	return nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Record stores an entry, assigning an ID when it has none.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	argv, err := json.Marshal(e.Argv)
	if err != nil {
		return fmt.Errorf("failed to encode argv: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attempts (id, request_id, verb, object, argv, exit_code, duration_ms, kind, attempt, killed, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Verb, e.Object, string(argv), e.ExitCode,
		e.Duration.Milliseconds(), e.Kind, e.Attempt, boolToInt(e.Killed),
		e.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		logging.JournalError("Failed to record attempt %s: %v", e.ID, err)
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `
		SELECT id, request_id, verb, object, argv, exit_code, duration_ms, kind, attempt, killed, started_at
		FROM attempts ORDER BY started_at DESC, attempt DESC LIMIT ?`, limit)
}

// ForRequest returns all attempts of one request in attempt order.
func (s *Store) ForRequest(ctx context.Context, requestID string) ([]Entry, error) {
	return s.query(ctx, `
		SELECT id, request_id, verb, object, argv, exit_code, duration_ms, kind, attempt, killed, started_at
		FROM attempts WHERE request_id = ? ORDER BY attempt`, requestID)
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			object     sql.NullString
			kind       sql.NullString
			argv       string
			durationMs int64
			killed     int
			startedAt  string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Verb, &object, &argv, &e.ExitCode,
			&durationMs, &kind, &e.Attempt, &killed, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Object = object.String
		e.Kind = kind.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.Killed = killed != 0
		if err := json.Unmarshal([]byte(argv), &e.Argv); err != nil {
			return nil, fmt.Errorf("failed to decode argv of %s: %w", e.ID, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			e.StartedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
