// Package eventstore persists emitted motion events to SQLite. The
// engine itself never persists anything; the daemon subscribes to the
// event bus as an ordinary consumer and records what it hears, so
// callers that do not want persistence simply do not run the store.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/motionscope/motionscope/internal/engine"
)

// Store wraps the SQLite connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Record is one persisted motion event row.
type Record struct {
	ID          string          `json:"id"`
	Timestamp   int64           `json:"timestamp"`
	Algorithm   string          `json:"algorithm"`
	Confidence  float64         `json:"confidence"`
	RegionCount int             `json:"region_count"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListOptions filters queries.
type ListOptions struct {
	Since int64 // minimum event timestamp, milliseconds
	Until int64 // maximum event timestamp, 0 for no bound
	Limit int   // 0 means 100
}

// migrations are applied in order; schema_migrations records progress.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS motion_events (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		algorithm TEXT NOT NULL,
		confidence REAL NOT NULL,
		region_count INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_motion_events_timestamp ON motion_events(timestamp)`,
}

// Open opens (creating if needed) the store at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "eventstore")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("event store opened", "path", path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TIMESTAMP NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, i+1, time.Now()); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		s.logger.Debug("migration applied", "version", i+1)
	}
	return nil
}

// Save persists one motion event.
func (s *Store) Save(ctx context.Context, ev *engine.MotionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO motion_events (id, timestamp, algorithm, confidence, region_count, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp, string(ev.Algorithm), ev.Confidence, len(ev.Regions), string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// SaveRaw persists an already-serialized event payload, as received
// from the event bus.
func (s *Store) SaveRaw(ctx context.Context, payload []byte) error {
	var ev engine.MotionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO motion_events (id, timestamp, algorithm, confidence, region_count, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp, string(ev.Algorithm), ev.Confidence, len(ev.Regions), string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// List returns stored events, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	until := opts.Until
	if until == 0 {
		until = int64(^uint64(0) >> 1)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, algorithm, confidence, region_count, payload, created_at
		 FROM motion_events WHERE timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp DESC LIMIT ?`,
		opts.Since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var payload string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Algorithm, &r.Confidence, &r.RegionCount, &payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM motion_events`).Scan(&n)
	return n, err
}

// Prune deletes events older than the given timestamp, returning the
// number removed.
func (s *Store) Prune(ctx context.Context, before int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM motion_events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
