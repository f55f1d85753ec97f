package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It stores run history in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-instance deployments requiring persistence
//
// SQLiteStore uses WAL mode for concurrent reads and a single writer
// connection, which matches SQLite's locking model.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./history.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically creates the database file and required tables,
// and enables WAL mode for concurrent reads.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS run_history (
			run_id TEXT PRIMARY KEY,
			sequence INTEGER NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			prompt TEXT,
			outputs TEXT,
			executed TEXT,
			cached TEXT,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create run_history table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_history_sequence ON run_history(sequence)"); err != nil {
		return fmt.Errorf("failed to create idx_history_sequence: %w", err)
	}
	return nil
}

// SaveRun inserts or updates the record for rec.RunID.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	executed, cached := joinNodes(rec.Executed), joinNodes(rec.Cached)
	query := `
		INSERT INTO run_history
			(run_id, sequence, session_id, status, prompt, outputs, executed, cached, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			outputs = excluded.outputs,
			executed = excluded.executed,
			cached = excluded.cached,
			error = excluded.error,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.RunID, rec.Sequence, rec.SessionID, rec.Status,
		string(rec.Prompt), string(rec.Outputs), executed, cached,
		rec.Error, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun returns the record for runID, or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return RunRecord{}, fmt.Errorf("store is closed")
	}

	query := `
		SELECT run_id, sequence, session_id, status, prompt, outputs, executed, cached, error, created_at, updated_at
		FROM run_history WHERE run_id = ?
	`
	rec, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns up to limit records ordered by sequence descending.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	query := `
		SELECT run_id, sequence, session_id, status, prompt, outputs, executed, cached, error, created_at, updated_at
		FROM run_history ORDER BY sequence DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return recs, nil
}

// DeleteRun removes the record for runID.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM run_history WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec               RunRecord
		prompt, outputs   string
		executed, cached  string
		created, updated  time.Time
	)
	err := row.Scan(&rec.RunID, &rec.Sequence, &rec.SessionID, &rec.Status,
		&prompt, &outputs, &executed, &cached, &rec.Error, &created, &updated)
	if err != nil {
		return RunRecord{}, err
	}
	if prompt != "" {
		rec.Prompt = json.RawMessage(prompt)
	}
	if outputs != "" {
		rec.Outputs = json.RawMessage(outputs)
	}
	rec.Executed = splitNodes(executed)
	rec.Cached = splitNodes(cached)
	rec.CreatedAt = created.UTC()
	rec.UpdatedAt = updated.UTC()
	return rec, nil
}

func joinNodes(ids []string) string {
	return strings.Join(ids, ",")
}

func splitNodes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
