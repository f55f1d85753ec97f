package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// It stores run history in a relational database. Designed for:
//   - Production deployments requiring persistence
//   - Multiple server instances sharing one history
//
// MySQLStore uses connection pooling for reliability.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Example:
//
//	user:password@tcp(localhost:3306)/nodeflow?parseTime=true
//
// The parseTime=true parameter is required so timestamp columns scan into
// time.Time. Never hardcode credentials; read the DSN from the environment.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS run_history (
			run_id VARCHAR(255) PRIMARY KEY,
			sequence BIGINT NOT NULL,
			session_id VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(32) NOT NULL,
			prompt JSON,
			outputs JSON,
			executed TEXT,
			cached TEXT,
			error TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			INDEX idx_history_sequence (sequence)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create run_history table: %w", err)
	}
	return nil
}

// SaveRun inserts or updates the record for rec.RunID.
func (m *MySQLStore) SaveRun(ctx context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	query := `
		INSERT INTO run_history
			(run_id, sequence, session_id, status, prompt, outputs, executed, cached, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			outputs = VALUES(outputs),
			executed = VALUES(executed),
			cached = VALUES(cached),
			error = VALUES(error),
			updated_at = VALUES(updated_at)
	`
	_, err := m.db.ExecContext(ctx, query,
		rec.RunID, rec.Sequence, rec.SessionID, rec.Status,
		nullableJSON(rec.Prompt), nullableJSON(rec.Outputs),
		joinNodes(rec.Executed), joinNodes(rec.Cached),
		rec.Error, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun returns the record for runID, or ErrNotFound.
func (m *MySQLStore) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return RunRecord{}, fmt.Errorf("store is closed")
	}

	query := `
		SELECT run_id, sequence, session_id, status, prompt, outputs, executed, cached, error, created_at, updated_at
		FROM run_history WHERE run_id = ?
	`
	rec, err := scanMySQLRun(m.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns up to limit records ordered by sequence descending.
func (m *MySQLStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
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

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanMySQLRun(rows)
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
func (m *MySQLStore) DeleteRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := m.db.ExecContext(ctx, "DELETE FROM run_history WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

// Close closes the database connection.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func scanMySQLRun(row rowScanner) (RunRecord, error) {
	var (
		rec                                     RunRecord
		prompt, outputs, executed, cached, errs sql.NullString
		created, updated                        time.Time
	)
	err := row.Scan(&rec.RunID, &rec.Sequence, &rec.SessionID, &rec.Status,
		&prompt, &outputs, &executed, &cached, &errs, &created, &updated)
	if err != nil {
		return RunRecord{}, err
	}
	if prompt.Valid && prompt.String != "" {
		rec.Prompt = json.RawMessage(prompt.String)
	}
	if outputs.Valid && outputs.String != "" {
		rec.Outputs = json.RawMessage(outputs.String)
	}
	rec.Executed = splitNodes(executed.String)
	rec.Cached = splitNodes(cached.String)
	rec.Error = errs.String
	rec.CreatedAt = created.UTC()
	rec.UpdatedAt = updated.UTC()
	return rec, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
