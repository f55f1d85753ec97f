// Package store provides run-history persistence for the execution engine.
//
// A Store records finished (and in-flight) runs so they can be inspected
// after the fact: the submitted prompt, terminal status, collected outputs,
// and which nodes executed versus which were served from cache.
//
// Three implementations are provided:
//   - MemStore: in-memory, for testing and single-process development
//   - SQLiteStore: single-file persistence with zero setup
//   - MySQLStore: shared persistence for multi-instance deployments
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a run ID has no recorded history.
var ErrNotFound = errors.New("store: run not found")

// RunRecord is one entry in the run history.
//
// Prompt and Outputs are stored as raw JSON so the store does not need to
// understand the graph package's types. Error is empty for successful runs.
type RunRecord struct {
	RunID     string          `json:"run_id"`
	Sequence  int64           `json:"sequence"`
	SessionID string          `json:"session_id,omitempty"`
	Status    string          `json:"status"`
	Prompt    json.RawMessage `json:"prompt,omitempty"`
	Outputs   json.RawMessage `json:"outputs,omitempty"`
	Executed  []string        `json:"executed,omitempty"`
	Cached    []string        `json:"cached,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists run history.
//
// SaveRun is an upsert keyed by RunID: the server records a run when it is
// accepted and updates the same record when the run reaches a terminal
// status. ListRuns returns the most recent runs first.
type Store interface {
	// SaveRun inserts or updates the record for rec.RunID.
	SaveRun(ctx context.Context, rec RunRecord) error

	// GetRun returns the record for runID, or ErrNotFound.
	GetRun(ctx context.Context, runID string) (RunRecord, error)

	// ListRuns returns up to limit records ordered by sequence descending.
	// A limit <= 0 returns all records.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// DeleteRun removes the record for runID. Deleting an unknown run is
	// not an error.
	DeleteRun(ctx context.Context, runID string) error

	// Close releases any resources held by the store.
	Close() error
}
