package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process deployments where history need not survive restarts
//
// MemStore is thread-safe and supports concurrent access. Data is lost
// when the process terminates; use SQLiteStore or MySQLStore for
// persistence.
type MemStore struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		runs: make(map[string]RunRecord),
	}
}

// SaveRun inserts or updates the record for rec.RunID.
func (m *MemStore) SaveRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rec.RunID] = rec
	return nil
}

// GetRun returns the record for runID, or ErrNotFound.
func (m *MemStore) GetRun(_ context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListRuns returns up to limit records ordered by sequence descending.
func (m *MemStore) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]RunRecord, 0, len(m.runs))
	for _, rec := range m.runs {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Sequence > recs[j].Sequence
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// DeleteRun removes the record for runID.
func (m *MemStore) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
