package graph

import "sync"

// OutputCache memoizes node outputs keyed by node identity and the
// fingerprint of its resolved inputs. Entries persist across runs so
// unaffected branches are skipped; an entry is valid only while the
// fingerprint matches, so upstream changes invalidate dependents without
// any explicit bookkeeping.
type OutputCache interface {
	// Get returns the cached output for id if one exists with a matching
	// fingerprint.
	Get(id NodeID, fp Fingerprint) (Output, bool)

	// Put stores the output for id under fp, replacing any prior entry for
	// the same node.
	Put(id NodeID, fp Fingerprint, out Output)

	// KnownOutputs returns the identities with any stored entry. The
	// executor seeds runs with per-node Get lookups; this exists for
	// external consumers such as the queue-state endpoint and diagnostics.
	KnownOutputs() []NodeID
}

// MemoryCache is an in-process OutputCache keeping the latest entry per
// node. Safe for concurrent use. Memory bounding, when needed, is the
// caller's concern (wrap or periodically Clear); correctness only requires
// that a stale entry is never returned for a changed fingerprint, which the
// fingerprint check in Get guarantees.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[NodeID]cacheEntry
}

type cacheEntry struct {
	fp  Fingerprint
	out Output
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[NodeID]cacheEntry)}
}

// Get implements OutputCache.
func (c *MemoryCache) Get(id NodeID, fp Fingerprint) (Output, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || e.fp != fp {
		return nil, false
	}
	return e.out, true
}

// Put implements OutputCache.
func (c *MemoryCache) Put(id NodeID, fp Fingerprint, out Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{fp: fp, out: out}
}

// KnownOutputs implements OutputCache.
func (c *MemoryCache) KnownOutputs() []NodeID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]NodeID, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[NodeID]cacheEntry)
}

// Len returns the number of cached nodes.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
