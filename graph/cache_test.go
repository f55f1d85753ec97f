package graph

import "testing"

func TestMemoryCacheHitAndMiss(t *testing.T) {
	c := NewMemoryCache()

	if _, ok := c.Get("a", "fp1"); ok {
		t.Error("empty cache should miss")
	}

	c.Put("a", "fp1", Output{5.0})
	out, ok := c.Get("a", "fp1")
	if !ok || out[0] != 5.0 {
		t.Errorf("expected hit with [5], got %v (%v)", out, ok)
	}

	// A changed fingerprint never returns the stale entry.
	if _, ok := c.Get("a", "fp2"); ok {
		t.Error("stale entry returned for a changed fingerprint")
	}
}

func TestMemoryCacheLatestEntryWins(t *testing.T) {
	c := NewMemoryCache()
	c.Put("a", "fp1", Output{1.0})
	c.Put("a", "fp2", Output{2.0})

	if _, ok := c.Get("a", "fp1"); ok {
		t.Error("superseded fingerprint should miss")
	}
	out, ok := c.Get("a", "fp2")
	if !ok || out[0] != 2.0 {
		t.Errorf("expected latest entry, got %v (%v)", out, ok)
	}
	if c.Len() != 1 {
		t.Errorf("cache keeps one entry per node, got %d", c.Len())
	}
}

func TestMemoryCacheKnownOutputs(t *testing.T) {
	c := NewMemoryCache()
	c.Put("b", "fp", Output{1.0})
	c.Put("a", "fp", Output{2.0})

	known := c.KnownOutputs()
	if len(known) != 2 {
		t.Fatalf("expected 2 known nodes, got %v", known)
	}

	c.Clear()
	if c.Len() != 0 || len(c.KnownOutputs()) != 0 {
		t.Error("Clear should empty the cache")
	}
}
