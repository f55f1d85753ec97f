package emit

import "sync"

// BufferedEmitter stores events in memory, organized by run, with query
// support. Intended for tests and post-run inspection; it grows without
// bound, so long-lived deployments should prefer a persistent backend and
// Clear finished runs.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events in emission order
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its run's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns a copy of the events recorded for runID in emission
// order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.events[runID]...)
}

// ByKind returns runID's events of one kind, in emission order.
func (b *BufferedEmitter) ByKind(runID string, kind Kind) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, ev := range b.events[runID] {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Clear drops the history for runID. Empty runID drops everything.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
