package server

import (
	"log/slog"
	"sync"
)

// Registry tracks connected sessions. Sessions are added and removed
// concurrently with broadcast reads; broadcasts snapshot the session list
// before iterating so a session removed mid-broadcast is never observed
// half-removed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove drops a session and closes its connection.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if ok {
		s.close()
	}
}

// Get returns the session for sessionID, if still connected.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Unicast sends a message to one session. Delivery to a disconnected
// session is silently dropped; a failed write drops the session.
func (r *Registry) Unicast(sessionID string, msg Message) {
	s, ok := r.Get(sessionID)
	if !ok {
		return
	}
	if err := s.Send(msg); err != nil {
		r.logger.Warn("session write failed, dropping session",
			"session_id", sessionID, "error", err)
		r.Remove(sessionID)
	}
}

// Broadcast sends a message to every connected session.
func (r *Registry) Broadcast(msg Message) {
	for _, s := range r.snapshot() {
		if err := s.Send(msg); err != nil {
			r.logger.Warn("session write failed, dropping session",
				"session_id", s.ID, "error", err)
			r.Remove(s.ID)
		}
	}
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
