package server

import (
	"sync"

	"github.com/gorilla/websocket"
)

// negotiationState is the per-session protocol state machine. A session may
// negotiate features only with its very first inbound message; after that
// the state is Negotiated forever and further feature_flags messages are
// ignored.
type negotiationState int

const (
	stateAwaitingFirstMessage negotiationState = iota
	stateNegotiated
)

// serverFeatures is the capability set announced in feature_flags replies.
var serverFeatures = FeatureFlagsData{
	"protocol_version": 1,
	"async_nodes":      true,
	"node_expansion":   true,
	"output_cache":     true,
}

// Session is one live WebSocket connection: an opaque identity, the
// connection, and the negotiated feature set. Sessions are created on
// connect and destroyed on disconnect, never persisted.
type Session struct {
	ID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	state    negotiationState
	features FeatureFlagsData
}

func newSession(id string, conn *websocket.Conn) *Session {
	return &Session{
		ID:       id,
		conn:     conn,
		state:    stateAwaitingFirstMessage,
		features: FeatureFlagsData{},
	}
}

// Send writes one wire message to the session. Concurrent senders are
// serialized; a write failure means the connection is dead and the caller
// should drop the session.
func (s *Session) Send(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// observeMessage advances the negotiation state machine for one inbound
// message. It returns true when the message is a feature_flags negotiation
// that should be answered; a feature_flags message after the first is
// ignored per protocol and returns false.
func (s *Session) observeMessage(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.state == stateAwaitingFirstMessage
	s.state = stateNegotiated

	if msg.Type != TypeFeatureFlags || !first {
		return false
	}

	var requested FeatureFlagsData
	if err := unmarshalData(msg.Data, &requested); err != nil {
		// Malformed negotiation: treat as never negotiated.
		return false
	}
	s.features = requested
	return true
}

// Features returns the session's negotiated feature set. Empty for sessions
// that never negotiated.
func (s *Session) Features() FeatureFlagsData {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(FeatureFlagsData, len(s.features))
	for k, v := range s.features {
		out[k] = v
	}
	return out
}

func (s *Session) close() {
	_ = s.conn.Close()
}
