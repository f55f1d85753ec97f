// Package server exposes the execution engine over WebSocket sessions and a
// small HTTP surface: run submission, queue inspection, run history, and
// Prometheus metrics.
package server

import (
	"encoding/json"
	"fmt"

	"github.com/nodeflow/nodeflow/graph"
	"github.com/nodeflow/nodeflow/graph/emit"
)

// Wire message types. Every message is a JSON object with a required "type"
// field and an optional "data" payload.
const (
	// Server to session.
	TypeSessionID            = "session_id"
	TypeStatus               = "status"
	TypePong                 = "pong"
	TypeRunAccepted          = "run_accepted"
	TypeRunRejected          = "run_rejected"
	TypeExecutionStart       = "execution_start"
	TypeExecutionCached      = "execution_cached"
	TypeNodeExecuting        = "node_executing"
	TypeExecutionError       = "execution_error"
	TypeExecutionInterrupted = "execution_interrupted"
	TypeExecutionComplete    = "execution_complete"

	// Session to server.
	TypePing      = "ping"
	TypeSubmitRun = "submit_run"

	// Both directions. A session may send feature_flags only as its very
	// first message; the server replies with its supported set.
	TypeFeatureFlags = "feature_flags"
)

// Message is the wire envelope.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// newMessage builds an envelope with a marshaled payload. A nil payload
// produces an envelope with no data field.
func newMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	msg.Data = data
	return msg, nil
}

// mustMessage is newMessage for payloads that cannot fail to marshal.
func mustMessage(msgType string, payload any) Message {
	msg, err := newMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// unmarshalData decodes a message payload, treating a missing payload as an
// empty object.
func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return json.Unmarshal(data, v)
}

// SessionIDData announces the session's opaque identity. Always the first
// message on a new session.
type SessionIDData struct {
	SessionID string `json:"session_id"`
}

// StatusData is a queue and run state snapshot, broadcast to all sessions.
type StatusData struct {
	QueueDepth int    `json:"queue_depth"`
	RunningID  string `json:"running_id,omitempty"`
}

// FeatureFlagsData maps feature names to capability values.
type FeatureFlagsData map[string]any

// SubmitRunData is an in-session run submission.
type SubmitRunData struct {
	Prompt    *graph.Prompt  `json:"prompt"`
	RunID     string         `json:"run_id,omitempty"`
	Front     bool           `json:"front,omitempty"`
	ExtraData map[string]any `json:"extra_data,omitempty"`
}

// RunAcceptedData acknowledges a queued submission.
type RunAcceptedData struct {
	RunID    string   `json:"run_id"`
	Sequence int64    `json:"sequence"`
	Warnings []string `json:"warnings,omitempty"`
}

// RunRejectedData reports validation failure with the offending nodes.
type RunRejectedData struct {
	RunID  string                  `json:"run_id,omitempty"`
	Nodes  []string                `json:"node_ids"`
	Issues []graph.ValidationIssue `json:"issues"`
}

// ExecutionCachedData lists node identities already satisfied from cache.
type ExecutionCachedData struct {
	RunID string   `json:"run_id"`
	Nodes []string `json:"nodes"`
}

// NodeExecutingData precedes each fresh node execution.
type NodeExecutingData struct {
	RunID     string        `json:"run_id"`
	NodeID    string        `json:"node_id"`
	ClassType string        `json:"class_type"`
	Progress  emit.Progress `json:"progress"`
}

// ExecutionErrorData reports the node failure that aborted a run.
type ExecutionErrorData struct {
	RunID     string `json:"run_id"`
	NodeID    string `json:"node_id"`
	ClassType string `json:"class_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// ExecutionCompleteData reports a successfully completed run.
type ExecutionCompleteData struct {
	RunID string `json:"run_id"`
}

// ExecutionInterruptedData reports a cancelled run.
type ExecutionInterruptedData struct {
	RunID string `json:"run_id"`
}

// RunStartData reports a run entering the RUNNING state.
type RunStartData struct {
	RunID string `json:"run_id"`
}
