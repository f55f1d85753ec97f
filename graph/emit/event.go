// Package emit defines the progress event model emitted during run
// execution and emitters that deliver those events to observability
// backends and connected sessions.
package emit

// Kind names the event. Progress-facing kinds map one-to-one onto wire
// message types delivered to the owning session.
type Kind string

const (
	// KindExecutionStart marks a run entering the RUNNING state.
	KindExecutionStart Kind = "execution_start"

	// KindExecutionCached lists node identities already satisfied from the
	// output cache before fresh scheduling begins.
	KindExecutionCached Kind = "execution_cached"

	// KindNodeExecuting precedes each node execution and carries progress
	// accounting.
	KindNodeExecuting Kind = "node_executing"

	// KindExecutionError reports the node failure that aborted a run.
	KindExecutionError Kind = "execution_error"

	// KindExecutionInterrupted reports a run cancelled at a scheduling
	// boundary.
	KindExecutionInterrupted Kind = "execution_interrupted"

	// KindExecutionComplete reports successful completion of a run.
	KindExecutionComplete Kind = "execution_complete"
)

// Progress is the {current, total, percentage} accounting attached to
// node_executing events. Current increments only for nodes not already
// satisfied from the cache; Total is fixed at run start.
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ErrorDetail is the structured cause attached to execution_error events.
type ErrorDetail struct {
	NodeID    string `json:"node_id"`
	ClassType string `json:"class_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Event is a single observability event from run execution.
//
// SessionID names the session owning the run's submission context; routing
// emitters deliver the event only to that session and drop it silently if
// the session has disconnected. Emitters without session awareness ignore
// the field.
type Event struct {
	Kind      Kind
	RunID     string
	SessionID string

	// NodeID and ClassType identify the node for node-scoped kinds.
	NodeID    string
	ClassType string

	// Nodes lists identities for execution_cached.
	Nodes []string

	// Progress is set for node_executing.
	Progress *Progress

	// Err is set for execution_error.
	Err *ErrorDetail

	// Meta carries additional structured data (durations, queue context).
	Meta map[string]any
}

// Emitter receives progress events from run execution.
//
// Implementations must be safe for concurrent use, must not block the
// executor loop, and must not panic; delivery failures are logged
// internally and never propagate into the run.
type Emitter interface {
	Emit(event Event)
}

// Multi fans one event out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
