package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes structured event output to a writer.
//
// Two output modes:
//   - Text mode (default): one human-readable line with key=value pairs.
//   - JSON mode: one JSON object per line for machine consumption.
//
// Example text output:
//
//	[node_executing] run=run-001 node=b class=Add progress=2/3
//
// Safe for concurrent use; writes are serialized.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to writer (os.Stdout when
// nil). jsonMode selects JSON-lines output.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit writes the event in the configured format. Write errors are
// swallowed; an emitter must never fail a run.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		enc := json.NewEncoder(l.writer)
		_ = enc.Encode(logRecord{
			Kind:      string(event.Kind),
			RunID:     event.RunID,
			NodeID:    event.NodeID,
			ClassType: event.ClassType,
			Nodes:     event.Nodes,
			Progress:  event.Progress,
			Err:       event.Err,
			Meta:      event.Meta,
		})
		return
	}

	line := fmt.Sprintf("[%s] run=%s", event.Kind, event.RunID)
	if event.NodeID != "" {
		line += " node=" + event.NodeID
	}
	if event.ClassType != "" {
		line += " class=" + event.ClassType
	}
	if event.Progress != nil {
		line += fmt.Sprintf(" progress=%d/%d", event.Progress.Current, event.Progress.Total)
	}
	if len(event.Nodes) > 0 {
		line += fmt.Sprintf(" cached=%d", len(event.Nodes))
	}
	if event.Err != nil {
		line += fmt.Sprintf(" error=%q", event.Err.Message)
	}
	_, _ = fmt.Fprintln(l.writer, line)
}

type logRecord struct {
	Kind      string       `json:"kind"`
	RunID     string       `json:"run_id"`
	NodeID    string       `json:"node_id,omitempty"`
	ClassType string       `json:"class_type,omitempty"`
	Nodes     []string     `json:"nodes,omitempty"`
	Progress  *Progress    `json:"progress,omitempty"`
	Err       *ErrorDetail `json:"error,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}
