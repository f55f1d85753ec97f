package server

import (
	"github.com/nodeflow/nodeflow/graph/emit"
)

// Broadcaster translates execution events into wire messages delivered to
// the session owning the run's submission context. It implements
// emit.Emitter, so it plugs into the executor alongside logging and tracing
// emitters.
//
// Events for a disconnected session are dropped, never queued: a mid-run
// disconnect is non-fatal to the run.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster delivering through registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Emit implements emit.Emitter.
func (b *Broadcaster) Emit(ev emit.Event) {
	if ev.SessionID == "" {
		return
	}

	msg, ok := wireMessage(ev)
	if !ok {
		return
	}
	b.registry.Unicast(ev.SessionID, msg)
}

// wireMessage maps an execution event onto its wire representation.
func wireMessage(ev emit.Event) (Message, bool) {
	switch ev.Kind {
	case emit.KindExecutionStart:
		return mustMessage(TypeExecutionStart, RunStartData{RunID: ev.RunID}), true

	case emit.KindExecutionCached:
		nodes := ev.Nodes
		if nodes == nil {
			nodes = []string{}
		}
		return mustMessage(TypeExecutionCached, ExecutionCachedData{
			RunID: ev.RunID,
			Nodes: nodes,
		}), true

	case emit.KindNodeExecuting:
		data := NodeExecutingData{
			RunID:     ev.RunID,
			NodeID:    ev.NodeID,
			ClassType: ev.ClassType,
		}
		if ev.Progress != nil {
			data.Progress = *ev.Progress
		}
		return mustMessage(TypeNodeExecuting, data), true

	case emit.KindExecutionError:
		data := ExecutionErrorData{RunID: ev.RunID}
		if ev.Err != nil {
			data.NodeID = ev.Err.NodeID
			data.ClassType = ev.Err.ClassType
			data.Code = ev.Err.Code
			data.Message = ev.Err.Message
		}
		return mustMessage(TypeExecutionError, data), true

	case emit.KindExecutionInterrupted:
		return mustMessage(TypeExecutionInterrupted, ExecutionInterruptedData{RunID: ev.RunID}), true

	case emit.KindExecutionComplete:
		return mustMessage(TypeExecutionComplete, ExecutionCompleteData{RunID: ev.RunID}), true

	default:
		return Message{}, false
	}
}
