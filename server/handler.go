package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nodeflow/nodeflow/graph"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

// handleWebSocket serves one session. The session_id announcement is sent
// before any other traffic; that ordering is a protocol invariant.
func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := newSession(uuid.New().String(), ws)
	s.registry.Add(sess)
	defer s.registry.Remove(sess.ID)
	s.logger.Info("session connected", "session_id", sess.ID)

	if err := sess.Send(mustMessage(TypeSessionID, SessionIDData{SessionID: sess.ID})); err != nil {
		s.logger.Warn("failed to announce session identity", "session_id", sess.ID, "error", err)
		return
	}
	_ = sess.Send(mustMessage(TypeStatus, s.statusSnapshot()))

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			s.logger.Info("session disconnected", "session_id", sess.ID, "error", err)
			return
		}

		if sess.observeMessage(msg) {
			if err := sess.Send(mustMessage(TypeFeatureFlags, serverFeatures)); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case TypeFeatureFlags:
			// Negotiation after the first message: ignored, not an error.

		case TypePing:
			if err := sess.Send(Message{Type: TypePong}); err != nil {
				return
			}

		case TypeSubmitRun:
			s.handleSubmitMessage(sess, msg)

		default:
			// Protocol error: log and ignore, connection stays open.
			s.logger.Warn("unknown message type ignored",
				"session_id", sess.ID, "type", msg.Type)
		}
	}
}

// handleSubmitMessage validates and enqueues an in-session run submission,
// answering with run_accepted or run_rejected.
func (s *Server) handleSubmitMessage(sess *Session, msg Message) {
	var req SubmitRunData
	if err := unmarshalData(msg.Data, &req); err != nil {
		s.logger.Warn("malformed submit_run ignored", "session_id", sess.ID, "error", err)
		return
	}

	accepted, rejected := s.submit(req, sess.ID)
	if rejected != nil {
		_ = sess.Send(mustMessage(TypeRunRejected, *rejected))
		return
	}
	_ = sess.Send(mustMessage(TypeRunAccepted, *accepted))
}

// submit validates a prompt and enqueues it, shared by the in-session and
// HTTP submission paths. Exactly one of the returns is non-nil.
func (s *Server) submit(req SubmitRunData, sessionID string) (*RunAcceptedData, *RunRejectedData) {
	if req.Prompt == nil {
		return nil, &RunRejectedData{
			RunID: req.RunID,
			Nodes: []string{},
			Issues: []graph.ValidationIssue{{
				Code:    graph.IssueNoOutputs,
				Message: "submission carries no prompt",
			}},
		}
	}

	if err := req.Prompt.Validate(s.resolver); err != nil {
		verr, ok := err.(*graph.ValidationError)
		if !ok {
			verr = &graph.ValidationError{Issues: []graph.ValidationIssue{{
				Code:    graph.IssueMissingNode,
				Message: err.Error(),
			}}}
		}
		nodes := make([]string, 0, len(verr.Issues))
		for _, id := range verr.NodeIDs() {
			nodes = append(nodes, string(id))
		}
		return nil, &RunRejectedData{
			RunID:  req.RunID,
			Nodes:  nodes,
			Issues: verr.Issues,
		}
	}

	var warnings []string
	for _, id := range req.Prompt.UnusedNodes() {
		warnings = append(warnings, fmt.Sprintf("node %q is not required by any requested output", id))
	}

	run := &graph.QueuedRun{
		RunID:     req.RunID,
		Prompt:    req.Prompt,
		SessionID: sessionID,
		ExtraData: req.ExtraData,
		Front:     req.Front,
	}
	seq, runID, err := s.queue.Enqueue(run)
	if err != nil {
		return nil, &RunRejectedData{
			RunID: req.RunID,
			Nodes: []string{},
			Issues: []graph.ValidationIssue{{
				Code:    "queue_closed",
				Message: err.Error(),
			}},
		}
	}

	s.recordSubmission(run)
	s.broadcastStatus()

	return &RunAcceptedData{RunID: runID, Sequence: seq, Warnings: warnings}, nil
}
