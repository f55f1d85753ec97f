// Package graph provides the node-graph execution engine: prompt model,
// output caching, dependency scheduling, and the run executor.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected indicates a reference cycle among nodes whose outputs are
// mutually required. Cyclic prompts are rejected before any node executes;
// cycles introduced by subgraph injection fail the run at the next
// scheduling boundary.
var ErrCycleDetected = errors.New("graph contains a reference cycle")

// ErrSchedulingDeadlock indicates a well-formed graph on which no further
// progress is possible: some requested output depends on a node that can
// never be staged. Distinct from normal completion.
var ErrSchedulingDeadlock = errors.New("no schedulable node can satisfy the requested outputs")

// ErrQueueClosed is returned by queue operations after Close.
var ErrQueueClosed = errors.New("submission queue closed")

// ErrInterrupted marks a run cancelled at a scheduling boundary.
var ErrInterrupted = errors.New("run interrupted")

// ValidationIssue describes one problem found while validating a prompt.
type ValidationIssue struct {
	NodeID  NodeID `json:"node_id"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validation issue codes reported in run_rejected messages.
const (
	IssueMissingNode   = "missing_node"
	IssueUnknownClass  = "unknown_class"
	IssueBadReference  = "bad_reference"
	IssueCycle         = "cycle"
	IssueNoOutputs     = "no_outputs"
	IssueEmptyClass    = "empty_class"
	IssueDuplicateNode = "duplicate_node"
)

// ValidationError rejects a prompt before execution; the run never enters
// RUNNING when one is returned.
type ValidationError struct {
	Issues []ValidationIssue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "prompt validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.NodeID != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", is.NodeID, is.Message))
		} else {
			parts = append(parts, is.Message)
		}
	}
	return "prompt validation failed: " + strings.Join(parts, "; ")
}

// NodeIDs returns the identities of the offending nodes, deduplicated in
// issue order.
func (e *ValidationError) NodeIDs() []NodeID {
	seen := make(map[NodeID]bool, len(e.Issues))
	ids := make([]NodeID, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.NodeID == "" || seen[is.NodeID] {
			continue
		}
		seen[is.NodeID] = true
		ids = append(ids, is.NodeID)
	}
	return ids
}
