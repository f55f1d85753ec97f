package graph

import (
	"context"
	"encoding/json"
	"fmt"
)

// NodeID uniquely identifies a node within a single run. Identifiers from the
// submitted prompt are caller-chosen strings; identifiers minted for injected
// nodes are derived from the expanding node (see DynamicView.Inject).
type NodeID string

// OutputRef points at one output slot of another node.
type OutputRef struct {
	Node NodeID
	Slot int
}

// Input is a single named node input: either a literal JSON value or a
// reference to another node's output slot. Exactly one of Literal/Ref is set.
type Input struct {
	// Literal holds the decoded JSON value for literal inputs.
	Literal any

	// Ref is non-nil for inputs wired to another node's output.
	Ref *OutputRef
}

// IsRef reports whether the input is wired to another node's output.
func (in Input) IsRef() bool { return in.Ref != nil }

// Lit returns an Input holding a literal value.
func Lit(v any) Input { return Input{Literal: v} }

// RefTo returns an Input wired to slot of the named node.
func RefTo(node NodeID, slot int) Input {
	return Input{Ref: &OutputRef{Node: node, Slot: slot}}
}

// UnmarshalJSON decodes the wire form of an input. A two-element array of
// [nodeID, slotIndex] is an output reference; anything else is a literal.
func (in *Input) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) == 2 {
		var node string
		var slot int
		if json.Unmarshal(arr[0], &node) == nil && json.Unmarshal(arr[1], &slot) == nil {
			in.Ref = &OutputRef{Node: NodeID(node), Slot: slot}
			in.Literal = nil
			return nil
		}
	}

	var lit any
	if err := json.Unmarshal(data, &lit); err != nil {
		return err
	}
	in.Literal = lit
	in.Ref = nil
	return nil
}

// MarshalJSON encodes the input back into its wire form.
func (in Input) MarshalJSON() ([]byte, error) {
	if in.Ref != nil {
		return json.Marshal([]any{string(in.Ref.Node), in.Ref.Slot})
	}
	return json.Marshal(in.Literal)
}

// Node is a single computation unit: a class type naming its behavior and a
// named set of inputs. Nodes are immutable once a run starts.
type Node struct {
	ClassType string           `json:"class_type"`
	Inputs    map[string]Input `json:"inputs"`
}

// Output is the ordered slot values a node produced.
type Output []any

// ExecRequest carries everything a backend needs to execute one node.
// Inputs hold fully resolved values: literals as submitted, references
// replaced by the upstream node's slot value.
type ExecRequest struct {
	RunID     string
	NodeID    NodeID
	ClassType string
	Inputs    map[string]any
}

// AsyncCompletion is the eventual result of an asynchronously executing node.
type AsyncCompletion struct {
	Output Output
	Expand *Expansion
	Err    error
}

// Expansion describes a subgraph to inject in place of the expanding node.
// Nodes are keyed by identifiers local to the expansion; the executor remaps
// them to fresh run-scoped identifiers before scheduling. Result wires the
// expanding node's output slots to outputs of the injected subgraph.
type Expansion struct {
	Nodes  map[NodeID]Node
	Result []OutputRef
}

// ExecResult is what a backend returns for one node execution. Exactly one of
// the three shapes is populated:
//
//   - Output set: the node completed synchronously.
//   - Async set: completion will arrive later on the channel; the executor
//     keeps scheduling other ready nodes in the meantime.
//   - Expand set: the node expanded into a subgraph; its outputs resolve
//     through Expansion.Result once the injected nodes have executed.
type ExecResult struct {
	Output Output
	Async  <-chan AsyncCompletion
	Expand *Expansion
}

// NodeBackend executes nodes of one class type. Implementations live outside
// the core engine (see the nodes package for builtins); the engine only
// requires that Execute respects ctx cancellation for long-running work.
type NodeBackend interface {
	Execute(ctx context.Context, req ExecRequest) (*ExecResult, error)
}

// BackendFunc adapts a plain function to the NodeBackend interface.
type BackendFunc func(ctx context.Context, req ExecRequest) (*ExecResult, error)

// Execute implements NodeBackend.
func (f BackendFunc) Execute(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	return f(ctx, req)
}

// BackendResolver maps a node's class type to the backend that executes it.
type BackendResolver interface {
	Resolve(classType string) (NodeBackend, bool)
}

// NodeError is a structured error raised by node execution. It aborts the
// remainder of the run while preserving cache entries already committed.
type NodeError struct {
	// NodeID identifies which node produced this error.
	NodeID NodeID

	// ClassType is the failing node's type tag.
	ClassType string

	// Code is a machine-readable cause for programmatic handling.
	Code string

	// Message is the human-readable error description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %s (%s): %s", e.NodeID, e.ClassType, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *NodeError) Unwrap() error { return e.Cause }
