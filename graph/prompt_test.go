package graph

import (
	"context"
	"errors"
	"testing"
)

type stubResolver map[string]bool

func (r stubResolver) Resolve(classType string) (NodeBackend, bool) {
	if !r[classType] {
		return nil, false
	}
	return BackendFunc(func(context.Context, ExecRequest) (*ExecResult, error) {
		return &ExecResult{Output: Output{nil}}, nil
	}), true
}

func TestParsePrompt(t *testing.T) {
	raw := `{
		"nodes": {
			"a": {"class_type": "Value", "inputs": {"value": 5}},
			"b": {"class_type": "Add", "inputs": {"a": ["a", 0], "b": 3}}
		},
		"outputs": ["b"]
	}`

	p, err := ParsePrompt([]byte(raw))
	if err != nil {
		t.Fatalf("ParsePrompt failed: %v", err)
	}
	if len(p.Nodes) != 2 || len(p.Outputs) != 1 {
		t.Fatalf("unexpected prompt shape: %d nodes, %d outputs", len(p.Nodes), len(p.Outputs))
	}
	if !p.Nodes["b"].Inputs["a"].IsRef() {
		t.Error("reference input lost in parsing")
	}

	if _, err := ParsePrompt([]byte(`{"nodes": 7}`)); err == nil {
		t.Error("expected error for malformed prompt JSON")
	}
}

func TestParsePromptRejectsDuplicateNodeIDs(t *testing.T) {
	raw := `{
		"nodes": {
			"a": {"class_type": "Value", "inputs": {"value": 1}},
			"b": {"class_type": "Value", "inputs": {"value": 2}},
			"a": {"class_type": "Value", "inputs": {"value": 3}}
		},
		"outputs": ["a"]
	}`

	_, err := ParsePrompt([]byte(raw))
	if err == nil {
		t.Fatal("expected duplicate node identity to be rejected")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Issues) != 1 {
		t.Fatalf("issues = %v, want exactly one", verr.Issues)
	}
	is := verr.Issues[0]
	if is.Code != IssueDuplicateNode || is.NodeID != "a" {
		t.Errorf("issue = %+v, want duplicate_node on a", is)
	}

	// Distinct identities with identical node bodies stay valid.
	if _, err := ParsePrompt([]byte(`{
		"nodes": {
			"a": {"class_type": "Value", "inputs": {"value": 1}},
			"b": {"class_type": "Value", "inputs": {"value": 1}}
		},
		"outputs": ["a"]
	}`)); err != nil {
		t.Errorf("unique node identities rejected: %v", err)
	}
}

func validationIssues(t *testing.T, p *Prompt, resolver BackendResolver) []ValidationIssue {
	t.Helper()

	err := p.Validate(resolver)
	if err == nil {
		t.Fatal("expected validation to fail")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return verr.Issues
}

func hasIssue(issues []ValidationIssue, code string, node NodeID) bool {
	for _, is := range issues {
		if is.Code == code && is.NodeID == node {
			return true
		}
	}
	return false
}

func TestValidateAcceptsWellFormedPrompt(t *testing.T) {
	p := &Prompt{
		Nodes: map[NodeID]Node{
			"a": {ClassType: "Value", Inputs: map[string]Input{"value": Lit(5.0)}},
			"b": {ClassType: "Add", Inputs: map[string]Input{"a": RefTo("a", 0), "b": Lit(3.0)}},
		},
		Outputs: []NodeID{"b"},
	}
	if err := p.Validate(stubResolver{"Value": true, "Add": true}); err != nil {
		t.Errorf("expected valid prompt, got %v", err)
	}
}

func TestValidateNoOutputs(t *testing.T) {
	p := &Prompt{Nodes: map[NodeID]Node{"a": {ClassType: "Value"}}}
	issues := validationIssues(t, p, nil)
	if !hasIssue(issues, IssueNoOutputs, "") {
		t.Errorf("expected no_outputs issue, got %v", issues)
	}
}

func TestValidateMissingOutputNode(t *testing.T) {
	p := &Prompt{
		Nodes:   map[NodeID]Node{"a": {ClassType: "Value"}},
		Outputs: []NodeID{"ghost"},
	}
	issues := validationIssues(t, p, nil)
	if !hasIssue(issues, IssueMissingNode, "ghost") {
		t.Errorf("expected missing_node issue for ghost, got %v", issues)
	}
}

func TestValidateEmptyClassAndUnknownClass(t *testing.T) {
	p := &Prompt{
		Nodes: map[NodeID]Node{
			"bare":    {},
			"unknown": {ClassType: "Nope"},
		},
		Outputs: []NodeID{"bare", "unknown"},
	}
	issues := validationIssues(t, p, stubResolver{})
	if !hasIssue(issues, IssueEmptyClass, "bare") {
		t.Errorf("expected empty_class issue, got %v", issues)
	}
	if !hasIssue(issues, IssueUnknownClass, "unknown") {
		t.Errorf("expected unknown_class issue, got %v", issues)
	}
}

func TestValidateBadReferences(t *testing.T) {
	p := &Prompt{
		Nodes: map[NodeID]Node{
			"a": {ClassType: "Value", Inputs: map[string]Input{
				"dangling": RefTo("ghost", 0),
				"negative": RefTo("a", -1),
			}},
		},
		Outputs: []NodeID{"a"},
	}
	issues := validationIssues(t, p, nil)
	if !hasIssue(issues, IssueBadReference, "a") {
		t.Errorf("expected bad_reference issues, got %v", issues)
	}
	if len(issues) < 2 {
		t.Errorf("expected both bad references reported, got %v", issues)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	p := &Prompt{
		Nodes: map[NodeID]Node{
			"a": {ClassType: "Add", Inputs: map[string]Input{"x": RefTo("b", 0)}},
			"b": {ClassType: "Add", Inputs: map[string]Input{"x": RefTo("a", 0)}},
			"c": {ClassType: "Value", Inputs: map[string]Input{"value": Lit(1.0)}},
		},
		Outputs: []NodeID{"b", "c"},
	}
	issues := validationIssues(t, p, nil)
	if !hasIssue(issues, IssueCycle, "a") || !hasIssue(issues, IssueCycle, "b") {
		t.Errorf("expected cycle issues for a and b, got %v", issues)
	}
	if hasIssue(issues, IssueCycle, "c") {
		t.Error("acyclic node c must not be reported as cyclic")
	}
}

func TestValidateIgnoresCycleOutsideNeededSet(t *testing.T) {
	// The cycle exists but is not required by any requested output.
	p := &Prompt{
		Nodes: map[NodeID]Node{
			"a": {ClassType: "Add", Inputs: map[string]Input{"x": RefTo("b", 0)}},
			"b": {ClassType: "Add", Inputs: map[string]Input{"x": RefTo("a", 0)}},
			"c": {ClassType: "Value", Inputs: map[string]Input{"value": Lit(1.0)}},
		},
		Outputs: []NodeID{"c"},
	}
	if err := p.Validate(nil); err != nil {
		t.Errorf("cycle outside the needed set should not reject the prompt: %v", err)
	}
}

func TestUnusedNodes(t *testing.T) {
	p := &Prompt{
		Nodes: map[NodeID]Node{
			"a":      {ClassType: "Value", Inputs: map[string]Input{"value": Lit(1.0)}},
			"b":      {ClassType: "Add", Inputs: map[string]Input{"x": RefTo("a", 0)}},
			"orphan": {ClassType: "Value", Inputs: map[string]Input{"value": Lit(2.0)}},
		},
		Outputs: []NodeID{"b"},
	}
	unused := p.UnusedNodes()
	if len(unused) != 1 || unused[0] != "orphan" {
		t.Errorf("expected [orphan], got %v", unused)
	}
}
