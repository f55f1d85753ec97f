package graph

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestInputJSONDecoding(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantRef *OutputRef
		wantLit any
	}{
		{
			name:    "output reference",
			raw:     `["upstream", 1]`,
			wantRef: &OutputRef{Node: "upstream", Slot: 1},
		},
		{
			name:    "number literal",
			raw:     `5`,
			wantLit: 5.0,
		},
		{
			name:    "string literal",
			raw:     `"hello"`,
			wantLit: "hello",
		},
		{
			name:    "two-number array stays literal",
			raw:     `[1, 2]`,
			wantLit: []any{1.0, 2.0},
		},
		{
			name:    "three-element array stays literal",
			raw:     `["a", 1, 2]`,
			wantLit: []any{"a", 1.0, 2.0},
		},
		{
			name:    "object literal",
			raw:     `{"k": "v"}`,
			wantLit: map[string]any{"k": "v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in Input
			if err := json.Unmarshal([]byte(tt.raw), &in); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}

			if tt.wantRef != nil {
				if in.Ref == nil {
					t.Fatalf("expected a reference, got literal %v", in.Literal)
				}
				if *in.Ref != *tt.wantRef {
					t.Errorf("expected ref %+v, got %+v", *tt.wantRef, *in.Ref)
				}
				return
			}

			if in.Ref != nil {
				t.Fatalf("expected a literal, got ref %+v", *in.Ref)
			}
			got, _ := json.Marshal(in.Literal)
			want, _ := json.Marshal(tt.wantLit)
			if string(got) != string(want) {
				t.Errorf("expected literal %s, got %s", want, got)
			}
		})
	}
}

func TestInputJSONRoundTripRef(t *testing.T) {
	in := RefTo("up", 2)
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `["up",2]` {
		t.Errorf(`expected ["up",2], got %s`, data)
	}

	var back Input
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Ref == nil || back.Ref.Node != "up" || back.Ref.Slot != 2 {
		t.Errorf("round trip lost the reference: %+v", back)
	}
}

func TestNodeDecoding(t *testing.T) {
	raw := `{"class_type": "Add", "inputs": {"a": ["x", 0], "b": 3}}`
	var n Node
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if n.ClassType != "Add" {
		t.Errorf("expected class Add, got %q", n.ClassType)
	}
	if !n.Inputs["a"].IsRef() {
		t.Error("input a should be a reference")
	}
	if n.Inputs["b"].IsRef() || n.Inputs["b"].Literal != 3.0 {
		t.Errorf("input b should be the literal 3, got %+v", n.Inputs["b"])
	}
}

func TestNodeError(t *testing.T) {
	cause := errors.New("root cause")
	ne := &NodeError{NodeID: "n1", ClassType: "Add", Code: "execution", Message: "boom", Cause: cause}

	if !errors.Is(ne, cause) {
		t.Error("NodeError should unwrap to its cause")
	}

	var target *NodeError
	wrapped := errors.Join(ne)
	if !errors.As(wrapped, &target) {
		t.Error("NodeError should be extractable with errors.As")
	}
	if target.NodeID != "n1" {
		t.Errorf("expected node n1, got %q", target.NodeID)
	}
}
