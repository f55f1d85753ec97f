package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/nodeflow/nodeflow/graph"
)

func execClass(t *testing.T, class string, inputs map[string]any) (*graph.ExecResult, error) {
	t.Helper()

	r := Builtin()
	backend, ok := r.Resolve(class)
	if !ok {
		t.Fatalf("builtin class %q not registered", class)
	}
	return backend.Execute(context.Background(), graph.ExecRequest{
		RunID:     "run-test",
		NodeID:    "n1",
		ClassType: class,
		Inputs:    inputs,
	})
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Resolve(ClassValue); ok {
		t.Error("empty registry should not resolve any class")
	}

	r.Register(ClassValue, graph.BackendFunc(execValue))
	if _, ok := r.Resolve(ClassValue); !ok {
		t.Error("registered class should resolve")
	}

	types := r.ClassTypes()
	if len(types) != 1 || types[0] != ClassValue {
		t.Errorf("expected [%s], got %v", ClassValue, types)
	}
}

func TestValueNode(t *testing.T) {
	t.Run("passes value through", func(t *testing.T) {
		res, err := execClass(t, ClassValue, map[string]any{"value": "hello"})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if len(res.Output) != 1 || res.Output[0] != "hello" {
			t.Errorf("expected [hello], got %v", res.Output)
		}
	})

	t.Run("missing value fails", func(t *testing.T) {
		if _, err := execClass(t, ClassValue, nil); err == nil {
			t.Error("expected error for missing value input")
		}
	})
}

func TestAddNode(t *testing.T) {
	res, err := execClass(t, ClassAdd, map[string]any{"a": 2.5, "b": 4.0})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Output[0] != 6.5 {
		t.Errorf("expected 6.5, got %v", res.Output[0])
	}

	if _, err := execClass(t, ClassAdd, map[string]any{"a": "x", "b": 1.0}); err == nil {
		t.Error("expected error for non-numeric input")
	}
}

func TestConcatNode(t *testing.T) {
	t.Run("without separator", func(t *testing.T) {
		res, err := execClass(t, ClassConcat, map[string]any{"a": "foo", "b": "bar"})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if res.Output[0] != "foobar" {
			t.Errorf("expected foobar, got %v", res.Output[0])
		}
	})

	t.Run("with separator", func(t *testing.T) {
		res, err := execClass(t, ClassConcat, map[string]any{"a": "foo", "b": "bar", "sep": "-"})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if res.Output[0] != "foo-bar" {
			t.Errorf("expected foo-bar, got %v", res.Output[0])
		}
	})
}

func TestUppercaseNode(t *testing.T) {
	res, err := execClass(t, ClassUppercase, map[string]any{"text": "quiet"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Output[0] != "QUIET" {
		t.Errorf("expected QUIET, got %v", res.Output[0])
	}
}

func TestDelayNode(t *testing.T) {
	res, err := execClass(t, ClassDelay, map[string]any{"value": "later", "delay_ms": 5.0})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Async == nil {
		t.Fatal("expected an async result")
	}

	select {
	case comp := <-res.Async:
		if comp.Err != nil {
			t.Fatalf("async completion failed: %v", comp.Err)
		}
		if comp.Output[0] != "later" {
			t.Errorf("expected later, got %v", comp.Output[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async completion never arrived")
	}
}

func TestDelayNodeRejectsNegative(t *testing.T) {
	if _, err := execClass(t, ClassDelay, map[string]any{"value": 1, "delay_ms": -1.0}); err == nil {
		t.Error("expected error for negative delay")
	}
}

func TestShoutNodeExpands(t *testing.T) {
	res, err := execClass(t, ClassShout, map[string]any{"a": "hello", "b": "world"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Expand == nil {
		t.Fatal("expected an expansion result")
	}
	if len(res.Expand.Nodes) != 2 {
		t.Errorf("expected 2 injected nodes, got %d", len(res.Expand.Nodes))
	}
	if len(res.Expand.Result) != 1 {
		t.Fatalf("expected 1 result ref, got %d", len(res.Expand.Result))
	}
	if res.Expand.Result[0].Node != "loud" {
		t.Errorf("result should reference the uppercase node, got %q", res.Expand.Result[0].Node)
	}
}

func TestFailNode(t *testing.T) {
	_, err := execClass(t, ClassFail, map[string]any{"message": "intentional"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "intentional" {
		t.Errorf("expected custom message, got %q", err.Error())
	}
}
