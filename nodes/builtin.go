package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nodeflow/nodeflow/graph"
)

// Builtin class types.
const (
	ClassValue     = "Value"
	ClassAdd       = "Add"
	ClassConcat    = "Concat"
	ClassUppercase = "Uppercase"
	ClassDelay     = "Delay"
	ClassShout     = "Shout"
	ClassFail      = "Fail"
)

func registerBuiltins(r *Registry) {
	r.Register(ClassValue, graph.BackendFunc(execValue))
	r.Register(ClassAdd, graph.BackendFunc(execAdd))
	r.Register(ClassConcat, graph.BackendFunc(execConcat))
	r.Register(ClassUppercase, graph.BackendFunc(execUppercase))
	r.Register(ClassDelay, graph.BackendFunc(execDelay))
	r.Register(ClassShout, graph.BackendFunc(execShout))
	r.Register(ClassFail, graph.BackendFunc(execFail))
	r.Register(ClassHTTPRequest, NewHTTPBackend(nil))
}

// execValue passes its "value" input through as output slot 0.
func execValue(_ context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	v, ok := req.Inputs["value"]
	if !ok {
		return nil, errors.New("missing input: value")
	}
	return &graph.ExecResult{Output: graph.Output{v}}, nil
}

// execAdd sums its numeric "a" and "b" inputs.
func execAdd(_ context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	a, err := numberInput(req, "a")
	if err != nil {
		return nil, err
	}
	b, err := numberInput(req, "b")
	if err != nil {
		return nil, err
	}
	return &graph.ExecResult{Output: graph.Output{a + b}}, nil
}

// execConcat joins its string "a" and "b" inputs, with an optional "sep".
func execConcat(_ context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	a, err := stringInput(req, "a")
	if err != nil {
		return nil, err
	}
	b, err := stringInput(req, "b")
	if err != nil {
		return nil, err
	}
	sep := ""
	if raw, ok := req.Inputs["sep"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("input %q: expected string, got %T", "sep", raw)
		}
		sep = s
	}
	return &graph.ExecResult{Output: graph.Output{a + sep + b}}, nil
}

// execUppercase uppercases its string "text" input.
func execUppercase(_ context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	text, err := stringInput(req, "text")
	if err != nil {
		return nil, err
	}
	return &graph.ExecResult{Output: graph.Output{strings.ToUpper(text)}}, nil
}

// execDelay completes asynchronously after "delay_ms" milliseconds, passing
// its "value" input through. The scheduler keeps executing other ready nodes
// while the delay runs.
func execDelay(ctx context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	v, ok := req.Inputs["value"]
	if !ok {
		return nil, errors.New("missing input: value")
	}
	ms, err := numberInput(req, "delay_ms")
	if err != nil {
		return nil, err
	}
	if ms < 0 {
		return nil, fmt.Errorf("input %q: must be non-negative, got %v", "delay_ms", ms)
	}

	done := make(chan graph.AsyncCompletion, 1)
	go func() {
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
			done <- graph.AsyncCompletion{Output: graph.Output{v}}
		case <-ctx.Done():
			done <- graph.AsyncCompletion{Err: ctx.Err()}
		}
	}()
	return &graph.ExecResult{Async: done}, nil
}

// execShout expands into a two-node subgraph: Concat over the resolved "a"
// and "b" inputs, then Uppercase over the concatenation. Its single output
// slot maps to the injected Uppercase node's output.
func execShout(_ context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	a, err := stringInput(req, "a")
	if err != nil {
		return nil, err
	}
	b, err := stringInput(req, "b")
	if err != nil {
		return nil, err
	}

	return &graph.ExecResult{
		Expand: &graph.Expansion{
			Nodes: map[graph.NodeID]graph.Node{
				"joined": {
					ClassType: ClassConcat,
					Inputs: map[string]graph.Input{
						"a":   graph.Lit(a),
						"b":   graph.Lit(b),
						"sep": graph.Lit(" "),
					},
				},
				"loud": {
					ClassType: ClassUppercase,
					Inputs: map[string]graph.Input{
						"text": graph.RefTo("joined", 0),
					},
				},
			},
			Result: []graph.OutputRef{{Node: "loud", Slot: 0}},
		},
	}, nil
}

// execFail always fails with its "message" input. Useful for exercising
// error paths in workflows and tests.
func execFail(_ context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	msg := "node failed"
	if raw, ok := req.Inputs["message"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			msg = s
		}
	}
	return nil, errors.New(msg)
}

func numberInput(req graph.ExecRequest, field string) (float64, error) {
	raw, ok := req.Inputs[field]
	if !ok {
		return 0, fmt.Errorf("missing input: %s", field)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("input %q: expected number, got %T", field, raw)
	}
}

func stringInput(req graph.ExecRequest, field string) (string, error) {
	raw, ok := req.Inputs[field]
	if !ok {
		return "", fmt.Errorf("missing input: %s", field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("input %q: expected string, got %T", field, raw)
	}
	return s, nil
}
