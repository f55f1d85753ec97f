package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/nodeflow/nodeflow/graph"
)

// mockClient implements messenger for testing without API calls.
type mockClient struct {
	text      string
	err       error
	lastModel string
}

func (m *mockClient) message(_ context.Context, model, _ string) (string, error) {
	m.lastModel = model
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func request(inputs map[string]any) graph.ExecRequest {
	return graph.ExecRequest{
		RunID:     "run-1",
		NodeID:    "gen",
		ClassType: ClassType,
		Inputs:    inputs,
	}
}

func TestExecuteGeneratesText(t *testing.T) {
	mock := &mockClient{text: "reply"}
	b := &Backend{modelName: DefaultModel, client: mock}

	res, err := b.Execute(context.Background(), request(map[string]any{"prompt": "hi"}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Output[0] != "reply" {
		t.Errorf("expected reply text, got %v", res.Output[0])
	}
	if mock.lastModel != DefaultModel {
		t.Errorf("expected default model, got %q", mock.lastModel)
	}
}

func TestExecuteModelOverride(t *testing.T) {
	mock := &mockClient{text: "ok"}
	b := &Backend{modelName: DefaultModel, client: mock}

	_, err := b.Execute(context.Background(), request(map[string]any{
		"prompt": "hi",
		"model":  "claude-opus-4-20250514",
	}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if mock.lastModel != "claude-opus-4-20250514" {
		t.Errorf("expected model override, got %q", mock.lastModel)
	}
}

func TestExecuteMissingPrompt(t *testing.T) {
	b := &Backend{modelName: DefaultModel, client: &mockClient{}}
	if _, err := b.Execute(context.Background(), request(nil)); err == nil {
		t.Error("expected error for missing prompt")
	}
}

func TestAPIErrorBecomesNodeError(t *testing.T) {
	b := &Backend{modelName: DefaultModel, client: &mockClient{err: errors.New("boom")}}
	_, err := b.Execute(context.Background(), request(map[string]any{"prompt": "hi"}))
	if err == nil {
		t.Fatal("expected error")
	}

	var ne *graph.NodeError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *graph.NodeError, got %T", err)
	}
	if ne.Code != "api" {
		t.Errorf("expected code api, got %q", ne.Code)
	}
	if ne.NodeID != "gen" || ne.ClassType != ClassType {
		t.Errorf("error should name the node: %+v", ne)
	}
}
