package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/nodeflow/nodeflow/graph"
)

// mockClient implements generator for testing without API calls.
type mockClient struct {
	text      string
	err       error
	lastModel string
	lastTemp  *float32
}

func (m *mockClient) generateText(_ context.Context, model, _ string, temperature *float32) (string, error) {
	m.lastModel = model
	m.lastTemp = temperature
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
	mock := &mockClient{text: "generated"}
	b := &Backend{modelName: DefaultModel, client: mock}

	res, err := b.Execute(context.Background(), request(map[string]any{"prompt": "hi"}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Output[0] != "generated" {
		t.Errorf("expected generated text, got %v", res.Output[0])
	}
	if mock.lastModel != DefaultModel {
		t.Errorf("expected default model, got %q", mock.lastModel)
	}
}

func TestExecuteModelAndTemperatureOverride(t *testing.T) {
	mock := &mockClient{text: "ok"}
	b := &Backend{modelName: DefaultModel, client: mock}

	_, err := b.Execute(context.Background(), request(map[string]any{
		"prompt":      "hi",
		"model":       "gemini-2.5-pro",
		"temperature": 0.2,
	}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if mock.lastModel != "gemini-2.5-pro" {
		t.Errorf("expected model override, got %q", mock.lastModel)
	}
	if mock.lastTemp == nil || *mock.lastTemp != float32(0.2) {
		t.Errorf("expected temperature 0.2, got %v", mock.lastTemp)
	}
}

func TestExecuteMissingPrompt(t *testing.T) {
	b := &Backend{modelName: DefaultModel, client: &mockClient{}}
	if _, err := b.Execute(context.Background(), request(nil)); err == nil {
		t.Error("expected error for missing prompt")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"auth", &googleapi.Error{Code: 401, Message: "bad key"}, "auth"},
		{"forbidden", &googleapi.Error{Code: 403, Message: "denied"}, "auth"},
		{"quota", &googleapi.Error{Code: 429, Message: "slow down"}, "quota"},
		{"transient", &googleapi.Error{Code: 503, Message: "overloaded"}, "transient"},
		{"generic", errors.New("boom"), "api"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Backend{modelName: DefaultModel, client: &mockClient{err: tt.err}}
			_, err := b.Execute(context.Background(), request(map[string]any{"prompt": "hi"}))
			if err == nil {
				t.Fatal("expected error")
			}

			var ne *graph.NodeError
			if !errors.As(err, &ne) {
				t.Fatalf("expected *graph.NodeError, got %T", err)
			}
			if ne.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, ne.Code)
			}
			if ne.NodeID != "gen" || ne.ClassType != ClassType {
				t.Errorf("error should name the node: %+v", ne)
			}
		})
	}
}
