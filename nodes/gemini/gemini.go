// Package gemini provides a node backend that generates text with Google's
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nodeflow/nodeflow/graph"
	"github.com/nodeflow/nodeflow/nodes"
)

// ClassType is the node class served by this backend.
const ClassType = "GeminiTextGenerate"

// DefaultModel is used when a node does not supply a "model" input.
const DefaultModel = "gemini-2.5-flash"

const (
	providerName = "gemini"
	envKey       = "GEMINI_API_KEY"
)

// generator defines the Gemini API operation used by the backend.
// This allows for easy mocking in tests.
type generator interface {
	generateText(ctx context.Context, model, prompt string, temperature *float32) (string, error)
}

// Backend implements graph.NodeBackend for Gemini text generation.
//
// Node inputs:
//   - "prompt" (string, required): the text prompt
//   - "model" (string, optional): model override, defaults to DefaultModel
//   - "temperature" (number, optional): sampling temperature
//
// Output slot 0 carries the generated text.
//
// API failures surface with a classified error code: "auth" for credential
// problems, "quota" for rate limits, "safety" for blocked content,
// "transient" for server-side errors worth retrying, "api" otherwise.
type Backend struct {
	modelName string
	client    generator
}

// NewBackend creates a Gemini backend. An empty modelName selects
// DefaultModel.
func NewBackend(apiKey, modelName string) *Backend {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Backend{
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey},
	}
}

// RegisterIfConfigured registers the backend on r when an API key is
// configured (GEMINI_API_KEY or the key file). Returns false when no key
// is available.
func RegisterIfConfigured(r *nodes.Registry) (bool, error) {
	key, err := nodes.ResolveAPIKey(providerName, envKey)
	if err != nil {
		return false, err
	}
	if key == "" {
		return false, nil
	}
	r.Register(ClassType, NewBackend(key, ""))
	return true, nil
}

// Execute implements graph.NodeBackend.
func (b *Backend) Execute(ctx context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	prompt, ok := req.Inputs["prompt"].(string)
	if !ok || prompt == "" {
		return nil, errors.New("missing input: prompt")
	}

	model := b.modelName
	if override, ok := req.Inputs["model"].(string); ok && override != "" {
		model = override
	}

	var temperature *float32
	if raw, ok := req.Inputs["temperature"]; ok {
		t, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("input %q: expected number, got %T", "temperature", raw)
		}
		t32 := float32(t)
		temperature = &t32
	}

	text, err := b.client.generateText(ctx, model, prompt, temperature)
	if err != nil {
		return nil, classify(err, req)
	}
	return &graph.ExecResult{Output: graph.Output{text}}, nil
}

// classify maps a Gemini API error to a *graph.NodeError with a stable code.
func classify(err error, req graph.ExecRequest) *graph.NodeError {
	code := "api"

	var blocked *genai.BlockedError
	var gerr *googleapi.Error
	switch {
	case errors.As(err, &blocked):
		code = "safety"
	case errors.As(err, &gerr):
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			code = "auth"
		case gerr.Code == 429:
			code = "quota"
		case gerr.Code >= 500:
			code = "transient"
		}
	}

	return &graph.NodeError{
		NodeID:    req.NodeID,
		ClassType: req.ClassType,
		Code:      code,
		Message:   err.Error(),
		Cause:     err,
	}
}

// defaultClient wraps the official Google Gemini SDK client.
type defaultClient struct {
	apiKey string
}

func (c *defaultClient) generateText(ctx context.Context, model, prompt string, temperature *float32) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(model)
	if temperature != nil {
		genModel.SetTemperature(*temperature)
	}

	resp, err := genModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return collectText(resp), nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out
}
