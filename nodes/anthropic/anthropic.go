// Package anthropic provides a node backend that generates text with
// Anthropic's messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nodeflow/nodeflow/graph"
	"github.com/nodeflow/nodeflow/nodes"
)

// ClassType is the node class served by this backend.
const ClassType = "AnthropicTextGenerate"

// DefaultModel is used when a node does not supply a "model" input.
const DefaultModel = "claude-sonnet-4-20250514"

const (
	providerName = "anthropic"
	envKey       = "ANTHROPIC_API_KEY"

	maxTokens = 4096
)

// messenger defines the Anthropic API operation used by the backend.
// This allows for easy mocking in tests.
type messenger interface {
	message(ctx context.Context, model, prompt string) (string, error)
}

// Backend implements graph.NodeBackend for Anthropic text generation.
//
// Node inputs:
//   - "prompt" (string, required): the text prompt
//   - "model" (string, optional): model override, defaults to DefaultModel
//
// Output slot 0 carries the generated text. API failures surface with the
// same classified error codes as the gemini package.
type Backend struct {
	modelName string
	client    messenger
}

// NewBackend creates an Anthropic backend. An empty modelName selects
// DefaultModel.
func NewBackend(apiKey, modelName string) *Backend {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Backend{
		modelName: modelName,
		client:    &defaultClient{client: &client, apiKey: apiKey},
	}
}

// RegisterIfConfigured registers the backend on r when an API key is
// configured (ANTHROPIC_API_KEY or the key file). Returns false when no key
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

	text, err := b.client.message(ctx, model, prompt)
	if err != nil {
		return nil, classify(err, req)
	}
	return &graph.ExecResult{Output: graph.Output{text}}, nil
}

// classify maps an Anthropic API error to a *graph.NodeError with a stable
// code.
func classify(err error, req graph.ExecRequest) *graph.NodeError {
	code := "api"

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			code = "auth"
		case apiErr.StatusCode == 429:
			code = "quota"
		case apiErr.StatusCode >= 500 || apiErr.StatusCode == 529:
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

// defaultClient wraps the official anthropic-sdk-go client.
type defaultClient struct {
	client *anthropic.Client
	apiKey string
}

func (c *defaultClient) message(ctx context.Context, model, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("anthropic API key is required")
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var out string
	for _, block := range message.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("no text in Anthropic response")
	}
	return out, nil
}
