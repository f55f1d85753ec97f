// Package openai provides a node backend that generates text with OpenAI's
// chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/nodeflow/nodeflow/graph"
	"github.com/nodeflow/nodeflow/nodes"
)

// ClassType is the node class served by this backend.
const ClassType = "OpenAITextGenerate"

// DefaultModel is used when a node does not supply a "model" input.
const DefaultModel = "gpt-4o-mini"

const (
	providerName = "openai"
	envKey       = "OPENAI_API_KEY"
)

// completer defines the OpenAI API operation used by the backend.
// This allows for easy mocking in tests.
type completer interface {
	complete(ctx context.Context, model, prompt string) (string, error)
}

// Backend implements graph.NodeBackend for OpenAI text generation.
//
// Node inputs:
//   - "prompt" (string, required): the text prompt
//   - "model" (string, optional): model override, defaults to DefaultModel
//
// Output slot 0 carries the generated text. API failures surface with the
// same classified error codes as the gemini package.
type Backend struct {
	modelName string
	client    completer
}

// NewBackend creates an OpenAI backend. An empty modelName selects
// DefaultModel.
func NewBackend(apiKey, modelName string) *Backend {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Backend{
		modelName: modelName,
		client:    &defaultClient{client: &client, apiKey: apiKey},
	}
}

// RegisterIfConfigured registers the backend on r when an API key is
// configured (OPENAI_API_KEY or the key file). Returns false when no key
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

	text, err := b.client.complete(ctx, model, prompt)
	if err != nil {
		return nil, classify(err, req)
	}
	return &graph.ExecResult{Output: graph.Output{text}}, nil
}

// classify maps an OpenAI API error to a *graph.NodeError with a stable
// code.
func classify(err error, req graph.ExecRequest) *graph.NodeError {
	code := "api"

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			code = "auth"
		case apiErr.StatusCode == 429:
			code = "quota"
		case apiErr.StatusCode >= 500:
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

// defaultClient wraps the official openai-go SDK client.
type defaultClient struct {
	client *openai.Client
	apiKey string
}

func (c *defaultClient) complete(ctx context.Context, model, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("openai API key is required")
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI API")
	}
	return completion.Choices[0].Message.Content, nil
}
