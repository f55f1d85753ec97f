package nodes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nodeflow/nodeflow/graph"
)

// ClassHTTPRequest fetches a URL as part of a workflow.
const ClassHTTPRequest = "HTTPRequest"

// HTTPBackend executes HTTPRequest nodes.
//
// Inputs:
//   - url: target URL (required)
//   - method: "GET" or "POST", defaults to "GET"
//   - headers: optional map of request headers
//   - body: optional request body string (for POST)
//
// Output slots:
//   - 0: response body as string
//   - 1: status code
//   - 2: response headers as a map
//
// The response body is capped at 8 MiB so a misbehaving endpoint cannot
// exhaust memory mid-run.
type HTTPBackend struct {
	client *http.Client
}

const maxResponseBody = 8 << 20

// NewHTTPBackend creates an HTTPRequest backend using client, or a default
// client with a 30s timeout when nil.
func NewHTTPBackend(client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPBackend{client: client}
}

// Execute implements graph.NodeBackend.
func (h *HTTPBackend) Execute(ctx context.Context, req graph.ExecRequest) (*graph.ExecResult, error) {
	url, err := stringInput(req, "url")
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if raw, ok := req.Inputs["method"]; ok {
		m, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("input %q: expected string, got %T", "method", raw)
		}
		method = strings.ToUpper(m)
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported HTTP method %q", method)
	}

	var body io.Reader
	if raw, ok := req.Inputs["body"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("input %q: expected string, got %T", "body", raw)
		}
		if s != "" {
			body = bytes.NewBufferString(s)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if headers, ok := req.Inputs["headers"].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				httpReq.Header.Set(key, s)
			}
		}
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	return &graph.ExecResult{
		Output: graph.Output{string(respBody), resp.StatusCode, respHeaders},
	}, nil
}
