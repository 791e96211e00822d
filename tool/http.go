package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPTool issues GET/POST requests and returns status, headers, and
// body as JSON. Registered under the name "http_request".
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool returns an HTTPTool using context-scoped timeouts rather
// than a client-level one.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{client: &http.Client{}}
}

func (h *HTTPTool) Name() string        { return "http_request" }
func (h *HTTPTool) Description() string { return "Makes an HTTP GET or POST request and returns the response" }

func (h *HTTPTool) ArgsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"method":  map[string]interface{}{"type": "string", "description": "GET or POST, defaults to GET"},
			"url":     map[string]interface{}{"type": "string", "description": "target URL"},
			"headers": map[string]interface{}{"type": "object", "description": "optional request headers"},
			"body":    map[string]interface{}{"type": "string", "description": "optional request body for POST"},
		},
		"required": []string{"url"},
	}
}

func (h *HTTPTool) OutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"status_code": map[string]interface{}{"type": "integer"},
			"headers":     map[string]interface{}{"type": "object"},
			"body":        map[string]interface{}{"type": "string"},
		},
	}
}

type httpArgs struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Run implements Tool.
func (h *HTTPTool) Run(ctx context.Context, argsJSON []byte, _ ToolContext) ([]byte, error) {
	var args httpArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return nil, &DispatchError{Kind: InvalidArgs, Reason: err.Error(), Cause: err}
	}
	if strings.TrimSpace(args.URL) == "" {
		return nil, &DispatchError{Kind: InvalidArgs, Reason: "url is required"}
	}

	method := strings.ToUpper(args.Method)
	if method == "" {
		method = "GET"
	}
	if method != "GET" && method != "POST" {
		return nil, &DispatchError{Kind: InvalidArgs, Reason: fmt.Sprintf("unsupported method: %s", method)}
	}

	var body io.Reader
	if args.Body != "" {
		body = bytes.NewBufferString(args.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, args.URL, body)
	if err != nil {
		return nil, fmt.Errorf("http_request: build request: %w", err)
	}
	for key, value := range args.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http_request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http_request: read response: %w", err)
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	return json.Marshal(map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	})
}
