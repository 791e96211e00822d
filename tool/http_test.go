package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTool_GET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	args, _ := json.Marshal(map[string]interface{}{"url": srv.URL})
	out, err := tool.Run(context.Background(), args, ToolContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	_ = json.Unmarshal(out, &decoded)
	if decoded["status_code"] != float64(http.StatusOK) {
		t.Errorf("expected status 200, got %v", decoded["status_code"])
	}
	if decoded["body"] != "ok" {
		t.Errorf("expected body 'ok', got %v", decoded["body"])
	}
}

func TestHTTPTool_POSTWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	args, _ := json.Marshal(map[string]interface{}{"url": srv.URL, "method": "post", "body": "payload"})
	out, err := tool.Run(context.Background(), args, ToolContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	_ = json.Unmarshal(out, &decoded)
	if decoded["status_code"] != float64(http.StatusCreated) {
		t.Errorf("expected status 201, got %v", decoded["status_code"])
	}
}

func TestHTTPTool_MissingURL(t *testing.T) {
	tool := NewHTTPTool()
	args, _ := json.Marshal(map[string]interface{}{})

	_, err := tool.Run(context.Background(), args, ToolContext{})
	var de *DispatchError
	if !errors.As(err, &de) || de.Kind != InvalidArgs {
		t.Fatalf("expected InvalidArgs, got %v", err)
	}
}

func TestHTTPTool_UnsupportedMethod(t *testing.T) {
	tool := NewHTTPTool()
	args, _ := json.Marshal(map[string]interface{}{"url": "http://example.com", "method": "DELETE"})

	_, err := tool.Run(context.Background(), args, ToolContext{})
	var de *DispatchError
	if !errors.As(err, &de) || de.Kind != InvalidArgs {
		t.Fatalf("expected InvalidArgs for unsupported method, got %v", err)
	}
}
