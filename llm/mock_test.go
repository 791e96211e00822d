package llm

import (
	"context"
	"errors"
	"testing"
)

func TestMock_SingleResponse(t *testing.T) {
	mock := &Mock{Responses: []ChatOut{{Text: "Hello, world!"}}}
	out, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Text != "Hello, world!" {
		t.Errorf("expected Text = 'Hello, world!', got %q", out.Text)
	}
}

func TestMock_RepeatsLastResponseWhenExhausted(t *testing.T) {
	mock := &Mock{Responses: []ChatOut{{Text: "First"}, {Text: "Second"}}}
	messages := []Message{{Role: RoleUser, Content: "Test"}}

	for _, want := range []string{"First", "Second", "Second", "Second"} {
		out, err := mock.Chat(context.Background(), messages, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Text != want {
			t.Errorf("expected %q, got %q", want, out.Text)
		}
	}
}

func TestMock_ErrorTakesPrecedenceOverResponses(t *testing.T) {
	wantErr := errors.New("simulated API error")
	mock := &Mock{Err: wantErr, Responses: []ChatOut{{Text: "should not be returned"}}}

	_, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Test"}}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected the failing call to still be recorded, got %d", mock.CallCount())
	}
}

func TestMock_RecordsCallHistory(t *testing.T) {
	mock := &Mock{Responses: []ChatOut{{Text: "OK"}}}
	tools := []ToolSpec{{Name: "search", Description: "Search"}}

	_, _ = mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "First"}}, nil)
	_, _ = mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Second"}}, tools)

	if len(mock.Calls) != 2 {
		t.Fatalf("expected 2 calls recorded, got %d", len(mock.Calls))
	}
	if mock.Calls[0].Tools != nil {
		t.Errorf("call 0: expected nil tools, got %v", mock.Calls[0].Tools)
	}
	if len(mock.Calls[1].Tools) != 1 {
		t.Errorf("call 1: expected 1 tool, got %d", len(mock.Calls[1].Tools))
	}
}

func TestMock_Reset(t *testing.T) {
	mock := &Mock{Responses: []ChatOut{{Text: "First"}, {Text: "Second"}}}
	messages := []Message{{Role: RoleUser, Content: "Test"}}

	_, _ = mock.Chat(context.Background(), messages, nil)
	mock.Reset()

	if mock.CallCount() != 0 {
		t.Errorf("expected 0 calls after reset, got %d", mock.CallCount())
	}
	out, _ := mock.Chat(context.Background(), messages, nil)
	if out.Text != "First" {
		t.Errorf("expected 'First' after reset, got %q", out.Text)
	}
}

func TestMock_ToolCallsAndTextCoexist(t *testing.T) {
	mock := &Mock{Responses: []ChatOut{{
		Text:      "Let me search for that.",
		ToolCalls: []ToolCall{{ID: "call_1", Name: "search", Input: map[string]interface{}{"query": "test"}}},
	}}}

	out, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Find test"}}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Text == "" || len(out.ToolCalls) != 1 {
		t.Fatalf("expected both text and a tool call, got %+v", out)
	}
	if out.ToolCalls[0].ID != "call_1" {
		t.Errorf("expected call id to round-trip, got %q", out.ToolCalls[0].ID)
	}
}

func TestMock_ConcurrentCallsAreSafe(t *testing.T) {
	mock := &Mock{Responses: []ChatOut{{Text: "OK"}}}
	messages := []Message{{Role: RoleUser, Content: "Test"}}

	const goroutines = 10
	done := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			_, _ = mock.Chat(context.Background(), messages, nil)
			done <- true
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}
	if mock.CallCount() != goroutines {
		t.Errorf("expected %d calls, got %d", goroutines, mock.CallCount())
	}
}
