package tool

import (
	"context"
	"encoding/json"
	"sync"
)

// MockTool is a test Tool with scripted responses and call recording,
// used to exercise a Set's dispatch path without running real tool
// logic. Responses are returned in order; once exhausted, the last one
// repeats.
type MockTool struct {
	ToolName        string
	ToolDescription string
	Responses       []map[string]interface{}
	Err             error
	Calls           []MockToolCall

	mu        sync.Mutex
	callIndex int
}

// MockToolCall records a single invocation of Run.
type MockToolCall struct {
	ArgsJSON      []byte
	StepID        string
	CorrelationID string
}

func (m *MockTool) Name() string                            { return m.ToolName }
func (m *MockTool) Description() string                     { return m.ToolDescription }
func (m *MockTool) ArgsSchema() map[string]interface{}       { return nil }
func (m *MockTool) OutputSchema() map[string]interface{}     { return nil }

func (m *MockTool) Run(ctx context.Context, argsJSON []byte, tc ToolContext) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockToolCall{ArgsJSON: argsJSON, StepID: tc.StepID, CorrelationID: tc.CorrelationID})

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return []byte("{}"), nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return json.Marshal(m.Responses[idx])
}

// Reset clears call history and response index for reuse across cases.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns how many times Run has been invoked.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
