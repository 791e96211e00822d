// Package llm abstracts chat-completion providers behind a single
// interface so agent runtimes, examples, and tests can swap Anthropic,
// OpenAI, Google, or a mock without touching call sites.
package llm

import "context"

// ChatModel is the interface every provider adapter implements.
//
// Implementations are expected to translate Message/ToolSpec into their
// provider's wire format, respect ctx cancellation, and surface
// provider errors unwrapped so callers can use errors.As against
// provider-specific types when they need to.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn in a conversation. ToolCallID is only meaningful
// on a RoleTool message: it must match the ID of the ToolCall this
// message answers, so providers that require strict call/result
// pairing (Anthropic, OpenAI) can reconstruct the association.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleTool carries a tool's output back to the model, paired to the
	// originating ToolCall by ToolCallID.
	RoleTool = "tool"
)

// ToolSpec describes a tool the model may call, in JSON Schema.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ChatOut is a model's response: freeform text, requested tool calls,
// or both, plus the token usage the provider reported for the call so
// callers can attribute cost. InputTokens/OutputTokens are zero for
// providers or mocks that don't report usage.
type ChatOut struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// ToolCall is a single invocation the model is requesting. ID is the
// provider's call identifier (Anthropic's tool_use id, OpenAI's
// tool_call id); it must be echoed back on the corresponding tool
// result message so the provider can pair request and response in a
// multi-tool-call turn.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}
