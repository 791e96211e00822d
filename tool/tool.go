// Package tool implements the registry and dispatch contract that lets
// an agent runtime invoke named, schema-described side effects. A Tool
// is registered once under a unique name in a Set; at dispatch time a
// ToolCallEnvelope is resolved against that registry and run with a
// ToolContext carrying correlation/cancellation metadata.
package tool

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kestrelai/agentgraph/llm"
)

// Tool is the executable unit a Set registers and dispatches by name.
// Implementations receive and return raw JSON so the registry never
// needs to know a tool's concrete Args/Output types; see Typed for a
// generic helper that does know them.
type Tool interface {
	Name() string
	Description() string
	ArgsSchema() map[string]interface{}
	OutputSchema() map[string]interface{}
	Run(ctx context.Context, argsJSON []byte, tc ToolContext) ([]byte, error)
}

// ToolContext carries per-dispatch metadata a tool may need: the
// correlation id of the enclosing run, the agent's logical step id,
// and a cancellation channel to select on during long-running work.
type ToolContext struct {
	CorrelationID string
	StepID        string
	Cancellation  <-chan struct{}
}

// ToolCallEnvelope is the wire shape a dispatch request arrives in.
type ToolCallEnvelope struct {
	Name     string
	ArgsJSON []byte
	CallID   string
}

// RegistrationErrorKind enumerates why Set.Register rejected a tool.
type RegistrationErrorKind string

const (
	EmptyName     RegistrationErrorKind = "empty_name"
	DuplicateName RegistrationErrorKind = "duplicate_name"
)

// RegistrationError reports a Set.Register failure.
type RegistrationError struct {
	Kind RegistrationErrorKind
	Name string
}

func (e *RegistrationError) Error() string {
	switch e.Kind {
	case EmptyName:
		return "tool: name must not be empty"
	case DuplicateName:
		return "tool: name already registered: " + e.Name
	default:
		return "tool: registration error"
	}
}

// DispatchErrorKind enumerates the dispatch-time failure taxonomy.
type DispatchErrorKind string

const (
	UnknownTool     DispatchErrorKind = "unknown_tool"
	InvalidArgs     DispatchErrorKind = "invalid_args"
	ExecutionFailed DispatchErrorKind = "execution_failed"
	Cancelled       DispatchErrorKind = "cancelled"
)

// DispatchError reports why Set.Dispatch failed to produce an output.
// Name and CallID are always stamped from the envelope, regardless of
// which layer (the registry itself, or the tool's own Run) raised it.
type DispatchError struct {
	Kind   DispatchErrorKind
	Name   string
	CallID string
	Reason string
	Cause  error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case UnknownTool:
		return "tool: unknown tool: " + e.Name
	case InvalidArgs:
		return "tool: invalid args for " + e.Name + ": " + e.Reason
	case Cancelled:
		return "tool: dispatch cancelled: " + e.Name
	default:
		if e.Cause != nil {
			return "tool: " + e.Name + ": " + e.Cause.Error()
		}
		return "tool: execution failed: " + e.Name
	}
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// CatalogEntry describes one registered tool, as surfaced to a model
// or to an inspection/debugging caller.
type CatalogEntry struct {
	Name         string
	Description  string
	ArgsSchema   map[string]interface{}
	OutputSchema map[string]interface{}
}

// Dispatcher is the narrow interface an agent runtime depends on to
// invoke a tool call. *Set satisfies it; callers that only need
// dispatch (not registration) should depend on this instead of the
// concrete type.
type Dispatcher interface {
	Dispatch(ctx context.Context, envelope ToolCallEnvelope, tc ToolContext) ([]byte, error)
}

// Set is a name-keyed tool registry with dispatch.
type Set struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewSet returns an empty registry.
func NewSet() *Set {
	return &Set{tools: make(map[string]Tool)}
}

// Register adds t under its own name. EmptyName rejects a blank or
// whitespace-only name; DuplicateName rejects re-registering a name
// already present.
func (s *Set) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return &RegistrationError{Kind: EmptyName}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tools == nil {
		s.tools = make(map[string]Tool)
	}
	if _, exists := s.tools[name]; exists {
		return &RegistrationError{Kind: DuplicateName, Name: name}
	}
	s.tools[name] = t
	s.order = append(s.order, name)
	return nil
}

// Catalog lists every registered tool's name/description/schemas, in
// registration order.
func (s *Set) Catalog() []CatalogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CatalogEntry, 0, len(s.order))
	for _, name := range s.order {
		t := s.tools[name]
		out = append(out, CatalogEntry{
			Name:         name,
			Description:  t.Description(),
			ArgsSchema:   t.ArgsSchema(),
			OutputSchema: t.OutputSchema(),
		})
	}
	return out
}

// ChatTools projects the catalog into the llm.ToolSpec shape a
// ChatModel accepts, so a Set can be passed straight through to Chat.
func (s *Set) ChatTools() []llm.ToolSpec {
	entries := s.Catalog()
	specs := make([]llm.ToolSpec, len(entries))
	for i, e := range entries {
		specs[i] = llm.ToolSpec{Name: e.Name, Description: e.Description, Schema: e.ArgsSchema}
	}
	return specs
}

// Dispatch resolves envelope.Name against the registry and runs it.
// Cancellation is checked both before dispatch and after the tool
// returns, since a tool may finish just as its context was canceled.
func (s *Set) Dispatch(ctx context.Context, envelope ToolCallEnvelope, tc ToolContext) ([]byte, error) {
	if isCancelled(ctx, tc.Cancellation) {
		return nil, &DispatchError{Kind: Cancelled, Name: envelope.Name, CallID: envelope.CallID}
	}

	s.mu.RLock()
	t, ok := s.tools[envelope.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, &DispatchError{Kind: UnknownTool, Name: envelope.Name, CallID: envelope.CallID}
	}

	out, err := t.Run(ctx, envelope.ArgsJSON, tc)
	if err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			de.Name = envelope.Name
			de.CallID = envelope.CallID
			return nil, de
		}
		return nil, &DispatchError{Kind: ExecutionFailed, Name: envelope.Name, CallID: envelope.CallID, Cause: err}
	}

	if isCancelled(ctx, tc.Cancellation) {
		return nil, &DispatchError{Kind: Cancelled, Name: envelope.Name, CallID: envelope.CallID}
	}
	return out, nil
}

func isCancelled(ctx context.Context, cancellation <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	if cancellation == nil {
		return false
	}
	select {
	case <-cancellation:
		return true
	default:
		return false
	}
}
