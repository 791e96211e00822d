package agent

import "fmt"

// ErrorKind enumerates the agent-layer failure taxonomy. These are
// distinct from graph.EngineError and tool dispatch errors: an Error
// describes something that went wrong inside the agent's own
// think/act/observe loop, not the surrounding scheduler or a specific
// tool's execution.
type ErrorKind string

const (
	KindModelTransport       ErrorKind = "model_transport"
	KindInvalidModelAction   ErrorKind = "invalid_model_action"
	KindToolDispatch         ErrorKind = "tool_dispatch"
	KindBudgetExceeded       ErrorKind = "budget_exceeded"
	KindPolicyConfigInvalid  ErrorKind = "policy_config_invalid"
	KindPolicyRuntimeViolation ErrorKind = "policy_runtime_violation"
	KindInternalInvariant    ErrorKind = "internal_invariant"
)

// Error is the concrete type returned for every agent-layer failure.
// StepID is the id (a UUID) of the agent step the failure occurred in,
// distinct from the engine's own step number.
type Error struct {
	Kind         ErrorKind
	StepID       string
	ToolName     string
	ReceivedArgs map[string]interface{}
	RawResponse  any
	Message      string
	Cause        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agent: %s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("agent: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("agent: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

func modelTransportErr(stepID string, cause error) *Error {
	return &Error{Kind: KindModelTransport, StepID: stepID, Cause: cause, Message: "model call failed"}
}

func invalidModelActionErr(stepID, toolName string, receivedArgs map[string]interface{}, raw any) *Error {
	return &Error{
		Kind:         KindInvalidModelAction,
		StepID:       stepID,
		ToolName:     toolName,
		ReceivedArgs: receivedArgs,
		RawResponse:  raw,
		Message:      "model response did not match the zero-or-one-allowed-tool-call shape",
	}
}

func toolDispatchErr(stepID, toolName string, cause error) *Error {
	return &Error{Kind: KindToolDispatch, StepID: stepID, ToolName: toolName, Cause: cause, Message: "tool dispatch failed"}
}

func budgetExceededErr(stepID string) *Error {
	return &Error{Kind: KindBudgetExceeded, StepID: stepID, Message: "step budget exhausted"}
}

func policyConfigInvalidErr(message string) *Error {
	return &Error{Kind: KindPolicyConfigInvalid, Message: message}
}

func internalInvariantErr(message string) *Error {
	return &Error{Kind: KindInternalInvariant, Message: message}
}
