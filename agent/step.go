package agent

import "github.com/kestrelai/agentgraph/llm"

// StepKind tags which shape a validated model response took.
type StepKind string

const (
	StepToolCall    StepKind = "tool_call"
	StepFinalAnswer StepKind = "final_answer"
)

// AgentStep is the validated result of a single model turn: exactly one
// of ToolCall or FinalAnswer is meaningful, selected by Kind.
type AgentStep struct {
	Kind        StepKind
	ToolCall    llm.ToolCall
	FinalAnswer string
}

// ValidateModelResponse classifies a raw ChatOut against the allowed
// tool set for this step. Any shape other than "zero tool calls with
// non-empty content" or "exactly one tool call naming an allowed tool"
// is rejected as InvalidModelAction.
func ValidateModelResponse(out llm.ChatOut, allowedTools []string, stepID string) (AgentStep, error) {
	switch len(out.ToolCalls) {
	case 0:
		if out.Text == "" {
			return AgentStep{}, invalidModelActionErr(stepID, "", nil, out)
		}
		return AgentStep{Kind: StepFinalAnswer, FinalAnswer: out.Text}, nil
	case 1:
		call := out.ToolCalls[0]
		if !contains(allowedTools, call.Name) {
			return AgentStep{}, invalidModelActionErr(stepID, call.Name, call.Input, out)
		}
		return AgentStep{Kind: StepToolCall, ToolCall: call}, nil
	default:
		return AgentStep{}, invalidModelActionErr(stepID, "", nil, out)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
