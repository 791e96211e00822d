package agent

import (
	"time"

	"github.com/kestrelai/agentgraph/graph"
)

// Event kinds published on a Runtime's graph.AgentEvent sink. These name
// the operational events an agent step can emit: one StepStarted opens
// each step (the first think, and each think that follows a tool
// observation; a retry or reprompt stays within its step), exactly one
// of ToolCompleted/ToolFailed closes a ToolDispatched, and a run emits
// at most one Completed.
const (
	EventStepStarted    = "step_started"
	EventToolDispatched = "tool_dispatched"
	EventToolCompleted  = "tool_completed"
	EventToolFailed     = "tool_failed"
	EventStepFailed     = "step_failed"
	EventCompleted      = "completed"
	EventInterrupted    = "interrupted"
)

// StepStartedPayload is the Payload of an EventStepStarted event.
type StepStartedPayload struct {
	StepID string
}

// ToolDispatchedPayload is the Payload of an EventToolDispatched event.
type ToolDispatchedPayload struct {
	StepID string
	CallID string
	Tool   string
}

// ToolCompletedPayload is the Payload of an EventToolCompleted event.
type ToolCompletedPayload struct {
	StepID string
	CallID string
}

// ToolFailedPayload is the Payload of an EventToolFailed event.
type ToolFailedPayload struct {
	StepID string
	CallID string
	Err    error
}

// StepFailedPayload is the Payload of an EventStepFailed event.
type StepFailedPayload struct {
	StepID string
	Reason string
}

// CompletedPayload is the Payload of an EventCompleted event.
type CompletedPayload struct {
	StepID      string
	FinalOutput string
}

func emit(sink chan<- graph.AgentEvent, nodeID, kind string, payload any) {
	if sink == nil {
		return
	}
	ev := graph.AgentEvent{Kind: kind, NodeID: nodeID, Payload: payload, At: time.Now()}
	select {
	case sink <- ev:
	default:
		// A full sink never blocks the agent loop; the run proceeds and
		// the observer simply misses this one notification.
	}
}
