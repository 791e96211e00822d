package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kestrelai/agentgraph/graph"
	"github.com/kestrelai/agentgraph/llm"
	"github.com/kestrelai/agentgraph/tool"
)

// testState is the minimal conversational state shape the tests drive
// Runtime[testState] against.
type testState struct {
	Input       string
	Scratchpad  []ScratchpadEntry
	FinalOutput string
}

type testAdapter struct{}

func (testAdapter) UserInput(s testState) string { return s.Input }
func (testAdapter) Scratchpad(s testState) []ScratchpadEntry { return s.Scratchpad }
func (testAdapter) AppendScratchpad(s testState, entry ScratchpadEntry) testState {
	s.Scratchpad = append(append([]ScratchpadEntry{}, s.Scratchpad...), entry)
	return s
}
func (testAdapter) SetFinalOutput(s testState, output string) testState {
	s.FinalOutput = output
	return s
}
func (testAdapter) StepCount(s testState) int    { return len(s.Scratchpad) }
func (testAdapter) CorrelationID(testState) string { return "corr-1" }

// countingDispatcher records every envelope it is asked to dispatch and
// always succeeds, unless Err is set.
type countingDispatcher struct {
	mu    sync.Mutex
	calls []tool.ToolCallEnvelope
	Err   error
}

func (d *countingDispatcher) Dispatch(_ context.Context, envelope tool.ToolCallEnvelope, _ tool.ToolContext) ([]byte, error) {
	d.mu.Lock()
	d.calls = append(d.calls, envelope)
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return []byte(`{"ok":true}`), nil
}

func (d *countingDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func collectEvents(buf int) (chan graph.AgentEvent, func() []graph.AgentEvent) {
	ch := make(chan graph.AgentEvent, buf)
	return ch, func() []graph.AgentEvent {
		out := []graph.AgentEvent{}
		for {
			select {
			case ev := <-ch:
				out = append(out, ev)
			default:
				return out
			}
		}
	}
}

func TestRuntime_FinalAnswerOnFirstStep(t *testing.T) {
	model := &llm.Mock{Responses: []llm.ChatOut{{Text: "the answer"}}}
	events, drain := collectEvents(16)

	rt := NewRuntime[testState]("node", model, &countingDispatcher{}, nil, FailFast{}, testAdapter{}, WithEvents[testState](events))
	final, status, err := rt.Run(context.Background(), testState{Input: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %v", status)
	}
	if final.FinalOutput != "the answer" {
		t.Errorf("expected final output to be set, got %q", final.FinalOutput)
	}

	evs := drain()
	var started, completed int
	for _, ev := range evs {
		switch ev.Kind {
		case EventStepStarted:
			started++
		case EventCompleted:
			completed++
		}
	}
	if started != 1 {
		t.Errorf("expected exactly one StepStarted, got %d", started)
	}
	if completed != 1 {
		t.Errorf("expected exactly one Completed, got %d", completed)
	}
}

// TestRuntime_ReprompsWithinBudgetThenSucceeds exercises conditional
// reprompt: an invalid first response consumes one unit of budget and
// the run recovers on the next attempt.
func TestRuntime_ReprompsWithinBudgetThenSucceeds(t *testing.T) {
	model := &llm.Mock{Responses: []llm.ChatOut{
		{}, // zero tool calls, empty text: invalid
		{Text: "recovered"},
	}}
	policy := AlwaysReprompt{Strategy: RepromptStrategy{Kind: RepromptOnceWithToolCatalog}}

	rt := NewRuntime[testState]("node", model, &countingDispatcher{}, nil, policy, testAdapter{}, WithBudget[testState](1))
	final, status, err := rt.Run(context.Background(), testState{Input: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %v", status)
	}
	if final.FinalOutput != "recovered" {
		t.Errorf("expected recovered final output, got %q", final.FinalOutput)
	}
	if model.CallCount() != 2 {
		t.Errorf("expected two model calls (original + reprompt), got %d", model.CallCount())
	}
}

// TestRuntime_BudgetExhaustionTerminatesRun exercises the budget path
// all the way to exhaustion: every response is invalid, so the policy
// keeps asking to reprompt until the budget is gone.
func TestRuntime_BudgetExhaustionTerminatesRun(t *testing.T) {
	model := &llm.Mock{Responses: []llm.ChatOut{{}, {}, {}}}
	policy := AlwaysReprompt{Strategy: RepromptStrategy{Kind: RepromptOnceWithToolCatalog}}

	rt := NewRuntime[testState]("node", model, &countingDispatcher{}, nil, policy, testAdapter{}, WithBudget[testState](1))
	_, _, err := rt.Run(context.Background(), testState{Input: "hi"})
	if err == nil {
		t.Fatal("expected an error once budget is exhausted")
	}
	var agentErr *Error
	if !errors.As(err, &agentErr) || agentErr.Kind != KindBudgetExceeded {
		t.Fatalf("expected KindBudgetExceeded, got %v", err)
	}
}

// TestRuntime_ToolCallLoopReachesMaxSteps exercises scenario 5: the
// model keeps asking for the same tool, never returning a final
// answer, so the run stops at the configured step ceiling instead of
// looping forever.
func TestRuntime_ToolCallLoopReachesMaxSteps(t *testing.T) {
	toolCall := llm.ToolCall{ID: "c1", Name: "echo", Input: map[string]interface{}{"value": "x"}}
	model := &llm.Mock{Responses: []llm.ChatOut{{ToolCalls: []llm.ToolCall{toolCall}}}}
	dispatcher := &countingDispatcher{}

	rt := NewRuntime[testState]("node", model, dispatcher, []llm.ToolSpec{{Name: "echo"}}, FailFast{}, testAdapter{}, WithMaxSteps[testState](3))
	_, _, err := rt.Run(context.Background(), testState{Input: "hi"})
	if err == nil {
		t.Fatal("expected an error once max steps is reached")
	}
	var agentErr *Error
	if !errors.As(err, &agentErr) || agentErr.Kind != KindInternalInvariant {
		t.Fatalf("expected KindInternalInvariant for max-steps exhaustion, got %v", err)
	}
	if dispatcher.callCount() != 3 {
		t.Errorf("expected the tool to be dispatched once per allowed step, got %d", dispatcher.callCount())
	}
}

// TestRuntime_CancellationBeforeDispatchEmitsNoToolDispatched exercises
// scenario 6: cancellation observed between Thinking producing a tool
// call and Acting actually dispatching it must interrupt the run
// without invoking the dispatcher and without a ToolDispatched event.
func TestRuntime_CancellationBeforeDispatchEmitsNoToolDispatched(t *testing.T) {
	toolCall := llm.ToolCall{ID: "c1", Name: "echo", Input: map[string]interface{}{"value": "x"}}
	model := &llm.Mock{Responses: []llm.ChatOut{{ToolCalls: []llm.ToolCall{toolCall}}}}
	dispatcher := &countingDispatcher{}
	events, drain := collectEvents(16)

	rt := NewRuntime[testState]("node", model, dispatcher, []llm.ToolSpec{{Name: "echo"}}, FailFast{}, testAdapter{}, WithEvents[testState](events))

	idle := &Idle[testState]{c: rt.c}
	thinking, state, err := idle.Start(context.Background(), testState{Input: "hi"})
	if err != nil || thinking == nil {
		t.Fatalf("expected Idle.Start to succeed, got thinking=%v err=%v", thinking, err)
	}

	transition, state, err := thinking.Advance(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error from Advance: %v", err)
	}
	if transition.Kind != ToActing {
		t.Fatalf("expected ToActing, got %v", transition.Kind)
	}

	cancellation := make(chan struct{})
	close(cancellation)
	rt.c.cancellation = cancellation

	final, _, err := transition.Acting.Dispatch(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error from Dispatch: %v", err)
	}
	if final.Kind != ToInterrupted {
		t.Fatalf("expected ToInterrupted, got %v", final.Kind)
	}
	if dispatcher.callCount() != 0 {
		t.Errorf("expected the dispatcher to never be invoked, got %d calls", dispatcher.callCount())
	}

	evs := drain()
	for _, ev := range evs {
		if ev.Kind == EventToolDispatched {
			t.Errorf("expected no ToolDispatched event, got one: %+v", ev)
		}
	}
}

func TestRuntime_ToolDispatchFailureIsRecoveredByPolicy(t *testing.T) {
	toolCall := llm.ToolCall{ID: "c1", Name: "echo", Input: map[string]interface{}{"value": "x"}}
	model := &llm.Mock{Responses: []llm.ChatOut{
		{ToolCalls: []llm.ToolCall{toolCall}},
		{Text: "done"},
	}}
	dispatcher := &countingDispatcher{Err: errors.New("boom")}
	policy := AlwaysReprompt{}

	rt := NewRuntime[testState]("node", model, dispatcher, []llm.ToolSpec{{Name: "echo"}}, policy, testAdapter{}, WithBudget[testState](1))
	final, status, err := rt.Run(context.Background(), testState{Input: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusCompleted || final.FinalOutput != "done" {
		t.Fatalf("expected recovered completion, got status=%v final=%+v", status, final)
	}
}

func TestRuntime_FailFastStopsOnFirstToolError(t *testing.T) {
	toolCall := llm.ToolCall{ID: "c1", Name: "echo", Input: map[string]interface{}{"value": "x"}}
	model := &llm.Mock{Responses: []llm.ChatOut{{ToolCalls: []llm.ToolCall{toolCall}}}}
	dispatcher := &countingDispatcher{Err: errors.New("boom")}

	rt := NewRuntime[testState]("node", model, dispatcher, []llm.ToolSpec{{Name: "echo"}}, FailFast{}, testAdapter{})
	_, _, err := rt.Run(context.Background(), testState{Input: "hi"})
	if err == nil {
		t.Fatal("expected an error")
	}
	var agentErr *Error
	if !errors.As(err, &agentErr) || agentErr.Kind != KindToolDispatch {
		t.Fatalf("expected KindToolDispatch, got %v", err)
	}
}

func TestRuntime_InvalidModelActionRejectsMultipleToolCalls(t *testing.T) {
	model := &llm.Mock{Responses: []llm.ChatOut{{ToolCalls: []llm.ToolCall{
		{ID: "c1", Name: "echo"},
		{ID: "c2", Name: "echo"},
	}}}}

	rt := NewRuntime[testState]("node", model, &countingDispatcher{}, []llm.ToolSpec{{Name: "echo"}}, FailFast{}, testAdapter{})
	_, _, err := rt.Run(context.Background(), testState{Input: "hi"})
	var agentErr *Error
	if !errors.As(err, &agentErr) || agentErr.Kind != KindInvalidModelAction {
		t.Fatalf("expected KindInvalidModelAction, got %v", err)
	}
}

// TestRuntime_DefaultBudgetIsUnlimited guards WithBudget's documented
// "zero means unlimited" contract: a runtime that never calls
// WithBudget must still be able to consume budget on a reprompt
// without raising BudgetExceeded.
func TestRuntime_DefaultBudgetIsUnlimited(t *testing.T) {
	model := &llm.Mock{Responses: []llm.ChatOut{
		{}, {}, {}, {}, {Text: "recovered"},
	}}
	policy := AlwaysReprompt{Strategy: RepromptStrategy{Kind: RepromptOnceWithToolCatalog}}

	rt := NewRuntime[testState]("node", model, &countingDispatcher{}, nil, policy, testAdapter{})
	final, status, err := rt.Run(context.Background(), testState{Input: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusCompleted || final.FinalOutput != "recovered" {
		t.Fatalf("expected recovered completion under unlimited default budget, got status=%v final=%+v", status, final)
	}
}

// recordingTracker is a minimal llm.CostRecorder spy.
type recordingTracker struct {
	mu    sync.Mutex
	calls []struct {
		runID, model           string
		inputTok, outputTok int
	}
}

func (r *recordingTracker) Record(runID, model string, inputTokens, outputTokens int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, struct {
		runID, model           string
		inputTok, outputTok int
	}{runID, model, inputTokens, outputTokens})
	return 0
}

func TestRuntime_WithCostTrackerRecordsEachModelCall(t *testing.T) {
	model := &llm.Mock{Responses: []llm.ChatOut{{Text: "the answer", InputTokens: 10, OutputTokens: 5}}}
	tracker := &recordingTracker{}

	rt := NewRuntime[testState]("node", model, &countingDispatcher{}, nil, FailFast{}, testAdapter{},
		WithCostTracker[testState](tracker, "gpt-4o-mini", "corr-1"))
	_, status, err := rt.Run(context.Background(), testState{Input: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %v", status)
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if len(tracker.calls) != 1 {
		t.Fatalf("expected exactly one Record call, got %d", len(tracker.calls))
	}
	got := tracker.calls[0]
	if got.runID != "corr-1" || got.model != "gpt-4o-mini" || got.inputTok != 10 || got.outputTok != 5 {
		t.Fatalf("unexpected Record call: %+v", got)
	}
}
