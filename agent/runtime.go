// Package agent implements the think/act/observe loop a model-calling
// node runs: validating model responses, dispatching tool calls through
// a registry, consulting a policy on recoverable errors, and emitting
// one event per phase transition. The state machine is encoded as
// distinct Go types per phase (Idle, Thinking, Acting, Observing,
// Completed, Interrupted) so that illegal transitions — calling a
// method a phase does not expose — fail to compile rather than panic
// at runtime.
package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/kestrelai/agentgraph/graph"
	"github.com/kestrelai/agentgraph/llm"
	"github.com/kestrelai/agentgraph/tool"
)

// marshalArgs re-encodes a tool call's decoded Input back into the JSON
// bytes Dispatch expects. A nil Input becomes an empty object rather
// than the JSON literal null, since tools generally expect an object
// to unmarshal their Args struct from.
func marshalArgs(input map[string]interface{}) ([]byte, error) {
	if input == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(input)
}

// Status is the terminal disposition of a Runtime.Run call.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
)

// core holds everything shared across phase values for one Run
// invocation. It is never exported: callers only ever see the
// phase-specific wrapper types, which is what makes illegal
// transitions a compile error rather than a guarded runtime check.
type core[S any] struct {
	model        llm.ChatModel
	dispatcher   tool.Dispatcher
	toolSpecs    []llm.ToolSpec
	allowedTools []string
	policy       PolicyEngine
	adapter      StateAdapter[S]
	budget       int
	unlimited    bool
	nodeID       string
	events       chan<- graph.AgentEvent
	cancellation <-chan struct{}
}

// Idle is the phase a Runtime starts in: the only legal transition is
// Start, which opens the first step.
type Idle[S any] struct{ c *core[S] }

// Thinking is the phase that owns a model call and its validation.
type Thinking[S any] struct {
	c      *core[S]
	stepID string
}

// Acting is the phase that owns dispatching exactly one tool call.
type Acting[S any] struct {
	c      *core[S]
	stepID string
	call   llm.ToolCall
}

// Observing is the phase between a successful tool dispatch and the
// next think step.
type Observing[S any] struct {
	c      *core[S]
	stepID string
	call   llm.ToolCall
	output []byte
}

// Completed is the terminal success phase; it carries the final answer
// and exposes no further transitions.
type Completed[S any] struct{ FinalOutput string }

// Interrupted is the terminal cancellation phase; it exposes no
// further transitions.
type Interrupted[S any] struct{ StepID string }

// TransitionKind tags which phase a Transition carries.
type TransitionKind string

const (
	ToThinking    TransitionKind = "thinking"
	ToActing      TransitionKind = "acting"
	ToObserving   TransitionKind = "observing"
	ToCompleted   TransitionKind = "completed"
	ToInterrupted TransitionKind = "interrupted"
)

// Transition is the tagged result of a phase-advancing call: exactly
// one of the phase fields matching Kind is non-nil.
type Transition[S any] struct {
	Kind        TransitionKind
	Thinking    *Thinking[S]
	Acting      *Acting[S]
	Observing   *Observing[S]
	Completed   *Completed[S]
	Interrupted *Interrupted[S]
}

// Runtime drives a Runtime.Run call through Idle -> Thinking ->
// (Acting -> Observing -> Thinking)* -> Completed|Interrupted,
// enforcing the one-Completed-per-run and one-terminal-per-dispatch
// invariants along the way.
type Runtime[S any] struct {
	c        *core[S]
	maxSteps int
}

// Option configures a Runtime at construction time.
type Option[S any] func(*Runtime[S])

// WithBudget sets the policy-consumable step budget. Zero (or
// negative) means unlimited: resolveDecision never raises
// BudgetExceeded for a runtime left at the default.
func WithBudget[S any](budget int) Option[S] {
	return func(r *Runtime[S]) {
		r.c.budget = budget
		r.c.unlimited = budget <= 0
	}
}

// WithMaxSteps bounds the number of think attempts a single Run call
// will make, independent of budget, as a backstop against a policy
// that never exhausts budget but also never terminates.
func WithMaxSteps[S any](n int) Option[S] {
	return func(r *Runtime[S]) { r.maxSteps = n }
}

// WithEvents attaches a sink that receives this runtime's AgentEvents.
func WithEvents[S any](events chan<- graph.AgentEvent) Option[S] {
	return func(r *Runtime[S]) { r.c.events = events }
}

// WithCancellation attaches a channel the runtime checks before tool
// dispatch; a closed channel is observed as cancellation.
func WithCancellation[S any](cancellation <-chan struct{}) Option[S] {
	return func(r *Runtime[S]) { r.c.cancellation = cancellation }
}

// WithCostTracker wraps the runtime's model so every Chat call it
// makes attributes modelName's input/output tokens to runID via
// tracker. It replaces c.model in place, so Thinking.Advance's
// existing model.Chat call is instrumented transparently.
func WithCostTracker[S any](tracker llm.CostRecorder, modelName, runID string) Option[S] {
	return func(r *Runtime[S]) {
		if tracker == nil {
			return
		}
		r.c.model = &llm.Instrumented{
			Model:     r.c.model,
			Tracker:   tracker,
			ModelName: modelName,
			RunID:     runID,
		}
	}
}

// NewRuntime builds a Runtime for one node invocation.
func NewRuntime[S any](
	nodeID string,
	model llm.ChatModel,
	dispatcher tool.Dispatcher,
	toolSpecs []llm.ToolSpec,
	policy PolicyEngine,
	adapter StateAdapter[S],
	opts ...Option[S],
) *Runtime[S] {
	allowed := make([]string, len(toolSpecs))
	for i, spec := range toolSpecs {
		allowed[i] = spec.Name
	}
	r := &Runtime[S]{
		c: &core[S]{
			model:        model,
			dispatcher:   dispatcher,
			toolSpecs:    toolSpecs,
			allowedTools: allowed,
			policy:       policy,
			adapter:      adapter,
			nodeID:       nodeID,
			unlimited:    true,
		},
		maxSteps: 25,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives the runtime to completion or interruption, returning the
// final state alongside the terminal status.
func (r *Runtime[S]) Run(ctx context.Context, state S) (S, Status, error) {
	idle := &Idle[S]{c: r.c}
	thinking, state, err := idle.Start(ctx, state)
	if err != nil {
		return state, "", err
	}
	if thinking == nil {
		return state, StatusInterrupted, nil
	}

	for attempt := 0; attempt < r.maxSteps; attempt++ {
		transition, newState, err := thinking.Advance(ctx, state)
		state = newState
		if err != nil {
			return state, "", err
		}

		switch transition.Kind {
		case ToCompleted:
			return state, StatusCompleted, nil
		case ToInterrupted:
			return state, StatusInterrupted, nil
		case ToThinking:
			thinking = transition.Thinking
			continue
		case ToActing:
			var trans Transition[S]
			trans, state, err = transition.Acting.Dispatch(ctx, state)
			if err != nil {
				return state, "", err
			}
			switch trans.Kind {
			case ToInterrupted:
				return state, StatusInterrupted, nil
			case ToThinking:
				thinking = trans.Thinking
			case ToObserving:
				var nextThinking *Thinking[S]
				nextThinking, state = trans.Observing.Reflect(state)
				thinking = nextThinking
			default:
				return state, "", internalInvariantErr("unexpected transition out of Acting")
			}
		default:
			return state, "", internalInvariantErr("unexpected transition out of Thinking")
		}
	}

	return state, "", internalInvariantErr("max agent steps exceeded without reaching a terminal phase")
}

// Start opens the first step, emitting StepStarted.
func (i *Idle[S]) Start(ctx context.Context, state S) (*Thinking[S], S, error) {
	if i.c.isCancelled(ctx) {
		emit(i.c.events, i.c.nodeID, EventInterrupted, nil)
		return nil, state, nil
	}
	stepID := uuid.NewString()
	emit(i.c.events, i.c.nodeID, EventStepStarted, StepStartedPayload{StepID: stepID})
	return &Thinking[S]{c: i.c, stepID: stepID}, state, nil
}

// Advance calls the model, validates its response, and returns the
// next legal phase. A model or validation error is routed to the
// policy before becoming a terminal Runtime error.
func (t *Thinking[S]) Advance(ctx context.Context, state S) (Transition[S], S, error) {
	if t.c.isCancelled(ctx) {
		emit(t.c.events, t.c.nodeID, EventInterrupted, nil)
		return Transition[S]{Kind: ToInterrupted, Interrupted: &Interrupted[S]{StepID: t.stepID}}, state, nil
	}

	messages := buildMessages(t.c.adapter, state)
	out, chatErr := t.c.model.Chat(ctx, messages, t.c.toolSpecs)

	var step AgentStep
	var validateErr error
	if chatErr == nil {
		step, validateErr = ValidateModelResponse(out, t.c.allowedTools, t.stepID)
	}

	if chatErr != nil || validateErr != nil {
		var agentErr error
		if chatErr != nil {
			agentErr = modelTransportErr(t.stepID, chatErr)
		} else {
			agentErr = validateErr
		}

		decision := t.c.policy.OnModelError(ctx, agentErr)
		next, newState, recoverErr := t.c.resolveDecision(decision, t.stepID, state, agentErr)
		return next, newState, recoverErr
	}

	switch step.Kind {
	case StepFinalAnswer:
		state = t.c.adapter.SetFinalOutput(state, step.FinalAnswer)
		emit(t.c.events, t.c.nodeID, EventCompleted, CompletedPayload{StepID: t.stepID, FinalOutput: step.FinalAnswer})
		return Transition[S]{Kind: ToCompleted, Completed: &Completed[S]{FinalOutput: step.FinalAnswer}}, state, nil
	case StepToolCall:
		return Transition[S]{Kind: ToActing, Acting: &Acting[S]{c: t.c, stepID: t.stepID, call: step.ToolCall}}, state, nil
	default:
		return Transition[S]{}, state, internalInvariantErr("validated step has neither a final answer nor a tool call")
	}
}

// resolveDecision applies a PolicyDecision returned for a recoverable
// model or tool error, debiting budget when asked and converting
// budget exhaustion or an outright Fail into a terminal error.
func (c *core[S]) resolveDecision(decision PolicyDecision, stepID string, state S, cause error) (Transition[S], S, error) {
	switch decision.Kind {
	case PolicyFail:
		emit(c.events, c.nodeID, EventStepFailed, StepFailedPayload{StepID: stepID, Reason: cause.Error()})
		return Transition[S]{}, state, cause
	case PolicyInterrupt:
		emit(c.events, c.nodeID, EventInterrupted, nil)
		return Transition[S]{Kind: ToInterrupted, Interrupted: &Interrupted[S]{StepID: stepID}}, state, nil
	case PolicyRetry, PolicyReprompt:
		if decision.ConsumeBudget {
			if !c.unlimited && c.budget <= 0 {
				err := budgetExceededErr(stepID)
				emit(c.events, c.nodeID, EventStepFailed, StepFailedPayload{StepID: stepID, Reason: err.Error()})
				return Transition[S]{}, state, err
			}
			c.budget--
		}
		if decision.Kind == PolicyReprompt {
			state = c.adapter.AppendScratchpad(state, ScratchpadEntry{
				Role:    "system",
				Content: repromptNote(decision.RepromptStrategy, cause),
			})
		}
		return Transition[S]{Kind: ToThinking, Thinking: &Thinking[S]{c: c, stepID: stepID}}, state, nil
	default:
		return Transition[S]{}, state, policyConfigInvalidErr("unknown policy decision kind")
	}
}

func repromptNote(strategy RepromptStrategy, cause error) string {
	if strategy.Kind == RepromptOnceWithToolCatalog {
		return "Your last response was invalid: " + cause.Error() + ". Review the available tools and respond again."
	}
	return "Your last response was invalid: " + cause.Error() + ". Please try again."
}

// Dispatch invokes exactly one tool call, emitting ToolDispatched
// before the call and ToolCompleted/ToolFailed after. Cancellation
// observed before dispatch produces no ToolDispatched event at all.
func (a *Acting[S]) Dispatch(ctx context.Context, state S) (Transition[S], S, error) {
	if a.c.isCancelled(ctx) {
		emit(a.c.events, a.c.nodeID, EventInterrupted, nil)
		return Transition[S]{Kind: ToInterrupted, Interrupted: &Interrupted[S]{StepID: a.stepID}}, state, nil
	}

	callID := a.call.ID
	if callID == "" {
		callID = uuid.NewString()
	}

	argsJSON, marshalErr := marshalArgs(a.call.Input)
	if marshalErr != nil {
		return Transition[S]{}, state, toolDispatchErr(a.stepID, a.call.Name, marshalErr)
	}

	emit(a.c.events, a.c.nodeID, EventToolDispatched, ToolDispatchedPayload{StepID: a.stepID, CallID: callID, Tool: a.call.Name})

	output, err := a.c.dispatcher.Dispatch(ctx,
		tool.ToolCallEnvelope{Name: a.call.Name, ArgsJSON: argsJSON, CallID: callID},
		tool.ToolContext{CorrelationID: a.c.adapter.CorrelationID(state), StepID: a.stepID, Cancellation: a.c.cancellation},
	)
	if err != nil {
		emit(a.c.events, a.c.nodeID, EventToolFailed, ToolFailedPayload{StepID: a.stepID, CallID: callID, Err: err})

		var dispatchErr *tool.DispatchError
		if errors.As(err, &dispatchErr) && dispatchErr.Kind == tool.Cancelled {
			emit(a.c.events, a.c.nodeID, EventInterrupted, nil)
			return Transition[S]{Kind: ToInterrupted, Interrupted: &Interrupted[S]{StepID: a.stepID}}, state, nil
		}

		agentErr := toolDispatchErr(a.stepID, a.call.Name, err)
		decision := a.c.policy.OnToolError(ctx, agentErr)
		return a.c.resolveDecision(decision, a.stepID, state, agentErr)
	}

	emit(a.c.events, a.c.nodeID, EventToolCompleted, ToolCompletedPayload{StepID: a.stepID, CallID: callID})
	return Transition[S]{
		Kind:      ToObserving,
		Observing: &Observing[S]{c: a.c, stepID: a.stepID, call: a.call, output: output},
	}, state, nil
}

// Reflect appends the tool's result to the scratchpad and returns to
// Thinking for the next step, emitting StepStarted for it.
func (o *Observing[S]) Reflect(state S) (*Thinking[S], S) {
	state = o.c.adapter.AppendScratchpad(state, ScratchpadEntry{
		Role:       llm.RoleTool,
		Content:    string(o.output),
		ToolName:   o.call.Name,
		ToolCallID: o.call.ID,
	})
	stepID := uuid.NewString()
	emit(o.c.events, o.c.nodeID, EventStepStarted, StepStartedPayload{StepID: stepID})
	return &Thinking[S]{c: o.c, stepID: stepID}, state
}

func (c *core[S]) isCancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if c.cancellation == nil {
		return false
	}
	select {
	case <-c.cancellation:
		return true
	default:
		return false
	}
}

// buildMessages reconstructs the conversation the model sees from the
// adapter's user input plus whatever scratchpad entries have
// accumulated so far.
func buildMessages[S any](adapter StateAdapter[S], state S) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleUser, Content: adapter.UserInput(state)}}
	for _, entry := range adapter.Scratchpad(state) {
		role := entry.Role
		if role == "" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: entry.Content, ToolCallID: entry.ToolCallID})
	}
	return messages
}
