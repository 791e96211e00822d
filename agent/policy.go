package agent

import "context"

// PolicyDecisionKind is the closed set of responses a PolicyEngine may
// return for a recoverable model or tool error.
type PolicyDecisionKind string

const (
	PolicyFail      PolicyDecisionKind = "fail"
	PolicyRetry     PolicyDecisionKind = "retry"
	PolicyReprompt  PolicyDecisionKind = "reprompt"
	PolicyInterrupt PolicyDecisionKind = "interrupt"
)

// RepromptStrategyKind selects how the runtime nudges a second attempt
// at the model after an invalid or errored turn.
type RepromptStrategyKind string

const (
	// RepromptOnceWithToolCatalog makes the reprompt note ask the model
	// to review the available tools. The note is added on every reprompt
	// under this strategy; the tool catalog itself is not written into
	// the scratchpad.
	RepromptOnceWithToolCatalog RepromptStrategyKind = "once_with_tool_catalog"
	// RepromptN carries a reprompt count N in RepromptStrategy.N for the
	// policy's own bookkeeping. The runtime does not read N; it adds a
	// plain "try again" note on each reprompt.
	RepromptN RepromptStrategyKind = "n"
)

// RepromptStrategy parameterizes a PolicyReprompt decision.
type RepromptStrategy struct {
	Kind RepromptStrategyKind
	N    int
}

// PolicyDecision is the closed variant a PolicyEngine returns. ConsumeBudget,
// when true, debits one unit from the runtime's step budget; the runtime
// raises BudgetExceeded once the budget reaches zero on a decision that
// asked to consume it.
type PolicyDecision struct {
	Kind             PolicyDecisionKind
	ConsumeBudget    bool
	RepromptStrategy RepromptStrategy
}

// PolicyEngine is consulted at exactly two call sites: when the model
// call itself fails or returns an invalid action, and when a dispatched
// tool fails. New recovery strategies are added by extending
// RepromptStrategy, never by adding new call sites to Runtime.
type PolicyEngine interface {
	OnModelError(ctx context.Context, err error) PolicyDecision
	OnToolError(ctx context.Context, err error) PolicyDecision
}

// AlwaysReprompt is a minimal PolicyEngine that reprompts on every
// recoverable error, consuming one unit of budget each time. Useful as
// a baseline policy and in tests exercising budget exhaustion.
type AlwaysReprompt struct {
	Strategy RepromptStrategy
}

func (p AlwaysReprompt) OnModelError(_ context.Context, _ error) PolicyDecision {
	return PolicyDecision{Kind: PolicyReprompt, ConsumeBudget: true, RepromptStrategy: p.Strategy}
}

func (p AlwaysReprompt) OnToolError(_ context.Context, _ error) PolicyDecision {
	return PolicyDecision{Kind: PolicyReprompt, ConsumeBudget: true, RepromptStrategy: p.Strategy}
}

// FailFast is a PolicyEngine that never recovers: every model or tool
// error terminates the run.
type FailFast struct{}

func (FailFast) OnModelError(_ context.Context, _ error) PolicyDecision {
	return PolicyDecision{Kind: PolicyFail}
}

func (FailFast) OnToolError(_ context.Context, _ error) PolicyDecision {
	return PolicyDecision{Kind: PolicyFail}
}
