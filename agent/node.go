package agent

import (
	"context"
	"errors"

	"github.com/kestrelai/agentgraph/graph"
	"github.com/kestrelai/agentgraph/llm"
	"github.com/kestrelai/agentgraph/tool"
)

// ErrInterrupted is wrapped into the graph.NodeError AsNode returns when
// a Runtime ends in the Interrupted phase rather than Completed, so
// callers can distinguish cooperative cancellation from an actual
// node failure with errors.Is.
var ErrInterrupted = errors.New("agent: run interrupted")

// NodeConfig bundles everything AsNode needs to build a Runtime for one
// node invocation. A fresh Runtime is constructed per Run call so that
// per-run state (budget remaining, step counters) never leaks between
// concurrent invocations of the same node sharing one Program.
type NodeConfig[S any] struct {
	Model      llm.ChatModel
	Dispatcher tool.Dispatcher
	ToolSpecs  []llm.ToolSpec
	Policy     PolicyEngine
	Adapter    StateAdapter[S]
	Budget     int
	MaxSteps   int

	// CostTracker, if set, receives a Record call for every model Chat
	// this node makes, attributed to ModelName and to the adapter's
	// CorrelationID for the state in play. Leave nil to skip cost
	// attribution entirely.
	CostTracker llm.CostRecorder
	ModelName   string
}

// AsNode adapts a NodeConfig into a graph.Node, so an agent's
// think/act/observe loop can be registered and scheduled like any
// other node in a Program. The node's GraphContext.Events channel, if
// set, becomes the Runtime's event sink, and the engine's per-run
// context is used for cancellation; AsNode does not expose a separate
// cancellation channel since ctx already carries it.
func AsNode[S any](nodeID string, cfg NodeConfig[S]) graph.Node[S] {
	return graph.NodeFunc[S](func(ctx context.Context, state S, gctx graph.GraphContext) (S, error) {
		opts := []Option[S]{}
		if cfg.Budget > 0 {
			opts = append(opts, WithBudget[S](cfg.Budget))
		}
		if cfg.MaxSteps > 0 {
			opts = append(opts, WithMaxSteps[S](cfg.MaxSteps))
		}
		if gctx.Events != nil {
			opts = append(opts, WithEvents[S](gctx.Events))
		}
		if cfg.CostTracker != nil {
			opts = append(opts, WithCostTracker[S](cfg.CostTracker, cfg.ModelName, cfg.Adapter.CorrelationID(state)))
		}

		runtime := NewRuntime[S](nodeID, cfg.Model, cfg.Dispatcher, cfg.ToolSpecs, cfg.Policy, cfg.Adapter, opts...)
		finalState, status, err := runtime.Run(ctx, state)
		if err != nil {
			return state, &graph.NodeError{NodeID: nodeID, Message: "agent run failed", Cause: err}
		}
		if status == StatusInterrupted {
			return finalState, &graph.NodeError{NodeID: nodeID, Message: "agent run interrupted", Cause: ErrInterrupted}
		}
		return finalState, nil
	})
}
