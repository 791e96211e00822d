package graph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelai/agentgraph/graph/emit"
	"github.com/kestrelai/agentgraph/graph/store"
)

// Status is the terminal disposition of a run.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
)

// Result is returned by Invoke/InvokeWithOptions on success or interrupt.
type Result[S any] struct {
	State  S
	Status Status
	Step   int
	RunID  string
}

// GraphEvent is the richer per-run stream StreamInvoke exposes, covering
// NodeEnter, StreamChunk, NodeExit, CheckpointSaved (carrying the merged
// State), Error, Completed, and Interrupted alongside the plain
// emit.Event lifecycle notifications sent to the bound observer.
type GraphEvent[S any] struct {
	Kind   emit.Kind
	Step   int
	NodeID string
	State  S
	Err    error

	// Meta carries kind-specific structured data: "duration_ms" on
	// KindNodeExit, "chunk" on KindStreamChunk. Nil for kinds that carry
	// no extra data.
	Meta map[string]interface{}
}

// Engine drives a Program to completion: it schedules ready nodes,
// dispatches them concurrently, folds their deltas via Reducer, persists
// checkpoints, and emits lifecycle events.
type Engine[S any] struct {
	program *Program[S]
	reduce  Reducer[S]
	metrics *PrometheusMetrics
}

// New builds an Engine bound to program and reduce. program must have
// been produced by Program.Build.
func New[S any](program *Program[S], reduce Reducer[S]) *Engine[S] {
	return &Engine[S]{program: program, reduce: reduce}
}

// WithMetrics attaches a PrometheusMetrics recorder to the engine.
func (e *Engine[S]) WithMetrics(m *PrometheusMetrics) *Engine[S] {
	e.metrics = m
	return e
}

// Invoke runs the program synchronously to completion or failure.
func (e *Engine[S]) Invoke(ctx context.Context, initial S) (Result[S], error) {
	return e.InvokeWithOptions(ctx, initial, ExecutionOptions{})
}

// InvokeWithOptions runs the program with per-call overrides.
func (e *Engine[S]) InvokeWithOptions(ctx context.Context, initial S, opts ExecutionOptions) (Result[S], error) {
	return e.run(ctx, initial, opts, nil)
}

// StreamInvoke runs the program while publishing a GraphEvent per
// lifecycle point to the returned channel. The channel is closed when the
// run terminates, after which the result/error is available from the
// returned function.
func (e *Engine[S]) StreamInvoke(ctx context.Context, initial S) (<-chan GraphEvent[S], func() (Result[S], error)) {
	events := make(chan GraphEvent[S], 64)
	var res Result[S]
	var runErr error
	done := make(chan struct{})

	go func() {
		defer close(events)
		defer close(done)
		res, runErr = e.run(ctx, initial, ExecutionOptions{}, events)
	}()

	return events, func() (Result[S], error) {
		<-done
		return res, runErr
	}
}

func (e *Engine[S]) run(ctx context.Context, initial S, opts ExecutionOptions, stream chan<- GraphEvent[S]) (Result[S], error) {
	cfg := resolve(e.program.defaults, opts)
	if budget := e.program.wallClockBudget; budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	runID := uuid.NewString()
	threadID := e.program.threadID
	if threadID == "" {
		threadID = runID
	}

	state := initial
	step := 1
	ready := []string{e.program.entry}
	var history []string // executed node names in dispatch order, for cycle_window
	lastNode := ""        // node whose completion produced the current ready set

	publish := func(ev GraphEvent[S]) {
		if stream != nil {
			select {
			case stream <- ev:
			case <-ctx.Done():
			}
		}
		if e.program.emitter != nil {
			e.program.emitter.Emit(emit.Event{Kind: ev.Kind, RunID: runID, Step: ev.Step, NodeID: ev.NodeID, Msg: string(ev.Kind), Meta: ev.Meta})
		}
	}

	// onChunk is handed to dispatch, which is the sole caller: it runs on
	// dispatch's single chunk-draining goroutine, so publish (and
	// therefore a non-thread-safe Emitter like LogEmitter) never sees
	// concurrent calls from more than one node.
	onChunk := func(step int, nodeID, chunk string) {
		publish(GraphEvent[S]{Kind: emit.KindStreamChunk, Step: step, NodeID: nodeID, Meta: map[string]interface{}{"chunk": chunk}})
	}

	for {
		if len(ready) == 0 {
			publish(GraphEvent[S]{Kind: emit.KindCompleted, Step: step})
			e.recordTerminal("completed")
			return Result[S]{State: state, Status: StatusCompleted, Step: step - 1, RunID: runID}, nil
		}

		if step > cfg.MaxSteps {
			err := maxStepsErr(step, cfg.MaxSteps)
			publish(GraphEvent[S]{Kind: emit.KindError, Step: step, Err: err})
			e.recordTerminal("error")
			return Result[S]{}, err
		}

		if cfg.CycleDetection {
			if n, ok := reentered(history, ready, cfg.CycleWindow); ok {
				err := cycleErr(n, cfg.CycleWindow)
				publish(GraphEvent[S]{Kind: emit.KindError, Step: step, NodeID: n, Err: err})
				e.recordTerminal("error")
				return Result[S]{}, err
			}
		}

		if ctx.Err() != nil {
			if err := e.checkpoint(ctx, threadID, state, step-1, lastNode, toPending(ready, step)); err != nil {
				publish(GraphEvent[S]{Kind: emit.KindError, Step: step, Err: err})
				e.recordTerminal("error")
				return Result[S]{}, err
			}
			publish(GraphEvent[S]{Kind: emit.KindInterrupted, Step: step})
			e.recordTerminal("interrupted")
			return Result[S]{State: state, Status: StatusInterrupted, Step: step - 1, RunID: runID}, nil
		}

		if interrupted := e.interruptBeforeAny(ready); interrupted {
			if err := e.checkpoint(ctx, threadID, state, step-1, lastNode, toPending(ready, step)); err != nil {
				publish(GraphEvent[S]{Kind: emit.KindError, Step: step, Err: err})
				e.recordTerminal("error")
				return Result[S]{}, err
			}
			publish(GraphEvent[S]{Kind: emit.KindInterrupted, Step: step})
			e.recordTerminal("interrupted")
			return Result[S]{State: state, Status: StatusInterrupted, Step: step - 1, RunID: runID}, nil
		}

		for _, n := range ready {
			publish(GraphEvent[S]{Kind: emit.KindNodeEnter, Step: step, NodeID: n})
		}

		if e.metrics != nil {
			e.metrics.ReadyQueueDepth.Set(float64(len(ready)))
			e.metrics.NodesInflight.Add(float64(len(ready)))
			e.metrics.StepsTotal.Inc()
		}
		stepStart := time.Now()
		deltas, order, durations, failedNode, err := e.dispatch(ctx, ready, state, runID, threadID, step, onChunk)
		if e.metrics != nil {
			e.metrics.NodesInflight.Sub(float64(len(ready)))
			e.metrics.StepDuration.Observe(time.Since(stepStart).Seconds())
		}
		if err != nil {
			for _, n := range ready {
				if n == failedNode {
					publish(GraphEvent[S]{Kind: emit.KindError, Step: step, NodeID: n, Err: err})
				} else {
					publish(GraphEvent[S]{Kind: emit.KindNodeExit, Step: step, NodeID: n, Meta: durationMeta(durations[n])})
				}
			}
			e.recordTerminal("error")
			return Result[S]{}, err
		}

		merged := state
		for _, idx := range order {
			merged = e.reduce(merged, deltas[idx])
		}
		state = merged

		if len(ready) > 0 {
			lastNode = ready[len(ready)-1]
		}
		successors := e.computeSuccessors(ready, state)
		if err := e.checkpoint(ctx, threadID, state, step, lastNode, toPending(successors, step+1)); err != nil {
			publish(GraphEvent[S]{Kind: emit.KindError, Step: step, Err: err})
			return Result[S]{}, err
		}
		publish(GraphEvent[S]{Kind: emit.KindCheckpointSaved, Step: step, NodeID: lastNode, State: state})

		for _, n := range ready {
			publish(GraphEvent[S]{Kind: emit.KindNodeExit, Step: step, NodeID: n, Meta: durationMeta(durations[n])})
		}

		history = append(history, ready...)
		if cfg.CycleWindow > 0 && len(history) > cfg.CycleWindow {
			history = history[len(history)-cfg.CycleWindow:]
		}

		ready = successors
		step++
	}
}

// dispatchResult pairs a completed node's delta with its index in the
// ready set; results arrive in completion order, so the caller can
// fold in completion order.
type dispatchResult[S any] struct {
	completionIndex int
	delta           S
	err             error
	nodeID          string
	duration        time.Duration
}

// nodeChunk is one stream-chunk emission fanned in from a node's own
// goroutine to dispatch's single draining goroutine.
type nodeChunk struct {
	nodeID string
	chunk  string
}

// dispatch runs every node in ready concurrently and returns their deltas
// indexed by position in ready, plus order, the ready positions in
// completion order (deltas[order[0]] is the first delta to complete),
// alongside each node's wall-clock run duration keyed by node id. On the
// first node failure it reports that node's id as failedNode; other
// in-flight nodes are still awaited before returning. onChunk, if
// non-nil, is invoked once per emitted chunk, serialized onto a single
// goroutine so it never sees concurrent calls from different nodes.
func (e *Engine[S]) dispatch(ctx context.Context, ready []string, state S, runID, threadID string, step int, onChunk func(step int, nodeID, chunk string)) (deltas []S, order []int, durations map[string]time.Duration, failedNode string, err error) {
	n := len(ready)
	deltas = make([]S, n)
	durations = make(map[string]time.Duration, n)
	results := make(chan dispatchResult[S], n)
	chunks := make(chan nodeChunk, n*4)

	chunksDone := make(chan struct{})
	go func() {
		defer close(chunksDone)
		for c := range chunks {
			if onChunk != nil {
				onChunk(step, c.nodeID, c.chunk)
			}
		}
	}()

	var wg sync.WaitGroup
	for i, nodeID := range ready {
		node, ok := e.program.nodes[nodeID]
		if !ok {
			close(chunks)
			<-chunksDone
			return nil, nil, nil, nodeID, missingNodeErr(nodeID)
		}
		wg.Add(1)
		go func(idx int, id string, nd Node[S]) {
			defer wg.Done()
			gctx := GraphContext{
				RunID: runID, ThreadID: threadID, Step: step, NodeID: id,
				EmitChunk: func(chunk string) { chunks <- nodeChunk{nodeID: id, chunk: chunk} },
			}
			start := time.Now()
			delta, runErr := nd.Run(ctx, state, gctx)
			results <- dispatchResult[S]{completionIndex: idx, delta: delta, err: runErr, nodeID: id, duration: time.Since(start)}
		}(i, nodeID, node)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	completionOrder := make([]int, 0, n)
	for res := range results {
		durations[res.nodeID] = res.duration
		if res.err != nil {
			if err == nil {
				err = nodeErr(res.nodeID, res.err)
				failedNode = res.nodeID
			}
			continue
		}
		deltas[res.completionIndex] = res.delta
		completionOrder = append(completionOrder, res.completionIndex)
	}
	close(chunks)
	<-chunksDone
	if err != nil {
		return nil, nil, durations, failedNode, err
	}
	return deltas, completionOrder, durations, "", nil
}

// durationMeta wraps a node's dispatch duration as NodeExit event Meta,
// nil if the node never completed (no duration recorded).
func durationMeta(d time.Duration) map[string]interface{} {
	if d == 0 {
		return nil
	}
	return map[string]interface{}{"duration_ms": d.Milliseconds()}
}

func (e *Engine[S]) computeSuccessors(ready []string, state S) []string {
	var out []string
	for _, n := range ready {
		out = append(out, e.program.successors(n, state)...)
	}
	return out
}

func (e *Engine[S]) interruptBeforeAny(ready []string) bool {
	for _, n := range ready {
		if e.program.interruptBefore[n] {
			return true
		}
	}
	return false
}

func (e *Engine[S]) checkpoint(ctx context.Context, threadID string, state S, step int, node string, pending []store.PendingItem) error {
	if e.program.checkpointer == nil {
		return nil
	}
	cp := store.Checkpoint[S]{
		ThreadID:     threadID,
		State:        state,
		Step:         step,
		Node:         node,
		PendingQueue: pending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.program.checkpointer.Save(ctx, cp); err != nil {
		return checkpointErr(err)
	}
	if e.metrics != nil {
		e.metrics.CheckpointSaves.Inc()
	}
	return nil
}

func (e *Engine[S]) recordTerminal(outcome string) {
	if e.metrics != nil {
		e.metrics.RunsTerminal.WithLabelValues(outcome).Inc()
	}
}

func toPending(nodes []string, step int) []store.PendingItem {
	out := make([]store.PendingItem, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, store.PendingItem{NodeID: n, Step: step})
	}
	return out
}

// reentered reports whether any node in the upcoming ready set already
// appears within the trailing window-length slice of dispatch history,
// which is this engine's definition of "re-entering within cycle_window
// steps". Nodes appearing in ready for the first time in the run are
// never flagged, regardless of window size.
func reentered(history, ready []string, window int) (string, bool) {
	if window <= 0 {
		return "", false
	}
	start := 0
	if len(history) > window {
		start = len(history) - window
	}
	recent := history[start:]
	seen := make(map[string]bool, len(recent))
	for _, n := range recent {
		seen[n] = true
	}
	for _, n := range ready {
		if seen[n] {
			return n, true
		}
	}
	return "", false
}
