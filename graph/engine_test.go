package graph

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelai/agentgraph/graph/emit"
	"github.com/kestrelai/agentgraph/graph/store"
)

type counterState struct {
	Count int
	Logs  []string
}

func counterReducer(cur, upd counterState) counterState {
	cur.Count = AddCounter(cur.Count, upd.Count)
	cur.Logs = Append(cur.Logs, upd.Logs)
	return cur
}

func incNode(log string) Node[counterState] {
	return NodeFunc[counterState](func(_ context.Context, _ counterState, _ GraphContext) (counterState, error) {
		d := counterState{Count: 1}
		if log != "" {
			d.Logs = []string{log}
		}
		return d, nil
	})
}

// Scenario 1: linear chain A -> B -> END, each increments count.
func TestEngine_LinearChain(t *testing.T) {
	cp := store.NewMemStore[counterState]()
	program, err := NewProgram[counterState]().
		AddNode("A", incNode("")).
		AddNode("B", incNode("")).
		SetEntry("A").
		AddEdge("A", "B").
		AddEdge("B", END).
		WithCheckpointer(cp, "thread1").
		Build()
	require.NoError(t, err)

	engine := New(program, counterReducer)
	res, err := engine.Invoke(context.Background(), counterState{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 2, res.State.Count)
	assert.Equal(t, 2, res.Step)

	loaded, err := cp.Load(context.Background(), "thread1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Step)
	assert.Equal(t, "B", loaded.Node)
	assert.Equal(t, 2, loaded.State.Count)
}

// Scenario 2: static fan-in diamond A -> {B,C} -> D.
func TestEngine_DiamondFanIn(t *testing.T) {
	program, err := NewProgram[counterState]().
		AddNode("A", incNode("A")).
		AddNode("B", incNode("B")).
		AddNode("C", incNode("C")).
		AddNode("D", incNode("D")).
		SetEntry("A").
		AddEdges("A", []string{"B", "C"}).
		AddEdge("B", "D").
		AddEdge("C", "D").
		AddEdge("D", END).
		Build()
	require.NoError(t, err)

	engine := New(program, counterReducer)
	res, err := engine.Invoke(context.Background(), counterState{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.State.Logs, 5)

	sorted := append([]string(nil), res.State.Logs...)
	sort.Strings(sorted)
	assert.Equal(t, []string{"A", "B", "C", "D", "D"}, sorted)
	assert.Equal(t, "A", res.State.Logs[0])
}

// ∀ max_steps=k with a self-loop node: run fails with MaxStepsExceeded.
func TestEngine_MaxStepsExceeded(t *testing.T) {
	program, err := NewProgram(WithCycleDetection[counterState](false), WithMaxSteps[counterState](3)).
		AddNode("A", incNode("")).
		SetEntry("A").
		AddEdge("A", "A").
		Build()
	require.NoError(t, err)

	engine := New(program, counterReducer)
	_, err = engine.Invoke(context.Background(), counterState{})
	require.Error(t, err)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindMaxStepsExceeded, engErr.Kind)
}

// ∀ cycle_detection=true, cycle_window=w: a node re-entering within w
// steps fails with CycleDetected.
func TestEngine_CycleDetected(t *testing.T) {
	program, err := NewProgram(WithCycleWindow[counterState](4)).
		AddNode("A", incNode("")).
		AddNode("B", incNode("")).
		SetEntry("A").
		AddEdge("A", "B").
		AddEdge("B", "A").
		Build()
	require.NoError(t, err)

	engine := New(program, counterReducer)
	_, err = engine.Invoke(context.Background(), counterState{})
	require.Error(t, err)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindCycleDetected, engErr.Kind)
}

// TestEngine_NodeExitCarriesDuration asserts the C5 observer contract's
// duration_ms field: every NodeExit event's Meta reports how long that
// node's Run call took, not zero, not absent.
func TestEngine_NodeExitCarriesDuration(t *testing.T) {
	sleepy := NodeFunc[counterState](func(_ context.Context, _ counterState, _ GraphContext) (counterState, error) {
		time.Sleep(5 * time.Millisecond)
		return counterState{Count: 1}, nil
	})

	program, err := NewProgram[counterState]().
		AddNode("A", sleepy).
		SetEntry("A").
		AddEdge("A", END).
		Build()
	require.NoError(t, err)

	engine := New(program, counterReducer)
	events, wait := engine.StreamInvoke(context.Background(), counterState{})

	var exits []GraphEvent[counterState]
	for ev := range events {
		if ev.Kind == emit.KindNodeExit {
			exits = append(exits, ev)
		}
	}
	_, err = wait()
	require.NoError(t, err)

	require.Len(t, exits, 1)
	require.NotNil(t, exits[0].Meta)
	ms, ok := exits[0].Meta["duration_ms"].(int64)
	require.True(t, ok, "duration_ms must be an int64 millisecond count")
	assert.GreaterOrEqual(t, ms, int64(5))
}

// TestEngine_StreamChunkLifecycle asserts the C5 observer contract's
// on_stream_chunk path: a node that calls gctx.EmitChunk produces
// KindStreamChunk events on the run's GraphEvent stream, each carrying
// the chunk text and the node that emitted it.
func TestEngine_StreamChunkLifecycle(t *testing.T) {
	streaming := NodeFunc[counterState](func(_ context.Context, _ counterState, gctx GraphContext) (counterState, error) {
		if gctx.EmitChunk != nil {
			gctx.EmitChunk("hello")
			gctx.EmitChunk(" world")
		}
		return counterState{Count: 1}, nil
	})

	program, err := NewProgram[counterState]().
		AddNode("A", streaming).
		SetEntry("A").
		AddEdge("A", END).
		Build()
	require.NoError(t, err)

	engine := New(program, counterReducer)
	events, wait := engine.StreamInvoke(context.Background(), counterState{})

	var chunks []string
	for ev := range events {
		if ev.Kind == emit.KindStreamChunk {
			assert.Equal(t, "A", ev.NodeID)
			chunk, ok := ev.Meta["chunk"].(string)
			require.True(t, ok)
			chunks = append(chunks, chunk)
		}
	}
	_, err = wait()
	require.NoError(t, err)

	assert.Equal(t, []string{"hello", " world"}, chunks)
}

func TestEngine_MissingNodeRejectedAtBuild(t *testing.T) {
	_, err := NewProgram[counterState]().
		AddNode("A", incNode("")).
		SetEntry("A").
		AddEdge("A", "ghost").
		Build()
	require.Error(t, err)
	var progErr *ProgramError
	require.ErrorAs(t, err, &progErr)
	assert.Equal(t, "MissingNode", progErr.Kind)
}
