package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Count int `json:"count"`
}

// checkpointerContract exercises the behavior every Checkpointer
// implementation must provide, independent of backend.
func checkpointerContract(t *testing.T, cp Checkpointer[testState]) {
	t.Helper()
	ctx := context.Background()

	_, err := cp.Load(ctx, "missing-thread")
	assert.ErrorIs(t, err, ErrNotFound)

	first := Checkpoint[testState]{
		ThreadID:  "t1",
		State:     testState{Count: 1},
		Step:      1,
		Node:      "A",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, cp.Save(ctx, first))

	second := Checkpoint[testState]{
		ThreadID:     "t1",
		State:        testState{Count: 2},
		Step:         2,
		Node:         "B",
		PendingQueue: []PendingItem{{NodeID: "C", Step: 3}},
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, cp.Save(ctx, second))

	loaded, err := cp.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, second.Step, loaded.Step)
	assert.Equal(t, second.State, loaded.State)
	assert.Equal(t, second.PendingQueue, loaded.PendingQueue)

	// Saving an existing (thread, step) again is idempotent.
	require.NoError(t, cp.Save(ctx, second))
	loaded2, err := cp.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, loaded, loaded2)

	history, err := cp.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Step)
	assert.Equal(t, 2, history[1].Step)
}
