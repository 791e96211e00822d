package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Checkpointer. It keeps the full checkpoint
// history per thread, which makes it useful for tests and local
// development but unbounded in memory over a long-running thread.
//
// MemStore is safe for concurrent use.
type MemStore[S any] struct {
	mu   sync.Mutex
	byID map[string][]Checkpoint[S] // threadID -> checkpoints ordered by Step
}

// NewMemStore creates an empty in-memory Checkpointer.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{byID: make(map[string][]Checkpoint[S])}
}

// Save implements Checkpointer. Saving an existing (ThreadID, Step) pair
// replaces that entry in place, keeping Save idempotent.
func (m *MemStore[S]) Save(_ context.Context, cp Checkpoint[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.byID[cp.ThreadID]
	for i, existing := range history {
		if existing.Step == cp.Step {
			history[i] = cp
			return nil
		}
	}
	history = append(history, cp)
	sort.Slice(history, func(i, j int) bool { return history[i].Step < history[j].Step })
	m.byID[cp.ThreadID] = history
	return nil
}

// Load implements Checkpointer, returning the highest-step checkpoint.
func (m *MemStore[S]) Load(_ context.Context, threadID string) (Checkpoint[S], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.byID[threadID]
	if len(history) == 0 {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}
	return history[len(history)-1], nil
}

// List implements Checkpointer.
func (m *MemStore[S]) List(_ context.Context, threadID string) ([]Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.byID[threadID]
	out := make([]Metadata, 0, len(history))
	for _, cp := range history {
		out = append(out, Metadata{ThreadID: cp.ThreadID, Step: cp.Step, Node: cp.Node, CreatedAt: cp.CreatedAt})
	}
	return out, nil
}
