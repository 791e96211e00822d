package emit

import (
	"context"
	"testing"
)

func TestNullEmitter_DiscardsWholeKindLifecycle(t *testing.T) {
	emitter := NewNullEmitter()

	lifecycle := []Event{
		{Kind: KindNodeEnter, RunID: "run-001", Step: 1, NodeID: "A"},
		{Kind: KindStreamChunk, RunID: "run-001", Step: 1, NodeID: "A", Meta: map[string]interface{}{"chunk": "hi"}},
		{Kind: KindNodeExit, RunID: "run-001", Step: 1, NodeID: "A", Meta: map[string]interface{}{"duration_ms": int64(1)}},
		{Kind: KindCheckpointSaved, RunID: "run-001", Step: 1},
		{Kind: KindCompleted, RunID: "run-001", Step: 1},
	}
	for _, event := range lifecycle {
		emitter.Emit(event)
	}

	if err := emitter.EmitBatch(context.Background(), lifecycle); err != nil {
		t.Fatalf("expected EmitBatch to never error, got %v", err)
	}
	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("expected Flush to never error, got %v", err)
	}
}

func TestNullEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = NewNullEmitter()
}
