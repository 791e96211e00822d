package emit

import "testing"

func TestEvent_ZeroValue(t *testing.T) {
	var event Event

	if event.Kind != "" {
		t.Errorf("expected zero value Kind, got %q", event.Kind)
	}
	if event.RunID != "" {
		t.Errorf("expected zero value RunID, got %q", event.RunID)
	}
	if event.Step != 0 {
		t.Errorf("expected zero value Step, got %d", event.Step)
	}
	if event.Meta != nil {
		t.Error("expected zero value Meta to be nil")
	}
}

// TestEvent_NodeEnterExitPair exercises the shape dispatch produces for one
// node: NodeEnter carries no Meta, NodeExit carries duration_ms.
func TestEvent_NodeEnterExitPair(t *testing.T) {
	enter := Event{Kind: KindNodeEnter, RunID: "run-001", Step: 1, NodeID: "A"}
	exit := Event{Kind: KindNodeExit, RunID: "run-001", Step: 1, NodeID: "A", Meta: map[string]interface{}{"duration_ms": int64(12)}}

	if enter.Kind != KindNodeEnter {
		t.Errorf("expected KindNodeEnter, got %q", enter.Kind)
	}
	ms, ok := exit.Meta["duration_ms"].(int64)
	if !ok || ms != 12 {
		t.Errorf("expected duration_ms = 12, got %v", exit.Meta["duration_ms"])
	}
}

// TestEvent_StreamChunkCarriesText verifies KindStreamChunk's Meta["chunk"]
// convention, the only Kind allowed to repeat per node per step.
func TestEvent_StreamChunkCarriesText(t *testing.T) {
	chunk := Event{Kind: KindStreamChunk, RunID: "run-001", Step: 2, NodeID: "respond", Meta: map[string]interface{}{"chunk": "partial output"}}

	if chunk.Kind != KindStreamChunk {
		t.Errorf("expected KindStreamChunk, got %q", chunk.Kind)
	}
	text, ok := chunk.Meta["chunk"].(string)
	if !ok || text != "partial output" {
		t.Errorf("expected Meta[chunk] = %q, got %v", "partial output", chunk.Meta["chunk"])
	}
}

func TestEvent_ErrorCarriesErrorDetail(t *testing.T) {
	event := Event{
		Kind:   KindError,
		RunID:  "run-001",
		Step:   3,
		NodeID: "validator",
		Msg:    "validation failed",
		Meta:   map[string]interface{}{"error": "invalid input", "retryable": true},
	}

	if event.Meta["retryable"] != true {
		t.Error("expected retryable = true")
	}
	if event.Meta["error"] != "invalid input" {
		t.Errorf("expected error detail, got %v", event.Meta["error"])
	}
}

func TestEvent_CheckpointSavedIsNodeless(t *testing.T) {
	event := Event{Kind: KindCheckpointSaved, RunID: "run-001", Step: 5, Meta: map[string]interface{}{"checkpoint_id": "cp-5"}}

	if event.NodeID != "" {
		t.Errorf("expected checkpoint event to carry no NodeID, got %q", event.NodeID)
	}
	if event.Meta["checkpoint_id"] != "cp-5" {
		t.Errorf("expected checkpoint_id = cp-5, got %v", event.Meta["checkpoint_id"])
	}
}

func TestEvent_TerminalKindsAreDistinct(t *testing.T) {
	terminal := []Kind{KindCompleted, KindInterrupted, KindError}
	seen := make(map[Kind]bool, len(terminal))
	for _, k := range terminal {
		if seen[k] {
			t.Fatalf("duplicate terminal Kind %q", k)
		}
		seen[k] = true
	}
}
