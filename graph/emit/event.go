package emit

// Kind names the lifecycle point an Event represents, per the engine's
// step protocol: NodeEnter/NodeExit bracket a node dispatch, Error
// replaces NodeExit on failure, CheckpointSaved follows a successful
// persist, and Completed/Interrupted terminate the run.
type Kind string

const (
	KindNodeEnter       Kind = "node_enter"
	KindNodeExit        Kind = "node_exit"
	KindError           Kind = "error"
	KindCheckpointSaved Kind = "checkpoint_saved"
	KindCompleted       Kind = "completed"
	KindInterrupted     Kind = "interrupted"
	// KindStreamChunk marks one incremental piece of model output a node
	// produced mid-dispatch, carried in Meta["chunk"]. Unlike the other
	// kinds it can occur multiple times per node per step.
	KindStreamChunk Kind = "stream_chunk"
)

// Event represents an observability event emitted during workflow execution.
//
// Events provide detailed insight into workflow behavior:
//   - Node execution start/complete
//   - State changes and transitions
//   - Errors and warnings
//   - Performance metrics
//   - Checkpoint operations
//
// Events are emitted to an Emitter which can:
//   - Log to stdout/stderr
//   - Send to OpenTelemetry
//   - Store in time-series databases
//   - Trigger alerts
type Event struct {
	// Kind classifies this event for consumers that want to branch on it
	// rather than parsing Msg. Zero value is the empty string for
	// callers that only ever used free-text Msg.
	Kind Kind

	// RunID identifies the workflow execution that emitted this event.
	RunID string

	// Step is the sequential step number in the workflow (1-indexed).
	// Workflow-level events (Completed, Interrupted, a run-level Error)
	// carry the engine's step number at the point the run ended.
	Step int

	// NodeID identifies which node emitted this event.
	// Empty string for workflow-level events.
	NodeID string

	// Msg is a human-readable description of the event.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Execution duration in milliseconds
	//   - "error": Error details
	//   - "tokens": Token count for LLM calls
	//   - "checkpoint_id": Checkpoint identifier
	//   - "retryable": Whether an error can be retried
	Meta map[string]interface{}
}
