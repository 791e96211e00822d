package emit

import "context"

// Emitter receives the Kind-tagged lifecycle events an Engine run
// produces: NodeEnter/NodeExit bracketing each node dispatch,
// StreamChunk for incremental output, CheckpointSaved after a persist,
// and Completed/Interrupted/Error as terminal events.
//
// Implementations must not block the run for long and must not panic;
// a slow or unreliable backend should buffer or drop, never stall
// scheduling.
type Emitter interface {
	// Emit delivers one event. Called once per lifecycle point by the
	// engine, synchronously and never concurrently: lifecycle events come
	// from its scheduling goroutine, stream chunks from a single draining
	// goroutine that runs while the scheduler waits on a step's nodes.
	Emit(event Event)

	// EmitBatch delivers events as a group, in the order given, for
	// emitters that reduce overhead by batching rather than writing one
	// event at a time. Return an error only for a failure that makes the
	// whole batch unusable; prefer logging and continuing for
	// per-event failures.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until every event handed to Emit/EmitBatch so far has
	// reached its backend, or ctx is done. Safe to call more than once.
	Flush(ctx context.Context) error
}
