package emit

import "context"

// NullEmitter discards every event: a zero-overhead Emitter for a
// Program that has no observer bound and whose engine code should
// still call Emit/EmitBatch/Flush unconditionally.
type NullEmitter struct{}

// NewNullEmitter returns a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit implements Emitter.
func (n *NullEmitter) Emit(event Event) {}

// EmitBatch implements Emitter.
func (n *NullEmitter) EmitBatch(_ context.Context, events []Event) error { return nil }

// Flush implements Emitter.
func (n *NullEmitter) Flush(_ context.Context) error { return nil }
