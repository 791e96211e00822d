package retrieval

import (
	"context"
	"errors"

	"github.com/kestrelai/agentgraph/graph"
	"github.com/kestrelai/agentgraph/graph/store"
)

// TranscriptMessage is one turn of a per-thread chat history, the unit
// a memory node reads from and writes to a Checkpointer-backed store.
type TranscriptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatHistoryAdapter is the capability trait a memory node uses to
// read the thread a state belongs to and its locally-held transcript,
// and to merge in messages recalled from a prior checkpoint.
type ChatHistoryAdapter[S any] interface {
	ThreadID(state S) string
	Transcript(state S) []TranscriptMessage
	MergeTranscript(state S, recalled []TranscriptMessage) S
}

// MemoryNode builds a graph.Node that recalls the transcript held in
// the most recent checkpoint for the current state's thread (via
// adapter.ThreadID) from checkpointer, and merges it into the state
// the node receives. A thread with no prior checkpoint (store.ErrNotFound)
// is not an error: the node simply passes the state through unchanged,
// since an empty transcript is the correct starting point for a new
// thread.
func MemoryNode[S any](checkpointer store.Checkpointer[S], adapter ChatHistoryAdapter[S]) graph.Node[S] {
	return graph.NodeFunc[S](func(ctx context.Context, state S, gctx graph.GraphContext) (S, error) {
		threadID := adapter.ThreadID(state)
		if threadID == "" {
			return state, nil
		}

		cp, err := checkpointer.Load(ctx, threadID)
		if errors.Is(err, store.ErrNotFound) {
			return state, nil
		}
		if err != nil {
			return state, &graph.NodeError{NodeID: gctx.NodeID, Message: "loading prior transcript failed", Cause: err}
		}

		recalled := adapter.Transcript(cp.State)
		return adapter.MergeTranscript(state, recalled), nil
	})
}
