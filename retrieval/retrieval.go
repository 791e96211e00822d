// Package retrieval defines the contracts a retrieval node composes —
// Embedding and VectorStore — plus a generic node that reads a query
// from state, searches a vector store, and writes the result documents
// back. Concrete backends beyond the in-memory reference
// implementation (retrieval/memstore) are out of scope here: this
// package specifies the shape a Pinecone/Qdrant/Weaviate/Chroma
// adapter would satisfy, not the adapter itself.
package retrieval

import (
	"context"
	"fmt"

	"github.com/kestrelai/agentgraph/graph"
)

// Document is one retrievable unit: free-text content plus metadata a
// filter can match against. Embedding is set once a VectorStore has
// computed or been given a vector for it; callers adding documents
// without a precomputed Embedding rely on the store's configured
// Embedding to fill it in.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// SearchResult pairs a Document with its similarity score against the
// query that produced it, highest first.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// ErrorKind enumerates the storage failure taxonomy.
type ErrorKind string

const (
	KindDimensionMismatch ErrorKind = "dimension_mismatch"
	KindInvalidID         ErrorKind = "invalid_id"
	KindInternal          ErrorKind = "internal"
	KindMissingEmbedding  ErrorKind = "missing_embedding"
	KindAPI               ErrorKind = "api"
)

// Error is the typed error returned by Embedding and VectorStore
// implementations. The Api* fields are only meaningful when Kind is
// KindAPI, mirroring a backend's HTTP-layer failure.
type Error struct {
	Kind         ErrorKind
	Message      string
	Cause        error
	APIStatus    int
	RetryAfter   string
	Namespace    string
	APIBatchSize int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("retrieval: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("retrieval: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Embedding converts text into vectors. Implementations should be safe
// for concurrent use, since a retrieval node may be scheduled alongside
// other nodes in the same step.
type Embedding interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorStore persists Documents and serves similarity search over
// them. Add computes missing embeddings via embedder only if the
// implementation was constructed with one; a nil embedder and a
// Document with no Embedding is a KindMissingEmbedding error.
type VectorStore interface {
	Add(ctx context.Context, docs []Document) error
	Search(ctx context.Context, queryEmbedding []float32, k int, filter map[string]any) ([]SearchResult, error)
	Delete(ctx context.Context, ids []string) error
}

// QueryReader is the capability trait a retrieval node uses to read its
// query and optional metadata filter from an arbitrary state type, and
// to write the resulting documents back, without the node depending on
// a concrete schema.
type QueryReader[S any] interface {
	Query(state S) string
	MetadataFilter(state S) map[string]any
	WriteResults(state S, results []SearchResult) S
}

// Options configures a retrieval node's search.
type Options struct {
	// TopK bounds how many results Search returns. Defaults to 4 if zero.
	TopK int
	// ScoreThreshold drops any result scoring below it. Zero disables
	// the filter.
	ScoreThreshold float64
}

// Node builds a graph.Node that embeds the query read from state via
// reader, searches store for the top-k matches above ScoreThreshold,
// and writes the surviving results back via reader.WriteResults.
func Node[S any](embedder Embedding, store VectorStore, reader QueryReader[S], opts Options) graph.Node[S] {
	topK := opts.TopK
	if topK <= 0 {
		topK = 4
	}

	return graph.NodeFunc[S](func(ctx context.Context, state S, gctx graph.GraphContext) (S, error) {
		query := reader.Query(state)
		if query == "" {
			return reader.WriteResults(state, nil), nil
		}

		queryEmbedding, err := embedder.EmbedQuery(ctx, query)
		if err != nil {
			return state, &graph.NodeError{NodeID: gctx.NodeID, Message: "embedding query failed", Cause: err}
		}

		results, err := store.Search(ctx, queryEmbedding, topK, reader.MetadataFilter(state))
		if err != nil {
			return state, &graph.NodeError{NodeID: gctx.NodeID, Message: "vector search failed", Cause: err}
		}

		if opts.ScoreThreshold > 0 {
			results = filterByThreshold(results, opts.ScoreThreshold)
		}

		return reader.WriteResults(state, results), nil
	})
}

func filterByThreshold(results []SearchResult, threshold float64) []SearchResult {
	kept := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}
