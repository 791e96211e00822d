// Package memstore provides the one reference VectorStore/Embedding
// pair the retrieval package ships: an in-memory, linear-scan store
// for tests and local development, and a deterministic hash-based
// embedder standing in for a real provider. Neither is suitable for
// production scale; concrete cloud backends are out of scope per
// retrieval's own contract-only design.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kestrelai/agentgraph/retrieval"
)

// Store is a linear-scan, mutex-guarded VectorStore. Search cost is
// O(n) in the number of stored documents; fine for tests and small
// corpora, not meant to scale further.
type Store struct {
	mu        sync.RWMutex
	embedder  retrieval.Embedding
	documents map[string]retrieval.Document
	order     []string
}

// New returns an empty Store. embedder may be nil if every Document
// passed to Add already carries its own Embedding.
func New(embedder retrieval.Embedding) *Store {
	return &Store{embedder: embedder, documents: make(map[string]retrieval.Document)}
}

// Add inserts or replaces each document, embedding it first via the
// store's configured Embedding if it arrives without one.
func (s *Store) Add(ctx context.Context, docs []retrieval.Document) error {
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			if s.embedder == nil {
				return &retrieval.Error{Kind: retrieval.KindMissingEmbedding, Message: "document " + doc.ID + " has no embedding and no embedder is configured"}
			}
			vec, err := s.embedder.EmbedQuery(ctx, doc.Content)
			if err != nil {
				return &retrieval.Error{Kind: retrieval.KindInternal, Message: "embedding document " + doc.ID, Cause: err}
			}
			doc.Embedding = vec
		}

		s.mu.Lock()
		if _, exists := s.documents[doc.ID]; !exists {
			s.order = append(s.order, doc.ID)
		}
		s.documents[doc.ID] = doc
		s.mu.Unlock()
	}
	return nil
}

// Search returns the top-k documents by cosine similarity to
// queryEmbedding, restricted to those matching every key/value pair in
// filter.
func (s *Store) Search(_ context.Context, queryEmbedding []float32, k int, filter map[string]any) ([]retrieval.SearchResult, error) {
	if k <= 0 {
		return nil, &retrieval.Error{Kind: retrieval.KindInternal, Message: "k must be positive"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]retrieval.SearchResult, 0, len(s.order))
	for _, id := range s.order {
		doc := s.documents[id]
		if !matchesFilter(doc, filter) {
			continue
		}
		if len(doc.Embedding) != len(queryEmbedding) {
			return nil, &retrieval.Error{Kind: retrieval.KindDimensionMismatch, Message: "document " + doc.ID + " embedding dimension does not match query"}
		}
		results = append(results, retrieval.SearchResult{Document: doc, Score: cosineSimilarity(queryEmbedding, doc.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Delete removes documents by id. Unknown ids are ignored.
func (s *Store) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	kept := s.order[:0]
	for _, id := range s.order {
		if remove[id] {
			delete(s.documents, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

func matchesFilter(doc retrieval.Document, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := doc.Metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
