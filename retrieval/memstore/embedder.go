package memstore

import (
	"context"
	"math"
)

// HashEmbedder is a deterministic stand-in for a real embedding
// provider: the same text always produces the same vector, and
// similar strings tend to land closer together, but it carries none of
// a real model's semantic understanding. Useful for tests and local
// development without a network call.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of the given
// dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

func (e *HashEmbedder) Dimension() int { return e.Dim }

func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.Dim)
	for i := 0; i < e.Dim; i++ {
		var sum float64
		for j, r := range text {
			sum += float64(r) * float64(i+j+1)
		}
		vec[i] = float32(math.Sin(sum / 1000.0))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
