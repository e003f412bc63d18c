package memory

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/engramdev/engram/pkg/llm"
)

// EmbeddingIndex wraps an optional EmbeddingGenerator. When no provider
// is configured every call is a cheap no-op and retrieval falls back to
// importance/recency scoring; when a provider call fails the failure is
// logged and the caller proceeds without a vector. Embedding problems are
// never surfaced as errors.
type EmbeddingIndex struct {
	gen     llm.EmbeddingGenerator
	timeout time.Duration
	onError func() // counter hook, may be nil
}

// NewEmbeddingIndex creates an index over the given generator. A nil
// generator produces a disabled index.
func NewEmbeddingIndex(gen llm.EmbeddingGenerator, timeout time.Duration, onError func()) *EmbeddingIndex {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &EmbeddingIndex{gen: gen, timeout: timeout, onError: onError}
}

// Enabled reports whether an embedding provider is configured.
func (e *EmbeddingIndex) Enabled() bool {
	return e != nil && e.gen != nil
}

// Embed returns the vector for a single text, or ok=false when the index
// is disabled or the provider call failed. Failures are logged, counted
// and swallowed: the write path stores the item without a vector.
func (e *EmbeddingIndex) Embed(ctx context.Context, text string) ([]float32, bool) {
	if !e.Enabled() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vectors, err := e.gen.Embed(ctx, []string{text})
	if err != nil || len(vectors) == 0 || len(vectors[0]) == 0 {
		log.Printf("WARNING: embedding failed (model=%s): %v", e.gen.Model(), err)
		if e.onError != nil {
			e.onError()
		}
		return nil, false
	}
	return vectors[0], true
}

// CosineSimilarity returns the cosine similarity of two vectors, or 0
// when either vector is empty or the dimensions disagree.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

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
