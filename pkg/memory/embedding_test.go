package memory

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"empty", nil, nil, 0.0},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 0.0001 {
				t.Errorf("CosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestEmbeddingIndex_DisabledIsNoOp(t *testing.T) {
	index := NewEmbeddingIndex(nil, 0, nil)
	if index.Enabled() {
		t.Error("Index without a provider should be disabled")
	}
	if vec, ok := index.Embed(context.Background(), "text"); ok || vec != nil {
		t.Error("Disabled index should return no vector")
	}
}

func TestEmbeddingIndex_EmbedsThroughProvider(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"hello": {1, 2, 3}}}
	index := NewEmbeddingIndex(embedder, time.Second, nil)

	vec, ok := index.Embed(context.Background(), "hello")
	if !ok {
		t.Fatal("Embed should succeed")
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Errorf("Unexpected vector %v", vec)
	}
}
