// Package llm provides the completion and embedding provider interfaces
// consumed by the memory subsystem, plus HTTP clients for Ollama, OpenAI
// and Anthropic. All clients wrap their calls with circuit breaker
// protection and client-side rate limiting.
package llm

import "context"

// TextGenerator is the interface for LLM text completion. The memory
// extractor is its only consumer inside this module; any error from
// Complete maps to "do not remember" at the extraction boundary.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Embed is batchable: it returns one vector per input text, in order.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
