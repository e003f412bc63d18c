package llm

import (
	"fmt"
	"time"
)

// ProviderConfig selects and configures a provider for the factory functions.
type ProviderConfig struct {
	// Provider is one of "ollama" (default), "openai", "anthropic".
	Provider string

	APIKey  string
	BaseURL string

	// Model is the completion model; EmbeddingModel the embedding model.
	Model          string
	EmbeddingModel string

	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewTextGenerator creates the appropriate TextGenerator for the config.
// Provider "none" returns (nil, nil); callers treat a nil generator as
// "extraction disabled".
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the appropriate EmbeddingGenerator.
// Returns (nil, nil) for providers without an embedding endpoint
// (Anthropic); callers treat a nil generator as "embeddings disabled".
func NewEmbeddingGenerator(cfg ProviderConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:            cfg.APIKey,
			EmbeddingModel:    cfg.EmbeddingModel,
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "ollama", "":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "anthropic":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}
