package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name used for completions and embeddings
	// (default: qwen2.5:7b for completion, nomic-embed-text for embeddings).
	Model string

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero means no limit.
	RequestsPerSecond float64
}

// OllamaClient talks to a local Ollama instance for completion and
// embedding generation. All calls go through circuit breaker protection
// and an optional client-side rate limiter.
type OllamaClient struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ollamaEmbedRequest is the request body for /api/embed. Input accepts a
// list of texts; the response carries one embedding per input, in order.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client with the given configuration.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &OllamaClient{
		baseURL: config.BaseURL,
		model:   config.Model,
		timeout: config.Timeout,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: NewCircuitBreaker(),
		limiter: limiter,
	}
}

// Complete sends a completion request to Ollama and returns the response text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *OllamaClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return respData.Response, nil
}

// Embed generates embeddings for the given texts in a single batched call.
// Returns one vector per input text, in order.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([][]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := ollamaEmbedRequest{
		Model: c.model,
		Input: texts,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(respData.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(respData.Embeddings), len(texts))
	}
	return respData.Embeddings, nil
}

// HealthCheck verifies that Ollama is reachable via the /api/version endpoint.
// It bypasses the circuit breaker since it is a health check itself.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Compile-time assertions that OllamaClient satisfies both provider interfaces.
var _ TextGenerator = (*OllamaClient)(nil)
var _ EmbeddingGenerator = (*OllamaClient)(nil)
