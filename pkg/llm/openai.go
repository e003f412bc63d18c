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

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey            string
	Model             string        // default: gpt-4o-mini
	EmbeddingModel    string        // default: text-embedding-3-small
	BaseURL           string        // default: https://api.openai.com
	Timeout           time.Duration // default: 60s
	RequestsPerSecond float64       // zero means no limit
}

// OpenAIClient implements TextGenerator and EmbeddingGenerator using the
// OpenAI chat completions and embeddings APIs.
type OpenAIClient struct {
	cfg     OpenAIConfig
	client  *http.Client
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &OpenAIClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker(),
		limiter: limiter,
	}
}

// openAIChatRequest is the request body for POST /v1/chat/completions.
type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChatResponse is the response body from POST /v1/chat/completions.
type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// openAIEmbedRequest is the request body for POST /v1/embeddings.
// Input accepts a batch of texts.
type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// openAIEmbedResponse is the response body from POST /v1/embeddings.
type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Complete sends a single-turn completion to OpenAI and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqBody := openAIChatRequest{
		Model: c.cfg.Model,
		Messages: []openAIChatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respData.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return respData.Choices[0].Message.Content, nil
}

// Embed generates embeddings for the given texts in a single batched call.
// Returns one vector per input text, in order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
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
			return nil, fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([][]float32), nil
}

func (c *OpenAIClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqBody := openAIEmbedRequest{
		Model: c.cfg.EmbeddingModel,
		Input: texts,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respData.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(respData.Data), len(texts))
	}

	// The API documents in-order results but also carries an index field;
	// honor the index to be safe.
	embeddings := make([][]float32, len(texts))
	for _, d := range respData.Data {
		if d.Index < 0 || d.Index >= len(embeddings) {
			return nil, fmt.Errorf("openai returned out-of-range embedding index %d", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}

// Model returns the configured completion model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// Compile-time assertions.
var _ TextGenerator = (*OpenAIClient)(nil)
var _ EmbeddingGenerator = (*OpenAIClient)(nil)
