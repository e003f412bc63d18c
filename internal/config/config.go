// Package config provides configuration management for Engram.
// It loads settings from environment variables with the ENGRAM_ prefix
// and provides sensible defaults for all configuration options.
//
// An optional YAML file can be layered on top: Load reads the environment
// first and lets non-zero file values take precedence, so a deployment
// can pin its tuning in a file while secrets stay in the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/engramdev/engram/pkg/llm"
	"github.com/engramdev/engram/pkg/memory"
)

// Config holds all configuration settings for an Engram deployment.
type Config struct {
	Memory  memory.Config `yaml:"memory"`
	LLM     LLMConfig     `yaml:"llm"`
	Archive ArchiveConfig `yaml:"archive"`
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider             string  `yaml:"provider"`               // LLM provider: ollama, openai, anthropic, none (default: none)
	OllamaURL            string  `yaml:"ollama_url"`             // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string  `yaml:"ollama_model"`           // Ollama model for extraction (default: qwen2.5:7b)
	OllamaEmbeddingModel string  `yaml:"ollama_embedding_model"` // Ollama model for embeddings (default: nomic-embed-text)
	OpenAIAPIKey         string  `yaml:"openai_api_key"`
	OpenAIModel          string  `yaml:"openai_model"`           // (default: gpt-4o-mini)
	OpenAIEmbeddingModel string  `yaml:"openai_embedding_model"` // (default: text-embedding-3-small)
	AnthropicAPIKey      string  `yaml:"anthropic_api_key"`
	AnthropicModel       string  `yaml:"anthropic_model"` // (default: claude-haiku-4-5-20251001)
	RequestsPerSecond    float64 `yaml:"requests_per_second"`
	TimeoutSeconds       int     `yaml:"timeout_seconds"`
}

// ArchiveConfig contains durable archive configuration.
type ArchiveConfig struct {
	Engine      string `yaml:"engine"`       // Archive engine: none, sqlite, postgres (default: none)
	SQLitePath  string `yaml:"sqlite_path"`  // SQLite database path (default: ./data/engram.db)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres connection string
}

// Load builds configuration from environment variables and defaults, then
// overlays the YAML file at path when path is non-empty. File values take
// precedence over the environment.
func Load(path string) (*Config, error) {
	cfg := buildBaseConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.Memory.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ProviderConfig translates the LLM section into the provider factory's
// configuration for the selected provider.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Provider:          c.LLM.Provider,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		Timeout:           time.Duration(c.LLM.TimeoutSeconds) * time.Second,
	}

	switch c.LLM.Provider {
	case "ollama":
		pc.BaseURL = c.LLM.OllamaURL
		pc.Model = c.LLM.OllamaModel
		pc.EmbeddingModel = c.LLM.OllamaEmbeddingModel
	case "openai":
		pc.APIKey = c.LLM.OpenAIAPIKey
		pc.Model = c.LLM.OpenAIModel
		pc.EmbeddingModel = c.LLM.OpenAIEmbeddingModel
	case "anthropic":
		pc.APIKey = c.LLM.AnthropicAPIKey
		pc.Model = c.LLM.AnthropicModel
	}
	return pc
}

// buildBaseConfig constructs a Config with values from environment
// variables and defaults.
func buildBaseConfig() *Config {
	mem := memory.DefaultConfig()
	mem.WorkingCapacity = getEnvInt("ENGRAM_WORKING_CAPACITY", mem.WorkingCapacity)
	mem.FactCapacity = getEnvInt("ENGRAM_FACT_CAPACITY", mem.FactCapacity)
	mem.EpisodicCapacity = getEnvInt("ENGRAM_EPISODIC_CAPACITY", mem.EpisodicCapacity)
	mem.SemanticCapacity = getEnvInt("ENGRAM_SEMANTIC_CAPACITY", mem.SemanticCapacity)

	return &Config{
		Memory: mem,
		LLM: LLMConfig{
			Provider:             getEnv("ENGRAM_LLM_PROVIDER", "none"),
			OllamaURL:            getEnv("ENGRAM_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("ENGRAM_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel: getEnv("ENGRAM_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:         getEnv("ENGRAM_OPENAI_API_KEY", ""),
			OpenAIModel:          getEnv("ENGRAM_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIEmbeddingModel: getEnv("ENGRAM_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			AnthropicAPIKey:      getEnv("ENGRAM_ANTHROPIC_API_KEY", ""),
			AnthropicModel:       getEnv("ENGRAM_ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
			RequestsPerSecond:    getEnvFloat("ENGRAM_LLM_RPS", 0),
			TimeoutSeconds:       getEnvInt("ENGRAM_LLM_TIMEOUT_SECONDS", 30),
		},
		Archive: ArchiveConfig{
			Engine:      getEnv("ENGRAM_ARCHIVE_ENGINE", "none"),
			SQLitePath:  getEnv("ENGRAM_ARCHIVE_SQLITE_PATH", "./data/engram.db"),
			PostgresDSN: getEnv("ENGRAM_ARCHIVE_POSTGRES_DSN", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
