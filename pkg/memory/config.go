package memory

import (
	"fmt"
	"time"
)

// Default capacity and tuning values.
const (
	defaultWorkingCapacity  = 100
	defaultFactCapacity     = 1000
	defaultEpisodicCapacity = 200
	defaultSemanticCapacity = 500

	// defaultReinforcementGain is the fixed gain k in the saturating
	// confidence update confidence += (1-confidence)*k.
	defaultReinforcementGain = 0.2

	// defaultRecencyHalfLife controls the exp(-idle/halflife) term in
	// retrieval scoring.
	defaultRecencyHalfLife = 7 * 24 * time.Hour

	// defaultLinkTopK and defaultLinkMinSimilarity bound automatic graph
	// linking of freshly embedded items.
	defaultLinkTopK          = 3
	defaultLinkMinSimilarity = 0.75

	// defaultProviderTimeout bounds the extraction and embedding calls,
	// the only operations that may suspend on external latency.
	defaultProviderTimeout = 10 * time.Second
)

// Weights configures the retrieval scoring combination
//
//	score = Similarity*sim + Importance*imp + Recency*exp(-idle/halflife)
//
// The weights are renormalized over importance and recency for candidates
// without a vector (or when no embedding provider is configured), so
// retrieval degrades in ranking quality only, never errors.
type Weights struct {
	Similarity float64 `json:"similarity" yaml:"similarity"`
	Importance float64 `json:"importance" yaml:"importance"`
	Recency    float64 `json:"recency" yaml:"recency"`
}

// DefaultWeights favor similarity when embeddings are available.
func DefaultWeights() Weights {
	return Weights{Similarity: 0.60, Importance: 0.25, Recency: 0.15}
}

// Config holds manager tuning. Use DefaultConfig for sensible defaults.
type Config struct {
	// Per-tier capacities. Zero disables the capacity bound for a tier.
	WorkingCapacity  int `yaml:"working_capacity"`
	FactCapacity     int `yaml:"fact_capacity"`
	EpisodicCapacity int `yaml:"episodic_capacity"`
	SemanticCapacity int `yaml:"semantic_capacity"`

	// ReinforcementGain is the fixed gain for concept reinforcement.
	ReinforcementGain float64 `yaml:"reinforcement_gain"`

	// RecencyHalfLife controls the recency decay term in retrieval scoring.
	RecencyHalfLife time.Duration `yaml:"recency_half_life"`

	// Weights configures retrieval scoring.
	Weights Weights `yaml:"weights"`

	// LinkTopK and LinkMinSimilarity bound automatic related-memory
	// linking on embedded writes. LinkTopK zero disables linking.
	LinkTopK          int     `yaml:"link_top_k"`
	LinkMinSimilarity float64 `yaml:"link_min_similarity"`

	// ProviderTimeout bounds each extraction or embedding provider call.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		WorkingCapacity:   defaultWorkingCapacity,
		FactCapacity:      defaultFactCapacity,
		EpisodicCapacity:  defaultEpisodicCapacity,
		SemanticCapacity:  defaultSemanticCapacity,
		ReinforcementGain: defaultReinforcementGain,
		RecencyHalfLife:   defaultRecencyHalfLife,
		Weights:           DefaultWeights(),
		LinkTopK:          defaultLinkTopK,
		LinkMinSimilarity: defaultLinkMinSimilarity,
		ProviderTimeout:   defaultProviderTimeout,
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.WorkingCapacity < 0 || c.FactCapacity < 0 || c.EpisodicCapacity < 0 || c.SemanticCapacity < 0 {
		return fmt.Errorf("capacities must be >= 0")
	}
	if c.ReinforcementGain < 0 || c.ReinforcementGain > 1 {
		return fmt.Errorf("reinforcement gain must be in [0, 1], got %f", c.ReinforcementGain)
	}
	if c.RecencyHalfLife <= 0 {
		return fmt.Errorf("recency half-life must be > 0")
	}
	if c.Weights.Similarity < 0 || c.Weights.Importance < 0 || c.Weights.Recency < 0 {
		return fmt.Errorf("scoring weights must be >= 0")
	}
	if c.Weights.Similarity+c.Weights.Importance+c.Weights.Recency == 0 {
		return fmt.Errorf("at least one scoring weight must be > 0")
	}
	if c.LinkMinSimilarity < 0 || c.LinkMinSimilarity > 1 {
		return fmt.Errorf("link similarity threshold must be in [0, 1], got %f", c.LinkMinSimilarity)
	}
	return nil
}
