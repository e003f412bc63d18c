package types

// Stats is a point-in-time, read-only snapshot of manager state. Producing
// a Stats never mutates access bookkeeping.
type Stats struct {
	// Per-tier resident item counts.
	WorkingCount  int `json:"working_count"`
	FactCount     int `json:"fact_count"`
	EpisodicCount int `json:"episodic_count"`
	SemanticCount int `json:"semantic_count"`

	// Session state at snapshot time.
	SessionState SessionState `json:"session_state"`
	SessionID    string       `json:"session_id,omitempty"`

	// Decay counters.
	DecayRuns    int64 `json:"decay_runs"`
	DecayRemoved int64 `json:"decay_removed"`

	// Operation counters.
	StoreOps            int64 `json:"store_ops"`
	RetrieveOps         int64 `json:"retrieve_ops"`
	Evictions           int64 `json:"evictions"`
	ExtractionFailures  int64 `json:"extraction_failures"`
	EmbeddingFailures   int64 `json:"embedding_failures"`
	ExtractionsAccepted int64 `json:"extractions_accepted"`
}

// TotalCount returns the number of items resident across all tiers.
func (s Stats) TotalCount() int {
	return s.WorkingCount + s.FactCount + s.EpisodicCount + s.SemanticCount
}
