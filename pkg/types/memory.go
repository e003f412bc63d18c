package types

import "time"

// MemoryItem represents a single memory unit in one of the four tiers.
// Items are the atomic units of storage; every tier stores MemoryItems so
// that retrieval can rank across tiers with a single scoring pass.
type MemoryItem struct {
	// Core identification fields
	ID         string     `json:"id"`          // Unique identifier (format: mem:<uuid>), immutable
	Content    string     `json:"content"`     // Raw memory content
	MemoryType MemoryType `json:"memory_type"` // Tier this item belongs to

	// Factual tier only: the lookup key the fact was stored under.
	Key string `json:"key,omitempty"`

	// Temporal and access bookkeeping
	CreatedAt      time.Time `json:"created_at"`       // When the item was created
	LastAccessedAt time.Time `json:"last_accessed_at"` // Updated on every successful read
	AccessCount    int       `json:"access_count"`     // Number of successful reads

	// Quality signals
	Importance float64  `json:"importance"` // Importance score in [0.0, 1.0]
	Tags       []string `json:"tags,omitempty"`

	// SessionID is set for working-tier items (and episodic items recorded
	// under a session); factual and semantic items carry no session.
	SessionID string `json:"session_id,omitempty"`

	// Embedding is present only when an embedding provider was configured
	// and the write-path embedding call succeeded. Items without a vector
	// still participate in filter-based retrieval.
	Embedding []float32 `json:"embedding,omitempty"`

	// RelatedIDs holds non-owning graph edges to other item ids. Edges are
	// symmetric by convention and may dangle after the peer is removed;
	// a dangling edge is a lookup miss, never a fault.
	RelatedIDs []string `json:"related_ids,omitempty"`
}

// Touch records a successful read at the given instant.
func (m *MemoryItem) Touch(now time.Time) {
	m.LastAccessedAt = now
	m.AccessCount++
}

// Clone returns a copy of the item safe to hand to readers while writers
// keep mutating the original under the tier lock. Tags and RelatedIDs are
// copied; the embedding slice is shared because vectors are never mutated
// after they are attached.
func (m *MemoryItem) Clone() *MemoryItem {
	clone := *m
	if m.Tags != nil {
		clone.Tags = append([]string(nil), m.Tags...)
	}
	if m.RelatedIDs != nil {
		clone.RelatedIDs = append([]string(nil), m.RelatedIDs...)
	}
	return &clone
}

// HasTag reports whether the item carries the given tag.
func (m *MemoryItem) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
