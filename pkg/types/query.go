package types

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is returned for contradictory or malformed query filters.
// It is the only retrieval error surfaced to callers; degraded-mode paths
// (missing embeddings, provider failures) never produce an error.
var ErrInvalidQuery = errors.New("invalid memory query")

// Query limit bounds
const (
	// DefaultQueryLimit is applied when a query does not specify a limit.
	DefaultQueryLimit = 10

	// MaxQueryLimit caps the number of results a single query may request.
	MaxQueryLimit = 100
)

// MemoryQuery describes a retrieval request. The free-text Query drives
// semantic scoring when an embedding provider is configured; MemoryType,
// SessionID and Tags are hard filters that must all match when present.
type MemoryQuery struct {
	// Query is the free-text query string.
	Query string `json:"query"`

	// MemoryType restricts results to a single tier (optional).
	MemoryType MemoryType `json:"memory_type,omitempty"`

	// SessionID restricts results to items recorded under a session (optional).
	SessionID string `json:"session_id,omitempty"`

	// Tags restricts results to items carrying every listed tag (optional).
	Tags []string `json:"tags,omitempty"`

	// Limit is the maximum number of results. Zero means DefaultQueryLimit;
	// values above MaxQueryLimit are rejected by Validate.
	Limit int `json:"limit,omitempty"`
}

// Validate checks the query filters for contradictions and malformed values.
// All errors wrap ErrInvalidQuery so callers can match with errors.Is.
func (q *MemoryQuery) Validate() error {
	if q.MemoryType != "" && !IsValidMemoryType(q.MemoryType) {
		return fmt.Errorf("%w: unknown memory type %q", ErrInvalidQuery, q.MemoryType)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.Limit)
	}
	if q.Limit > MaxQueryLimit {
		return fmt.Errorf("%w: limit %d exceeds maximum %d", ErrInvalidQuery, q.Limit, MaxQueryLimit)
	}
	// Factual and semantic items never carry a session id, so combining a
	// session filter with either tier can match nothing by construction.
	if q.SessionID != "" && (q.MemoryType == TypeFactual || q.MemoryType == TypeSemantic) {
		return fmt.Errorf("%w: session filter is contradictory for %s memory", ErrInvalidQuery, q.MemoryType)
	}
	for _, tag := range q.Tags {
		if tag == "" {
			return fmt.Errorf("%w: empty tag filter", ErrInvalidQuery)
		}
	}
	return nil
}

// EffectiveLimit returns the limit to apply after defaulting.
func (q *MemoryQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Matches reports whether the item passes the query's hard filters.
// The free-text Query is not a filter; it only influences scoring.
func (q *MemoryQuery) Matches(item *MemoryItem) bool {
	if q.MemoryType != "" && item.MemoryType != q.MemoryType {
		return false
	}
	if q.SessionID != "" && item.SessionID != q.SessionID {
		return false
	}
	for _, tag := range q.Tags {
		if !item.HasTag(tag) {
			return false
		}
	}
	return true
}
