// Package types defines the core data structures for the Engram memory
// subsystem: memory items, episodes, semantic concepts, sessions, queries
// and statistics shared by the tier stores and the memory manager.
package types

import "github.com/google/uuid"

// MemoryType classifies which retention tier a memory item belongs to.
type MemoryType string

// Memory tier constants
const (
	// TypeWorking is ephemeral, session-scoped context destroyed at session end.
	TypeWorking MemoryType = "working"

	// TypeFactual is persistent key-value storage of discrete facts.
	TypeFactual MemoryType = "factual"

	// TypeEpisodic is append-only, sealed-once records of bounded interactions.
	TypeEpisodic MemoryType = "episodic"

	// TypeSemantic is confidence-weighted general knowledge reinforced over time.
	TypeSemantic MemoryType = "semantic"
)

// ValidMemoryTypes is a slice of all valid memory types for validation.
var ValidMemoryTypes = []MemoryType{
	TypeWorking,
	TypeFactual,
	TypeEpisodic,
	TypeSemantic,
}

// IsValidMemoryType checks if the given memory type is valid.
func IsValidMemoryType(memoryType MemoryType) bool {
	for _, validType := range ValidMemoryTypes {
		if validType == memoryType {
			return true
		}
	}
	return false
}

// NewItemID returns a globally unique memory item identifier.
// The "mem:" prefix makes item ids recognizable in logs and graph edges.
func NewItemID() string {
	return "mem:" + uuid.New().String()
}

// NewEpisodeID returns a globally unique episode identifier.
func NewEpisodeID() string {
	return "ep:" + uuid.New().String()
}
