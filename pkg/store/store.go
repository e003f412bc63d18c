// Package store provides the four independent retention tiers of the
// memory subsystem: working (session-scoped), factual (key-value),
// episodic (sealed records) and semantic (confidence-weighted concepts).
//
// Each store owns its items behind its own mutex and enforces its own
// capacity: inserting past capacity evicts the single lowest-ranked
// resident item (lowest importance, ties broken by oldest last access)
// before the new item is admitted. Stores never share locks, so a sweep
// or write on one tier never blocks the others.
package store

import (
	"errors"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("memory not found")

// Tier is the uniform read/sweep surface every tier store exposes to the
// decay and retrieval engines. List returns clones so readers never see
// concurrent mutation; access bookkeeping goes through Touch so it is
// serialized with writes.
type Tier interface {
	// List returns clones of all resident items.
	List() []*types.MemoryItem

	// Get returns a clone of the item without touching access bookkeeping.
	Get(id string) (*types.MemoryItem, bool)

	// Touch records a successful read on the item. Returns false on miss.
	Touch(id string, now time.Time) bool

	// Remove deletes the item. Returns false on miss.
	Remove(id string) bool

	// Sweep evaluates remove against every resident item and deletes the
	// items it returns true for, returning the count removed. The whole
	// pass runs under one write-lock hold, so no Touch or Insert can land
	// between an item's evaluation and its removal. The callback must
	// treat the item as read-only.
	Sweep(remove func(*types.MemoryItem) bool) int

	// Len returns the number of resident items.
	Len() int
}

// ranksBelow reports whether a would be evicted before b: lower importance
// first, ties broken by the older last access time.
func ranksBelow(a, b *types.MemoryItem) bool {
	if a.Importance != b.Importance {
		return a.Importance < b.Importance
	}
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}

// lowestRanked returns the id of the lowest-ranked item in the map, or ""
// when the map is empty.
func lowestRanked(items map[string]*types.MemoryItem) string {
	var lowest *types.MemoryItem
	lowestID := ""
	for id, item := range items {
		if lowest == nil || ranksBelow(item, lowest) {
			lowest = item
			lowestID = id
		}
	}
	return lowestID
}

// cloneAll returns clones of every item in the map.
func cloneAll(items map[string]*types.MemoryItem) []*types.MemoryItem {
	out := make([]*types.MemoryItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}

// removeFromOrder deletes id from an insertion-order slice.
func removeFromOrder(order []string, id string) []string {
	for i, existing := range order {
		if existing == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
