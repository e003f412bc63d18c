package store

import (
	"sync"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// SemanticStore holds confidence-weighted general knowledge. Each concept
// is keyed by its exact content and mirrored into a companion MemoryItem
// (importance tracks confidence) so the tier participates in cross-tier
// retrieval and rank-based eviction with the same rules as the others.
type SemanticStore struct {
	mu          sync.RWMutex
	capacity    int
	concepts    map[string]*types.SemanticConcept // content key -> concept
	items       map[string]*types.MemoryItem      // item id -> item
	idByContent map[string]string                 // content key -> item id
}

// NewSemanticStore creates a semantic store with the given capacity.
func NewSemanticStore(capacity int) *SemanticStore {
	return &SemanticStore{
		capacity:    capacity,
		concepts:    make(map[string]*types.SemanticConcept),
		items:       make(map[string]*types.MemoryItem),
		idByContent: make(map[string]string),
	}
}

// StoreConcept admits a concept and its companion item, evicting the
// lowest-ranked resident concept first if the store is at capacity.
// Storing a concept whose content already exists keeps the resident
// record (confidence never regresses) and only raises its confidence if
// the incoming value is higher. Returns the id the concept lives under
// and the id of any evicted item.
func (s *SemanticStore) StoreConcept(concept *types.SemanticConcept, item *types.MemoryItem) (id string, evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.idByContent[concept.Content]; ok {
		existing := s.concepts[concept.Content]
		if concept.Confidence > existing.Confidence {
			existing.Confidence = concept.Confidence
			s.items[existingID].Importance = concept.Confidence
		}
		return existingID, ""
	}

	if s.capacity > 0 && len(s.concepts) >= s.capacity {
		evicted = lowestRanked(s.items)
		if evicted != "" {
			s.removeLocked(evicted)
		}
	}

	s.concepts[concept.Content] = concept
	s.items[item.ID] = item
	s.idByContent[concept.Content] = item.ID
	return item.ID, evicted
}

// Reinforce applies one reinforcement event to the concept stored under
// the exact content key, returning the new confidence. The companion
// item's importance follows the confidence and the access is recorded.
// Returns ErrNotFound when no concept matches.
func (s *SemanticStore) Reinforce(contentKey string, gain float64, now time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	concept, ok := s.concepts[contentKey]
	if !ok {
		return 0, ErrNotFound
	}

	concept.Reinforce(gain)

	id := s.idByContent[contentKey]
	item := s.items[id]
	item.Importance = concept.Confidence
	item.Touch(now)

	return concept.Confidence, nil
}

// Concept returns a copy of the concept stored under the content key.
func (s *SemanticStore) Concept(contentKey string) (types.SemanticConcept, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	concept, ok := s.concepts[contentKey]
	if !ok {
		return types.SemanticConcept{}, false
	}
	return *concept, true
}

// List returns clones of all companion items.
func (s *SemanticStore) List() []*types.MemoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.items)
}

// Get returns a clone of the item without touching access bookkeeping.
func (s *SemanticStore) Get(id string) (*types.MemoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Touch records a successful read on the item.
func (s *SemanticStore) Touch(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false
	}
	item.Touch(now)
	return true
}

// Remove deletes the item and its concept.
func (s *SemanticStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

// removeLocked deletes item and concept. Caller holds the lock.
func (s *SemanticStore) removeLocked(id string) {
	if item, ok := s.items[id]; ok {
		delete(s.concepts, item.Content)
		delete(s.idByContent, item.Content)
	}
	delete(s.items, id)
}

// Sweep removes every concept whose companion item the callback selects,
// all under one lock hold.
func (s *SemanticStore) Sweep(remove func(*types.MemoryItem) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, item := range s.items {
		if remove(item) {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Len returns the number of resident concepts.
func (s *SemanticStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

var _ Tier = (*SemanticStore)(nil)
