package store

import (
	"sync"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// FactStore is the persistent key-value tier. Keys are unique: storing to
// an existing key overwrites the value but preserves the item's identity,
// original creation time and access history.
type FactStore struct {
	mu       sync.RWMutex
	capacity int
	byID     map[string]*types.MemoryItem
	byKey    map[string]string // fact key -> item id
}

// NewFactStore creates a fact store with the given capacity.
func NewFactStore(capacity int) *FactStore {
	return &FactStore{
		capacity: capacity,
		byID:     make(map[string]*types.MemoryItem),
		byKey:    make(map[string]string),
	}
}

// Upsert stores the fact item under item.Key. When the key already exists
// the resident item keeps its id, CreatedAt and access bookkeeping; only
// the value-carrying fields (content, importance, tags, embedding) are
// replaced. Returns the id the fact lives under and the id of any item
// evicted to make room.
func (s *FactStore) Upsert(item *types.MemoryItem) (id string, evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byKey[item.Key]; ok {
		existing := s.byID[existingID]
		existing.Content = item.Content
		existing.Importance = item.Importance
		existing.Tags = item.Tags
		existing.Embedding = item.Embedding
		return existingID, ""
	}

	if s.capacity > 0 && len(s.byID) >= s.capacity {
		evicted = lowestRanked(s.byID)
		if evicted != "" {
			s.removeLocked(evicted)
		}
	}

	s.byID[item.ID] = item
	s.byKey[item.Key] = item.ID
	return item.ID, evicted
}

// GetByKey returns a clone of the fact stored under key and records the
// access. The second return is false when the key is absent.
func (s *FactStore) GetByKey(key string, now time.Time) (*types.MemoryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, false
	}
	item := s.byID[id]
	item.Touch(now)
	return item.Clone(), true
}

// List returns clones of all resident items.
func (s *FactStore) List() []*types.MemoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.byID)
}

// Get returns a clone of the item without touching access bookkeeping.
func (s *FactStore) Get(id string) (*types.MemoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Touch records a successful read on the item.
func (s *FactStore) Touch(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.byID[id]
	if !ok {
		return false
	}
	item.Touch(now)
	return true
}

// Remove deletes the item and its key mapping.
func (s *FactStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

// removeLocked deletes the item and its key mapping. Caller holds the lock.
func (s *FactStore) removeLocked(id string) {
	if item, ok := s.byID[id]; ok {
		delete(s.byKey, item.Key)
	}
	delete(s.byID, id)
}

// Sweep removes every item the callback selects, all under one lock hold.
// Key mappings of removed facts are dropped with them.
func (s *FactStore) Sweep(remove func(*types.MemoryItem) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, item := range s.byID {
		if remove(item) {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Len returns the number of resident items.
func (s *FactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ Tier = (*FactStore)(nil)
