package store

import (
	"sync"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// WorkingStore holds ephemeral, session-scoped context. Items are kept in
// insertion order so the working context can be rendered for prompt
// injection, and every item is destroyed (not marked) when its owning
// session ends.
type WorkingStore struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*types.MemoryItem
	order    []string // item ids in insertion order
}

// NewWorkingStore creates a working store with the given capacity.
func NewWorkingStore(capacity int) *WorkingStore {
	return &WorkingStore{
		capacity: capacity,
		items:    make(map[string]*types.MemoryItem),
	}
}

// Insert admits the item, evicting the lowest-ranked resident item first
// if the store is at capacity. Returns the evicted item id, or "".
func (s *WorkingStore) Insert(item *types.MemoryItem) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := ""
	if s.capacity > 0 && len(s.items) >= s.capacity {
		evicted = lowestRanked(s.items)
		if evicted != "" {
			delete(s.items, evicted)
			s.order = removeFromOrder(s.order, evicted)
		}
	}

	s.items[item.ID] = item
	s.order = append(s.order, item.ID)
	return evicted
}

// SessionItems returns clones of the session's items in insertion order.
func (s *WorkingStore) SessionItems(sessionID string) []*types.MemoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.MemoryItem
	for _, id := range s.order {
		item := s.items[id]
		if item != nil && item.SessionID == sessionID {
			out = append(out, item.Clone())
		}
	}
	return out
}

// DestroySession removes every item belonging to the session and returns
// the count destroyed.
func (s *WorkingStore) DestroySession(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	destroyed := 0
	for id, item := range s.items {
		if item.SessionID == sessionID {
			delete(s.items, id)
			s.order = removeFromOrder(s.order, id)
			destroyed++
		}
	}
	return destroyed
}

// List returns clones of all resident items in insertion order.
func (s *WorkingStore) List() []*types.MemoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.MemoryItem, 0, len(s.items))
	for _, id := range s.order {
		if item := s.items[id]; item != nil {
			out = append(out, item.Clone())
		}
	}
	return out
}

// Get returns a clone of the item without touching access bookkeeping.
func (s *WorkingStore) Get(id string) (*types.MemoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Touch records a successful read on the item.
func (s *WorkingStore) Touch(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false
	}
	item.Touch(now)
	return true
}

// Remove deletes the item.
func (s *WorkingStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	s.order = removeFromOrder(s.order, id)
	return true
}

// Sweep removes every item the callback selects, all under one lock hold.
func (s *WorkingStore) Sweep(remove func(*types.MemoryItem) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, item := range s.items {
		if remove(item) {
			delete(s.items, id)
			s.order = removeFromOrder(s.order, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of resident items.
func (s *WorkingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

var _ Tier = (*WorkingStore)(nil)
