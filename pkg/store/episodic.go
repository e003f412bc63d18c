package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// EpisodicStore holds sealed episodes. Every sealed episode is stored
// twice over: the Episode record itself (for ordered recall) and a
// companion MemoryItem carrying a flattened rendering of the episode so
// the tier participates in cross-tier retrieval. The companion item uses
// the episode's id, so eviction and removal stay in lockstep.
type EpisodicStore struct {
	mu        sync.RWMutex
	capacity  int
	episodes  map[string]*types.Episode
	items     map[string]*types.MemoryItem
	sealOrder []string // episode ids in seal order, oldest first
}

// NewEpisodicStore creates an episodic store with the given capacity.
func NewEpisodicStore(capacity int) *EpisodicStore {
	return &EpisodicStore{
		capacity: capacity,
		episodes: make(map[string]*types.Episode),
		items:    make(map[string]*types.MemoryItem),
	}
}

// AddSealed admits a sealed episode and its companion retrieval item,
// evicting the lowest-ranked resident episode first if the store is at
// capacity. The episode must already be sealed and the item must carry
// the episode's id.
func (s *EpisodicStore) AddSealed(ep *types.Episode, item *types.MemoryItem) (evicted string, err error) {
	if !ep.IsSealed() {
		return "", fmt.Errorf("episode %s is not sealed", ep.ID)
	}
	if item.ID != ep.ID {
		return "", fmt.Errorf("companion item id %s does not match episode id %s", item.ID, ep.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 && len(s.episodes) >= s.capacity {
		evicted = lowestRanked(s.items)
		if evicted != "" {
			s.removeLocked(evicted)
		}
	}

	s.episodes[ep.ID] = ep
	s.items[ep.ID] = item
	s.sealOrder = append(s.sealOrder, ep.ID)
	return evicted, nil
}

// Recent returns clones of up to n most recently sealed episodes,
// newest first.
func (s *EpisodicStore) Recent(n int) []*types.Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Episode
	for i := len(s.sealOrder) - 1; i >= 0 && len(out) < n; i-- {
		if ep := s.episodes[s.sealOrder[i]]; ep != nil {
			out = append(out, ep.Clone())
		}
	}
	return out
}

// Episode returns a clone of the sealed episode by id.
func (s *EpisodicStore) Episode(id string) (*types.Episode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.episodes[id]
	if !ok {
		return nil, false
	}
	return ep.Clone(), true
}

// List returns clones of all companion retrieval items.
func (s *EpisodicStore) List() []*types.MemoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.items)
}

// Get returns a clone of the companion item without touching access
// bookkeeping.
func (s *EpisodicStore) Get(id string) (*types.MemoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Touch records a successful read on the companion item.
func (s *EpisodicStore) Touch(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false
	}
	item.Touch(now)
	return true
}

// Remove deletes the episode and its companion item.
func (s *EpisodicStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

// removeLocked deletes episode and item. Caller holds the lock.
func (s *EpisodicStore) removeLocked(id string) {
	delete(s.episodes, id)
	delete(s.items, id)
	s.sealOrder = removeFromOrder(s.sealOrder, id)
}

// Sweep removes every episode whose companion item the callback selects,
// all under one lock hold.
func (s *EpisodicStore) Sweep(remove func(*types.MemoryItem) bool) int {
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

// Len returns the number of resident episodes.
func (s *EpisodicStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

var _ Tier = (*EpisodicStore)(nil)
