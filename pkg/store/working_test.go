package store

import (
	"testing"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

func newTestItem(id, sessionID string, importance float64, lastAccess time.Time) *types.MemoryItem {
	return &types.MemoryItem{
		ID:             id,
		Content:        "content of " + id,
		MemoryType:     types.TypeWorking,
		SessionID:      sessionID,
		CreatedAt:      lastAccess,
		LastAccessedAt: lastAccess,
		Importance:     importance,
	}
}

func TestWorkingStore_InsertionOrder(t *testing.T) {
	s := NewWorkingStore(10)
	now := time.Now()
	s.Insert(newTestItem("mem:a", "s1", 0.5, now))
	s.Insert(newTestItem("mem:b", "s1", 0.9, now))
	s.Insert(newTestItem("mem:c", "s1", 0.1, now))

	items := s.SessionItems("s1")
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	for i, want := range []string{"mem:a", "mem:b", "mem:c"} {
		if items[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, items[i].ID)
		}
	}
}

func TestWorkingStore_EvictsLowestImportance(t *testing.T) {
	s := NewWorkingStore(2)
	now := time.Now()
	s.Insert(newTestItem("mem:low", "s1", 0.1, now))
	s.Insert(newTestItem("mem:high", "s1", 0.9, now))

	evicted := s.Insert(newTestItem("mem:new", "s1", 0.5, now))
	if evicted != "mem:low" {
		t.Errorf("Expected mem:low evicted, got %q", evicted)
	}
	if s.Len() != 2 {
		t.Errorf("Store should stay at capacity, got %d", s.Len())
	}
	if _, ok := s.Get("mem:high"); !ok {
		t.Error("High-importance item should survive eviction")
	}
}

func TestWorkingStore_EvictionTieBreaksOnOldestAccess(t *testing.T) {
	s := NewWorkingStore(2)
	old := time.Now().Add(-time.Hour)
	recent := time.Now()
	s.Insert(newTestItem("mem:old", "s1", 0.5, old))
	s.Insert(newTestItem("mem:recent", "s1", 0.5, recent))

	evicted := s.Insert(newTestItem("mem:new", "s1", 0.5, recent))
	if evicted != "mem:old" {
		t.Errorf("Tie should evict the least recently accessed, got %q", evicted)
	}
}

func TestWorkingStore_DestroySession(t *testing.T) {
	s := NewWorkingStore(10)
	now := time.Now()
	s.Insert(newTestItem("mem:a", "s1", 0.5, now))
	s.Insert(newTestItem("mem:b", "s1", 0.5, now))
	s.Insert(newTestItem("mem:c", "s2", 0.5, now))

	destroyed := s.DestroySession("s1")
	if destroyed != 2 {
		t.Errorf("Expected 2 items destroyed, got %d", destroyed)
	}
	if _, ok := s.Get("mem:a"); ok {
		t.Error("Destroyed item mem:a is still retrievable")
	}
	if _, ok := s.Get("mem:c"); !ok {
		t.Error("Other session's item must survive")
	}
}

func TestWorkingStore_TouchUpdatesBookkeeping(t *testing.T) {
	s := NewWorkingStore(10)
	created := time.Now().Add(-time.Hour)
	s.Insert(newTestItem("mem:a", "s1", 0.5, created))

	accessed := time.Now()
	if !s.Touch("mem:a", accessed) {
		t.Fatal("Touch on resident item should succeed")
	}

	item, _ := s.Get("mem:a")
	if item.AccessCount != 1 {
		t.Errorf("Expected access count 1, got %d", item.AccessCount)
	}
	if !item.LastAccessedAt.Equal(accessed) {
		t.Error("LastAccessedAt should be the touch time")
	}

	if s.Touch("mem:missing", accessed) {
		t.Error("Touch on a missing item should return false")
	}
}

func TestWorkingStore_SweepRemovesSelected(t *testing.T) {
	s := NewWorkingStore(10)
	now := time.Now()
	s.Insert(newTestItem("mem:keep", "s1", 0.9, now))
	s.Insert(newTestItem("mem:drop", "s1", 0.1, now))

	removed := s.Sweep(func(item *types.MemoryItem) bool {
		return item.Importance < 0.5
	})
	if removed != 1 {
		t.Fatalf("Expected 1 item removed, got %d", removed)
	}
	if _, ok := s.Get("mem:drop"); ok {
		t.Error("Swept item is still retrievable")
	}
	if items := s.SessionItems("s1"); len(items) != 1 || items[0].ID != "mem:keep" {
		t.Error("Insertion order should drop swept items")
	}
}

func TestWorkingStore_SweepExcludesConcurrentWriters(t *testing.T) {
	s := NewWorkingStore(10)
	now := time.Now()
	s.Insert(newTestItem("mem:a", "s1", 0.1, now))

	entered := make(chan struct{})
	release := make(chan struct{})
	swept := make(chan int, 1)
	go func() {
		swept <- s.Sweep(func(item *types.MemoryItem) bool {
			close(entered)
			<-release
			return false
		})
	}()

	<-entered
	touched := make(chan struct{})
	go func() {
		s.Touch("mem:a", now.Add(time.Minute))
		close(touched)
	}()

	// The sweep holds the write lock, so the touch cannot land until it
	// finishes.
	select {
	case <-touched:
		t.Fatal("Touch must not land mid-sweep")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-swept
	select {
	case <-touched:
	case <-time.After(time.Second):
		t.Fatal("Touch should complete once the sweep finishes")
	}

	item, _ := s.Get("mem:a")
	if item.AccessCount != 1 {
		t.Errorf("Touch after the sweep should be recorded, got count %d", item.AccessCount)
	}
}

func TestWorkingStore_ClonesIsolateReaders(t *testing.T) {
	s := NewWorkingStore(10)
	item := newTestItem("mem:a", "s1", 0.5, time.Now())
	item.Tags = []string{"infra"}
	s.Insert(item)

	got, _ := s.Get("mem:a")
	got.Tags[0] = "mutated"
	got.Content = "mutated"

	again, _ := s.Get("mem:a")
	if again.Tags[0] != "infra" || again.Content != "content of mem:a" {
		t.Error("Mutating a returned clone must not affect the stored item")
	}
}
