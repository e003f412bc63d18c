package store

import (
	"testing"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

func newFactItem(id, key, content string, importance float64, now time.Time) *types.MemoryItem {
	return &types.MemoryItem{
		ID:             id,
		Key:            key,
		Content:        content,
		MemoryType:     types.TypeFactual,
		CreatedAt:      now,
		LastAccessedAt: now,
		Importance:     importance,
	}
}

func TestFactStore_StoreAndGetByKey(t *testing.T) {
	s := NewFactStore(10)
	now := time.Now()
	s.Upsert(newFactItem("mem:1", "editor", "uses neovim", 0.6, now))

	item, ok := s.GetByKey("editor", time.Now())
	if !ok {
		t.Fatal("Stored fact should be retrievable by key")
	}
	if item.Content != "uses neovim" {
		t.Errorf("Unexpected content %q", item.Content)
	}
	if item.AccessCount != 1 {
		t.Errorf("GetByKey should record the access, count = %d", item.AccessCount)
	}

	if _, ok := s.GetByKey("missing", time.Now()); ok {
		t.Error("Missing key should report not found")
	}
}

func TestFactStore_UpsertPreservesIdentity(t *testing.T) {
	s := NewFactStore(10)
	created := time.Now().Add(-24 * time.Hour)
	s.Upsert(newFactItem("mem:1", "editor", "uses vim", 0.4, created))

	// Read once so the access history is non-trivial.
	s.GetByKey("editor", time.Now().Add(-time.Hour))

	id, evicted := s.Upsert(newFactItem("mem:2", "editor", "uses neovim", 0.7, time.Now()))
	if id != "mem:1" {
		t.Errorf("Upsert on existing key should keep the resident id, got %s", id)
	}
	if evicted != "" {
		t.Errorf("Overwrite must not evict, got %q", evicted)
	}
	if s.Len() != 1 {
		t.Errorf("Key is unique, expected 1 item, got %d", s.Len())
	}

	item, _ := s.Get("mem:1")
	if item.Content != "uses neovim" {
		t.Error("Value should be overwritten")
	}
	if item.Importance != 0.7 {
		t.Error("Importance should be overwritten")
	}
	if !item.CreatedAt.Equal(created) {
		t.Error("Original creation time must be preserved on overwrite")
	}
	if item.AccessCount != 1 {
		t.Error("Access history must be preserved on overwrite")
	}
}

func TestFactStore_RemoveClearsKeyMapping(t *testing.T) {
	s := NewFactStore(10)
	s.Upsert(newFactItem("mem:1", "editor", "uses neovim", 0.6, time.Now()))

	if !s.Remove("mem:1") {
		t.Fatal("Remove on resident item should succeed")
	}
	if _, ok := s.GetByKey("editor", time.Now()); ok {
		t.Error("Removed fact's key should no longer resolve")
	}

	// The key is reusable after removal.
	id, _ := s.Upsert(newFactItem("mem:3", "editor", "uses helix", 0.5, time.Now()))
	if id != "mem:3" {
		t.Errorf("Reused key should create a fresh item, got %s", id)
	}
}

func TestFactStore_CapacityEviction(t *testing.T) {
	s := NewFactStore(2)
	now := time.Now()
	s.Upsert(newFactItem("mem:1", "a", "x", 0.2, now))
	s.Upsert(newFactItem("mem:2", "b", "y", 0.8, now))

	_, evicted := s.Upsert(newFactItem("mem:3", "c", "z", 0.5, now))
	if evicted != "mem:1" {
		t.Errorf("Expected lowest-importance fact evicted, got %q", evicted)
	}
	if _, ok := s.GetByKey("a", now); ok {
		t.Error("Evicted fact's key should no longer resolve")
	}
}

func TestFactStore_SweepClearsKeyMappings(t *testing.T) {
	s := NewFactStore(10)
	now := time.Now()
	s.Upsert(newFactItem("mem:1", "stale", "old value", 0.1, now))
	s.Upsert(newFactItem("mem:2", "fresh", "current value", 0.9, now))

	removed := s.Sweep(func(item *types.MemoryItem) bool {
		return item.Importance < 0.5
	})
	if removed != 1 {
		t.Fatalf("Expected 1 fact removed, got %d", removed)
	}
	if _, ok := s.GetByKey("stale", now); ok {
		t.Error("Swept fact's key should no longer resolve")
	}
	if _, ok := s.GetByKey("fresh", now); !ok {
		t.Error("Surviving fact must stay retrievable")
	}

	// The freed key can be stored again.
	if id, _ := s.Upsert(newFactItem("mem:3", "stale", "new value", 0.5, now)); id != "mem:3" {
		t.Errorf("Re-storing a swept key should admit a fresh item, got id %s", id)
	}
}
