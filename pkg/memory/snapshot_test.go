package memory

import (
	"context"
	"testing"

	"github.com/engramdev/engram/pkg/types"
)

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.StartSession("s1")
	m.StoreWorking(ctx, "ephemeral context", 0.5, "scratch")
	fact, _ := m.StoreFact(ctx, "editor", "uses neovim", 0.7)
	concept, _ := m.StoreConcept(ctx, "builds are cached", 0.6)
	m.ReinforceConcept("builds are cached")
	m.Link(fact.ID, concept.ID)

	m.StartEpisode("pairing on the cache bug")
	m.AddToEpisode("found a stale key")
	m.EndEpisode(ctx)

	data, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored := newTestManager(t)
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	// Tier counts and counters carry over.
	before, after := m.Stats(), restored.Stats()
	if before.TotalCount() != after.TotalCount() {
		t.Errorf("Item counts differ: %d vs %d", before.TotalCount(), after.TotalCount())
	}
	if before.StoreOps != after.StoreOps {
		t.Errorf("Store op counters differ: %d vs %d", before.StoreOps, after.StoreOps)
	}
	if after.SessionState != types.SessionActive || after.SessionID != "s1" {
		t.Errorf("Session state not restored: %s/%s", after.SessionID, after.SessionState)
	}

	// Facts keep identity and content.
	gotFact, ok := restored.Fact("editor")
	if !ok || gotFact.ID != fact.ID || gotFact.Content != "uses neovim" {
		t.Error("Fact did not survive the round trip")
	}

	// Concepts keep confidence and reinforcement history.
	gotConcept, ok := restored.Concept("builds are cached")
	if !ok {
		t.Fatal("Concept did not survive the round trip")
	}
	wantConcept, _ := m.Concept("builds are cached")
	if gotConcept.Confidence != wantConcept.Confidence || gotConcept.ReinforcementCount != wantConcept.ReinforcementCount {
		t.Errorf("Concept state differs: %+v vs %+v", gotConcept, wantConcept)
	}

	// Episodes keep their seal and ordering.
	episodes := restored.RecentEpisodes(5)
	if len(episodes) != 1 || !episodes[0].IsSealed() || episodes[0].Title != "pairing on the cache bug" {
		t.Error("Episode did not survive the round trip")
	}

	// Graph edges survive.
	related := restored.Related(fact.ID, 1)
	if len(related) != 1 || related[0].ID != concept.ID {
		t.Error("Graph edge did not survive the round trip")
	}

	// Working memory continues under the restored session.
	items := restored.WorkingContext()
	if len(items) != 1 {
		t.Errorf("Working memory did not survive: %d items", len(items))
	}
}

func TestRestore_RejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	if err := m.Restore([]byte("not json")); err == nil {
		t.Error("Restore should reject malformed input")
	}
	if err := m.Restore([]byte(`{"version": 99}`)); err == nil {
		t.Error("Restore should reject unknown snapshot versions")
	}
}
