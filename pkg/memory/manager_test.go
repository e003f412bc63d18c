package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

// fakeTextGen implements llm.TextGenerator for tests.
type fakeTextGen struct {
	response string
	err      error
	calls    int
}

func (f *fakeTextGen) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeTextGen) Model() string { return "fake-text" }

// fakeEmbedder implements llm.EmbeddingGenerator for tests. Known texts
// map to fixed vectors; unknown texts get the fallback vector. onEmbed,
// when set, runs before each call returns.
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    int
	onEmbed  func()
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.onEmbed != nil {
		f.onEmbed()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := f.vectors[text]; ok {
			out[i] = vec
		} else {
			out[i] = f.fallback
		}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embed" }

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestManager_SessionLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Storing working memory before any session is an ordering violation;
	// reading the context is not, it is just empty.
	if _, err := m.StoreWorking(ctx, "x", 0.5); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Expected ErrSessionNotActive, got %v", err)
	}
	if items := m.WorkingContext(); len(items) != 0 {
		t.Errorf("Working context without a session should be empty, got %d items", len(items))
	}
	if rendered := m.RenderWorkingContext(); rendered != "" {
		t.Errorf("Rendered context without a session should be empty, got %q", rendered)
	}

	sess, err := m.StartSession("s1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if sess.ID != "s1" {
		t.Errorf("Unexpected session id %s", sess.ID)
	}

	if _, err := m.StoreWorking(ctx, "user is debugging the importer", 0.6, "debug"); err != nil {
		t.Fatalf("StoreWorking failed: %v", err)
	}
	if _, err := m.StoreWorking(ctx, "importer chokes on utf-16 input", 0.7); err != nil {
		t.Fatalf("StoreWorking failed: %v", err)
	}

	items := m.WorkingContext()
	if len(items) != 2 {
		t.Fatalf("Expected 2 working items, got %d", len(items))
	}
	if items[0].Content != "user is debugging the importer" {
		t.Error("Working context should preserve insertion order")
	}
	rendered := m.RenderWorkingContext()
	want := "- user is debugging the importer\n- importer chokes on utf-16 input"
	if rendered != want {
		t.Errorf("Rendered context mismatch:\n%q\nwant\n%q", rendered, want)
	}

	destroyed, err := m.EndSession()
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if destroyed != 2 {
		t.Errorf("Expected 2 items destroyed, got %d", destroyed)
	}

	// Ended is terminal: writes fail, a second end is a harmless no-op.
	if n, err := m.EndSession(); err != nil || n != 0 {
		t.Errorf("Second EndSession should be a no-op, got (%d, %v)", n, err)
	}
	if _, err := m.StoreWorking(ctx, "late", 0.5); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("StoreWorking after end should fail, got %v", err)
	}

	stats := m.Stats()
	if stats.WorkingCount != 0 {
		t.Errorf("Working memory should be empty after session end, got %d", stats.WorkingCount)
	}
	if stats.SessionState != types.SessionEnded {
		t.Errorf("Expected session state ended, got %s", stats.SessionState)
	}
}

func TestManager_StartSessionIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.StartSession("s1")
	m.StoreWorking(ctx, "kept", 0.5)

	// Same id: no-op, content preserved.
	sess, err := m.StartSession("s1")
	if err != nil {
		t.Fatalf("Idempotent StartSession failed: %v", err)
	}
	if sess.ID != "s1" {
		t.Errorf("Unexpected session id %s", sess.ID)
	}
	items := m.WorkingContext()
	if len(items) != 1 {
		t.Errorf("Re-starting the active session must preserve content, got %d items", len(items))
	}
}

func TestManager_StartSessionReplacesActive(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.StartSession("s1")
	m.StoreWorking(ctx, "old session context", 0.5)

	if _, err := m.StartSession("s2"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	stats := m.Stats()
	if stats.SessionID != "s2" || stats.SessionState != types.SessionActive {
		t.Errorf("Expected active session s2, got %s/%s", stats.SessionID, stats.SessionState)
	}
	if stats.WorkingCount != 0 {
		t.Errorf("Previous session's working memory should be destroyed, got %d", stats.WorkingCount)
	}
}

func TestManager_EpisodeLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.StartEpisode("no session"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("StartEpisode without session should fail, got %v", err)
	}
	if err := m.AddToEpisode("entry"); !errors.Is(err, ErrNoOpenEpisode) {
		t.Errorf("AddToEpisode without episode should fail, got %v", err)
	}
	if _, err := m.EndEpisode(ctx); !errors.Is(err, ErrNoOpenEpisode) {
		t.Errorf("EndEpisode without episode should fail, got %v", err)
	}

	m.StartSession("s1")
	ep, err := m.StartEpisode("investigating the outage")
	if err != nil {
		t.Fatalf("StartEpisode failed: %v", err)
	}
	if _, err := m.StartEpisode("second"); !errors.Is(err, ErrEpisodeAlreadyOpen) {
		t.Errorf("Second StartEpisode should fail, got %v", err)
	}

	m.AddToEpisode("alerts fired at 10:03")
	m.AddToEpisode("root cause was a bad config push")

	sealed, err := m.EndEpisode(ctx)
	if err != nil {
		t.Fatalf("EndEpisode failed: %v", err)
	}
	if sealed.ID != ep.ID {
		t.Errorf("Sealed episode id %s does not match started id %s", sealed.ID, ep.ID)
	}
	if !sealed.IsSealed() {
		t.Error("Episode should be sealed after EndEpisode")
	}
	if len(sealed.Content) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(sealed.Content))
	}

	recent := m.RecentEpisodes(5)
	if len(recent) != 1 || recent[0].ID != ep.ID {
		t.Error("Sealed episode should appear in RecentEpisodes")
	}

	if err := m.AddToEpisode("late entry"); !errors.Is(err, ErrNoOpenEpisode) {
		t.Errorf("AddToEpisode after seal should fail, got %v", err)
	}
}

func TestManager_EndSessionSealsOpenEpisode(t *testing.T) {
	m := newTestManager(t)

	m.StartSession("s1")
	m.StartEpisode("left open")
	m.AddToEpisode("entry")

	if _, err := m.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	recent := m.RecentEpisodes(1)
	if len(recent) != 1 || !recent[0].IsSealed() {
		t.Error("Open episode should be sealed and stored when the session ends")
	}
}

func TestManager_Facts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	stored, err := m.StoreFact(ctx, "timezone", "user is in UTC+2", 0.6)
	if err != nil {
		t.Fatalf("StoreFact failed: %v", err)
	}

	got, ok := m.Fact("timezone")
	if !ok {
		t.Fatal("Stored fact should be retrievable")
	}
	if got.ID != stored.ID || got.Content != "user is in UTC+2" {
		t.Error("Fact round trip mismatch")
	}

	// Overwrite keeps the identity.
	updated, err := m.UpdateFact(ctx, "timezone", "user moved to UTC-5", 0.7)
	if err != nil {
		t.Fatalf("UpdateFact failed: %v", err)
	}
	if updated.ID != stored.ID {
		t.Error("UpdateFact must keep the resident item id")
	}

	// Updating a key that was never stored creates it.
	created, err := m.UpdateFact(ctx, "never-stored", "x", 0.5)
	if err != nil {
		t.Fatalf("UpdateFact on a missing key should create it, got %v", err)
	}
	if got, ok := m.Fact("never-stored"); !ok || got.ID != created.ID {
		t.Error("UpdateFact on a missing key should behave like StoreFact")
	}
	if _, err := m.StoreFact(ctx, "", "x", 0.5); err == nil {
		t.Error("StoreFact with an empty key should fail")
	}
}

func TestManager_Concepts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.StoreConcept(ctx, "tests run on every push", 1.5); err == nil {
		t.Error("Out-of-range confidence should be rejected")
	}

	item, err := m.StoreConcept(ctx, "tests run on every push", 0.5)
	if err != nil {
		t.Fatalf("StoreConcept failed: %v", err)
	}
	if item.Importance != 0.5 {
		t.Errorf("Companion item importance should equal confidence, got %f", item.Importance)
	}

	confidence, err := m.ReinforceConcept("tests run on every push")
	if err != nil {
		t.Fatalf("ReinforceConcept failed: %v", err)
	}
	if confidence <= 0.5 || confidence >= 1.0 {
		t.Errorf("Reinforced confidence should be in (0.5, 1.0), got %f", confidence)
	}

	if _, err := m.ReinforceConcept("unknown concept"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Reinforcing an unknown concept should report not found, got %v", err)
	}
}

func TestManager_RememberRoutesExtraction(t *testing.T) {
	gen := &fakeTextGen{response: `{"should_remember": true, "content": "user prefers dark mode", "memory_type": "factual", "importance": 0.8, "tags": ["preference"]}`}
	m := newTestManager(t, WithProviders(gen, nil))

	item, err := m.Remember(context.Background(), "I always use dark mode, by the way")
	if err != nil {
		t.Fatalf("Remember failed: %v", err)
	}
	if item == nil {
		t.Fatal("Expected a stored item")
	}
	if item.MemoryType != types.TypeFactual {
		t.Errorf("Expected factual routing, got %s", item.MemoryType)
	}
	if !item.HasTag("preference") {
		t.Error("Extracted tags should be carried onto the item")
	}

	stats := m.Stats()
	if stats.ExtractionsAccepted != 1 {
		t.Errorf("Expected 1 accepted extraction, got %d", stats.ExtractionsAccepted)
	}
	if stats.FactCount != 1 {
		t.Errorf("Expected 1 fact, got %d", stats.FactCount)
	}
}

func TestManager_RememberDecline(t *testing.T) {
	gen := &fakeTextGen{response: `{"should_remember": false}`}
	m := newTestManager(t, WithProviders(gen, nil))

	item, err := m.Remember(context.Background(), "hello!")
	if err != nil || item != nil {
		t.Errorf("Declined extraction should yield (nil, nil), got (%v, %v)", item, err)
	}
	if m.Stats().TotalCount() != 0 {
		t.Error("Nothing should be stored for a declined extraction")
	}
}

func TestManager_RememberProviderFailureIsSilent(t *testing.T) {
	gen := &fakeTextGen{err: errors.New("provider exploded")}
	m := newTestManager(t, WithProviders(gen, nil))

	item, err := m.Remember(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Extraction failure must not surface, got %v", err)
	}
	if item != nil {
		t.Error("Failed extraction should store nothing")
	}
	if m.Stats().ExtractionFailures != 1 {
		t.Errorf("Expected 1 extraction failure, got %d", m.Stats().ExtractionFailures)
	}
}

func TestManager_RememberWithoutProvider(t *testing.T) {
	m := newTestManager(t)
	item, err := m.Remember(context.Background(), "anything")
	if err != nil || item != nil {
		t.Errorf("No provider should mean never remember, got (%v, %v)", item, err)
	}
}

func TestManager_RunDecay(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	m := newTestManager(t, withClock(func() time.Time { return clock }))
	ctx := context.Background()

	m.StoreFact(ctx, "stale", "unimportant old fact", 0.1)
	m.StoreFact(ctx, "precious", "important old fact", 0.9)

	// Both facts age past every threshold; only the unimportant one decays.
	clock = base.Add(60 * 24 * time.Hour)
	removed := m.RunDecay(ConservativeDecayConfig())
	if removed != 1 {
		t.Fatalf("Expected 1 item removed, got %d", removed)
	}
	if _, ok := m.Fact("stale"); ok {
		t.Error("Low-importance stale fact should have decayed")
	}
	if _, ok := m.Fact("precious"); !ok {
		t.Error("High-importance fact should survive decay")
	}

	stats := m.Stats()
	if stats.DecayRuns != 1 || stats.DecayRemoved != 1 {
		t.Errorf("Decay counters mismatch: runs=%d removed=%d", stats.DecayRuns, stats.DecayRemoved)
	}
}

func TestManager_RelatedTraversal(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, _ := m.StoreFact(ctx, "a", "fact a", 0.5)
	b, _ := m.StoreFact(ctx, "b", "fact b", 0.5)
	c, _ := m.StoreFact(ctx, "c", "fact c", 0.5)
	m.Link(a.ID, b.ID)
	m.Link(b.ID, c.ID)

	depth1 := m.Related(a.ID, 1)
	if len(depth1) != 1 || depth1[0].ID != b.ID {
		t.Errorf("Depth 1 should reach only b, got %d items", len(depth1))
	}

	depth2 := m.Related(a.ID, 2)
	if len(depth2) != 2 {
		t.Errorf("Depth 2 should reach b and c, got %d items", len(depth2))
	}

	// Removing a node leaves dangling edges that traversal skips.
	m.facts.Remove(c.ID)
	depth2 = m.Related(a.ID, 2)
	if len(depth2) != 1 {
		t.Errorf("Removed node should vanish from traversal, got %d items", len(depth2))
	}
}

func TestManager_StoreWorkingDropsItemWhenSessionEndsMidStore(t *testing.T) {
	embed := &fakeEmbedder{fallback: []float32{1, 0}}
	m := newTestManager(t, WithProviders(nil, embed))
	m.StartSession("s1")

	// The session ends while the store call is out embedding; the late
	// insert must not leave an item owned by an ended session.
	embed.onEmbed = func() { m.EndSession() }

	if _, err := m.StoreWorking(context.Background(), "late arrival", 0.5); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Expected ErrSessionNotActive, got %v", err)
	}
	if count := m.Stats().WorkingCount; count != 0 {
		t.Errorf("No working item may outlive its session, got %d resident", count)
	}
}

// fakeArchive implements Archiver and VectorSearcher for tests.
type fakeArchive struct {
	items       []*types.MemoryItem
	episodes    []*types.Episode
	searchIDs   []string
	searchCalls int
	lastLimit   int
}

func (f *fakeArchive) SaveItem(ctx context.Context, item *types.MemoryItem) error {
	f.items = append(f.items, item.Clone())
	return nil
}

func (f *fakeArchive) SaveEpisode(ctx context.Context, ep *types.Episode) error {
	f.episodes = append(f.episodes, ep.Clone())
	return nil
}

func (f *fakeArchive) LoadItems(ctx context.Context) ([]*types.MemoryItem, error) {
	return f.items, nil
}

func (f *fakeArchive) LoadEpisodes(ctx context.Context) ([]*types.Episode, error) {
	return f.episodes, nil
}

func (f *fakeArchive) Close() error { return nil }

func (f *fakeArchive) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]string, error) {
	f.searchCalls++
	f.lastLimit = limit
	if limit < len(f.searchIDs) {
		return f.searchIDs[:limit], nil
	}
	return f.searchIDs, nil
}

func TestManager_SearchArchive(t *testing.T) {
	archive := &fakeArchive{searchIDs: []string{"mem:archived-1", "mem:archived-2"}}
	embed := &fakeEmbedder{fallback: []float32{1, 0}}
	m := newTestManager(t, WithProviders(nil, embed), WithArchive(archive))
	ctx := context.Background()

	ids, err := m.SearchArchive(ctx, "old decisions", 5)
	if err != nil {
		t.Fatalf("SearchArchive failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "mem:archived-1" {
		t.Errorf("Unexpected search results %v", ids)
	}
	if archive.searchCalls != 1 || archive.lastLimit != 5 {
		t.Errorf("Archive search not delegated, calls=%d limit=%d", archive.searchCalls, archive.lastLimit)
	}
}

func TestManager_SearchArchiveDegradesToNil(t *testing.T) {
	ctx := context.Background()

	// No archive at all.
	m := newTestManager(t)
	if ids, err := m.SearchArchive(ctx, "anything", 5); err != nil || ids != nil {
		t.Errorf("No archive should mean no results, got (%v, %v)", ids, err)
	}

	// Archive present but no embedding provider to vectorize the query.
	archive := &fakeArchive{searchIDs: []string{"mem:archived-1"}}
	m = newTestManager(t, WithArchive(archive))
	if ids, err := m.SearchArchive(ctx, "anything", 5); err != nil || ids != nil {
		t.Errorf("No embedder should mean no results, got (%v, %v)", ids, err)
	}
	if archive.searchCalls != 0 {
		t.Error("Archive must not be searched without a query vector")
	}
}

func TestManager_StatsCounters(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.StartSession("s1")
	m.StoreWorking(ctx, "w", 0.5)
	m.StoreFact(ctx, "k", "v", 0.5)
	m.StoreConcept(ctx, "c", 0.5)
	if _, err := m.Retrieve(ctx, types.MemoryQuery{Query: "v"}); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	stats := m.Stats()
	if stats.StoreOps != 3 {
		t.Errorf("Expected 3 store ops, got %d", stats.StoreOps)
	}
	if stats.RetrieveOps != 1 {
		t.Errorf("Expected 1 retrieve op, got %d", stats.RetrieveOps)
	}
	if stats.TotalCount() != 3 {
		t.Errorf("Expected 3 resident items, got %d", stats.TotalCount())
	}
	if stats.SessionState != types.SessionActive || stats.SessionID != "s1" {
		t.Errorf("Unexpected session snapshot %s/%s", stats.SessionID, stats.SessionState)
	}
}
