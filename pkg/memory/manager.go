package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/engramdev/engram/pkg/llm"
	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

// Archiver persists durable memories outside the process. Archiving is
// best-effort: a failing archive is logged and never blocks or fails the
// in-memory write it shadows.
type Archiver interface {
	SaveItem(ctx context.Context, item *types.MemoryItem) error
	SaveEpisode(ctx context.Context, ep *types.Episode) error
	LoadItems(ctx context.Context) ([]*types.MemoryItem, error)
	LoadEpisodes(ctx context.Context) ([]*types.Episode, error)
	Close() error
}

// Option configures optional manager collaborators.
type Option func(*Manager)

// WithProviders attaches LLM providers. The text generator powers the
// extraction path (Remember); the embedding generator powers semantic
// retrieval and automatic linking. Either may be nil.
func WithProviders(text llm.TextGenerator, embed llm.EmbeddingGenerator) Option {
	return func(m *Manager) {
		m.textGen = text
		m.embedGen = embed
	}
}

// WithArchive attaches a durable archive for facts, concepts and sealed
// episodes.
func WithArchive(a Archiver) Option {
	return func(m *Manager) { m.archive = a }
}

// withClock injects a clock for tests.
func withClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the single entry point to the memory subsystem. It owns the
// four tier stores, the session and episode lifecycle, retrieval, decay,
// extraction and the related-memory graph.
//
// Tier mutations are serialized per tier inside the stores; the manager's
// own mutex guards only session and episode lifecycle state. Stats
// counters are lock-free atomics, so Store/Retrieve never contend on a
// stats lock.
type Manager struct {
	cfg Config

	working  *store.WorkingStore
	facts    *store.FactStore
	episodic *store.EpisodicStore
	semantic *store.SemanticStore

	graph     *relatedGraph
	extractor *Extractor
	index     *EmbeddingIndex
	retrieval *RetrievalEngine
	decay     *DecayEngine

	textGen  llm.TextGenerator
	embedGen llm.EmbeddingGenerator
	archive  Archiver

	stats counters

	mu           sync.Mutex
	session      *types.Session
	sessionState types.SessionState
	openEpisode  *types.Episode

	now func() time.Time
}

// NewManager creates a manager from the configuration. Without providers
// the manager runs fully degraded-but-functional: Remember never
// remembers, retrieval scores on importance and recency only.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	m := &Manager{
		cfg:          cfg,
		working:      store.NewWorkingStore(cfg.WorkingCapacity),
		facts:        store.NewFactStore(cfg.FactCapacity),
		episodic:     store.NewEpisodicStore(cfg.EpisodicCapacity),
		semantic:     store.NewSemanticStore(cfg.SemanticCapacity),
		graph:        newRelatedGraph(),
		sessionState: types.SessionNone,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.decay = newDecayEngineAt(func() time.Time { return m.now() })
	m.extractor = NewExtractor(m.textGen, cfg.ProviderTimeout, func() {
		m.stats.extractionFailures.Add(1)
	})
	m.index = NewEmbeddingIndex(m.embedGen, cfg.ProviderTimeout, func() {
		m.stats.embeddingFailures.Add(1)
	})
	m.retrieval = NewRetrievalEngine(cfg.Weights, cfg.RecencyHalfLife, m.index)
	m.retrieval.now = func() time.Time { return m.now() }
	return m, nil
}

// NewManagerWithProviders is shorthand for NewManager with WithProviders.
func NewManagerWithProviders(cfg Config, text llm.TextGenerator, embed llm.EmbeddingGenerator) (*Manager, error) {
	return NewManager(cfg, WithProviders(text, embed))
}

// Close releases the archive, if any. The in-memory tiers need no teardown.
func (m *Manager) Close() error {
	if m.archive == nil {
		return nil
	}
	return m.archive.Close()
}

// --- session lifecycle ---

// StartSession opens a session for working memory. Calling StartSession
// with the id of the already-active session is an idempotent no-op that
// returns the existing session with its content preserved; fresh state
// requires an explicit EndSession first. Starting a different session
// while one is active ends the active session (destroying its working
// memory) before opening the new one.
func (m *Manager) StartSession(id string) (*types.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionState == types.SessionActive {
		if m.session.ID == id {
			return m.session.Clone(), nil
		}
		log.Printf("WARNING: starting session %s while %s is active, ending it", id, m.session.ID)
		m.endSessionLocked()
	}

	m.session = &types.Session{ID: id, OpenedAt: m.now()}
	m.sessionState = types.SessionActive
	return m.session.Clone(), nil
}

// EndSession ends the active session, sealing any still-open episode and
// destroying the session's working memory. Returns the number of working
// items destroyed; ending when no session is active is a no-op returning
// zero.
func (m *Manager) EndSession() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionState != types.SessionActive {
		return 0, nil
	}
	return m.endSessionLocked(), nil
}

// endSessionLocked seals any open episode, destroys working memory and
// marks the session ended. Caller holds m.mu.
func (m *Manager) endSessionLocked() int {
	if m.openEpisode != nil {
		log.Printf("WARNING: session %s ended with episode %s still open, sealing it", m.session.ID, m.openEpisode.ID)
		m.sealEpisodeLocked(context.Background())
	}

	destroyed := m.working.DestroySession(m.session.ID)
	m.sessionState = types.SessionEnded
	return destroyed
}

// --- working memory ---

// StoreWorking records ephemeral context under the active session. The
// embedding call runs outside the manager lock, so the session is checked
// again before the item becomes visible; a session ended in the meantime
// drops the item instead of orphaning it.
func (m *Manager) StoreWorking(ctx context.Context, content string, importance float64, tags ...string) (*types.MemoryItem, error) {
	m.mu.Lock()
	if m.sessionState != types.SessionActive {
		m.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	sessionID := m.session.ID
	m.mu.Unlock()

	item := m.newItem(content, types.TypeWorking, importance, tags)
	item.SessionID = sessionID
	m.embedAndLink(ctx, item)

	m.mu.Lock()
	if m.sessionState != types.SessionActive || m.session.ID != sessionID {
		m.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	evicted := m.working.Insert(item)
	m.session.ItemIDs = append(m.session.ItemIDs, item.ID)
	m.mu.Unlock()

	m.stats.countEviction(evicted)
	m.stats.storeOps.Add(1)
	return item.Clone(), nil
}

// WorkingContext returns the active session's working memory in insertion
// order. With no active session (or no items) it returns an empty slice.
func (m *Manager) WorkingContext() []*types.MemoryItem {
	m.mu.Lock()
	if m.sessionState != types.SessionActive {
		m.mu.Unlock()
		return nil
	}
	sessionID := m.session.ID
	m.mu.Unlock()

	return m.working.SessionItems(sessionID)
}

// RenderWorkingContext flattens the working context into a single string
// for prompt injection, one item per line in insertion order. Returns ""
// when no session is active or the session holds no items.
func (m *Manager) RenderWorkingContext() string {
	items := m.WorkingContext()
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item.Content)
	}
	return b.String()
}

// --- factual memory ---

// StoreFact stores a fact under a unique key, overwriting the value if
// the key already exists while preserving the resident item's identity
// and access history.
func (m *Manager) StoreFact(ctx context.Context, key, content string, importance float64, tags ...string) (*types.MemoryItem, error) {
	if key == "" {
		return nil, fmt.Errorf("fact key must not be empty")
	}

	item := m.newItem(content, types.TypeFactual, importance, tags)
	item.Key = key
	m.embedAndLink(ctx, item)

	id, evicted := m.facts.Upsert(item)
	m.stats.countEviction(evicted)
	m.stats.storeOps.Add(1)

	stored, _ := m.facts.Get(id)
	m.archiveItem(ctx, stored)
	return stored, nil
}

// Fact returns the fact stored under key, recording the access.
func (m *Manager) Fact(key string) (*types.MemoryItem, bool) {
	return m.facts.GetByKey(key, m.now())
}

// UpdateFact overwrites a fact's value, preserving the resident item's
// identity and access history. Updating a key that does not exist creates
// it, equivalent to StoreFact.
func (m *Manager) UpdateFact(ctx context.Context, key, content string, importance float64, tags ...string) (*types.MemoryItem, error) {
	return m.StoreFact(ctx, key, content, importance, tags...)
}

// --- episodic memory ---

// StartEpisode begins recording an episode under the active session. Only
// one episode may be open at a time.
func (m *Manager) StartEpisode(title string) (*types.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionState != types.SessionActive {
		return nil, ErrSessionNotActive
	}
	if m.openEpisode != nil {
		return nil, ErrEpisodeAlreadyOpen
	}

	m.openEpisode = &types.Episode{
		ID:        types.NewEpisodeID(),
		SessionID: m.session.ID,
		Title:     title,
		OpenedAt:  m.now(),
	}
	return m.openEpisode.Clone(), nil
}

// AddToEpisode appends an entry to the open episode.
func (m *Manager) AddToEpisode(content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openEpisode == nil {
		return ErrNoOpenEpisode
	}
	return m.openEpisode.Append(content)
}

// EndEpisode seals the open episode and admits it to the episodic tier.
// The sealed record is immutable from this point on.
func (m *Manager) EndEpisode(ctx context.Context) (*types.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openEpisode == nil {
		return nil, ErrNoOpenEpisode
	}
	return m.sealEpisodeLocked(ctx), nil
}

// sealEpisodeLocked seals m.openEpisode and stores it with its companion
// retrieval item. Caller holds m.mu and has checked openEpisode != nil.
func (m *Manager) sealEpisodeLocked(ctx context.Context) *types.Episode {
	ep := m.openEpisode
	m.openEpisode = nil
	_ = ep.Seal(m.now())

	// The companion item shares the episode's id so eviction and removal
	// stay in lockstep across the episode record and the retrieval index.
	item := m.newItem(renderEpisode(ep), types.TypeEpisodic, episodeImportance(ep), nil)
	item.ID = ep.ID
	item.SessionID = ep.SessionID
	m.embedAndLink(ctx, item)

	evicted, err := m.episodic.AddSealed(ep, item)
	if err != nil {
		log.Printf("ERROR: failed to store sealed episode %s: %v", ep.ID, err)
		return ep.Clone()
	}
	m.stats.countEviction(evicted)
	m.stats.storeOps.Add(1)

	if m.archive != nil {
		if err := m.archive.SaveEpisode(ctx, ep); err != nil {
			log.Printf("WARNING: failed to archive episode %s: %v", ep.ID, err)
		}
	}
	return ep.Clone()
}

// RecentEpisodes returns up to n most recently sealed episodes, newest
// first.
func (m *Manager) RecentEpisodes(n int) []*types.Episode {
	return m.episodic.Recent(n)
}

// renderEpisode flattens an episode into retrievable text.
func renderEpisode(ep *types.Episode) string {
	if len(ep.Content) == 0 {
		return ep.Title
	}
	return ep.Title + "\n" + strings.Join(ep.Content, "\n")
}

// episodeImportance assigns a default importance to a sealed episode.
// Longer episodes rank slightly higher, capped well below the importance
// a caller can assign explicitly elsewhere.
func episodeImportance(ep *types.Episode) float64 {
	imp := 0.4 + 0.05*float64(len(ep.Content))
	if imp > 0.7 {
		imp = 0.7
	}
	return imp
}

// --- semantic memory ---

// StoreConcept stores confidence-weighted general knowledge. Storing a
// concept whose content already exists never lowers the resident
// confidence.
func (m *Manager) StoreConcept(ctx context.Context, content string, confidence float64) (*types.MemoryItem, error) {
	if content == "" {
		return nil, fmt.Errorf("concept content must not be empty")
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence must be in [0, 1], got %f", confidence)
	}

	concept := &types.SemanticConcept{Content: content, Confidence: confidence}
	item := m.newItem(content, types.TypeSemantic, confidence, nil)
	m.embedAndLink(ctx, item)

	id, evicted := m.semantic.StoreConcept(concept, item)
	m.stats.countEviction(evicted)
	m.stats.storeOps.Add(1)

	stored, _ := m.semantic.Get(id)
	m.archiveItem(ctx, stored)
	return stored, nil
}

// ReinforceConcept applies one reinforcement event to the concept stored
// under the exact content key and returns the new confidence. Repeated
// reinforcement approaches but never reaches 1.
func (m *Manager) ReinforceConcept(content string) (float64, error) {
	return m.semantic.Reinforce(content, m.cfg.ReinforcementGain, m.now())
}

// Concept returns the concept record stored under the content key.
func (m *Manager) Concept(content string) (types.SemanticConcept, bool) {
	return m.semantic.Concept(content)
}

// --- retrieval ---

// Retrieve ranks memories across all tiers against the query: hard
// filters first, then weighted scoring over similarity, importance and
// recency. Returned items have their access recorded. Missing embeddings
// degrade ranking quality only; the single caller-visible failure mode is
// a malformed query.
func (m *Manager) Retrieve(ctx context.Context, query types.MemoryQuery) ([]RetrievalResult, error) {
	results, err := m.retrieval.Retrieve(ctx, query, m.candidates(query.MemoryType))
	if err != nil {
		return nil, err
	}

	now := m.now()
	for _, r := range results {
		if tier := m.tierFor(r.Item.MemoryType); tier != nil {
			tier.Touch(r.Item.ID, now)
		}
	}
	m.stats.retrieveOps.Add(1)
	return results, nil
}

// candidates gathers retrieval candidates, skipping tiers a type filter
// already excludes.
func (m *Manager) candidates(typeFilter types.MemoryType) []*types.MemoryItem {
	var out []*types.MemoryItem
	for _, t := range types.ValidMemoryTypes {
		if typeFilter != "" && t != typeFilter {
			continue
		}
		out = append(out, m.tierFor(t).List()...)
	}
	return out
}

// tierFor maps a memory type to its store.
func (m *Manager) tierFor(t types.MemoryType) store.Tier {
	switch t {
	case types.TypeWorking:
		return m.working
	case types.TypeFactual:
		return m.facts
	case types.TypeEpisodic:
		return m.episodic
	case types.TypeSemantic:
		return m.semantic
	default:
		return nil
	}
}

// lookupItem finds an item by id in any tier without touching it.
func (m *Manager) lookupItem(id string) (*types.MemoryItem, bool) {
	for _, t := range types.ValidMemoryTypes {
		if item, ok := m.tierFor(t).Get(id); ok {
			return item, true
		}
	}
	return nil, false
}

// --- extraction ---

// Remember runs the message through the extractor and routes whatever it
// decides to keep into the appropriate tier. A nil item with a nil error
// means the extractor (correctly) decided not to remember; extraction
// failures are logged and counted, never returned.
func (m *Manager) Remember(ctx context.Context, message string) (*types.MemoryItem, error) {
	result := m.extractor.Extract(ctx, message, m.extractionContext())
	if !result.ShouldRemember {
		return nil, nil
	}
	m.stats.extractionsAccepted.Add(1)

	switch result.MemoryType {
	case types.TypeWorking:
		item, err := m.StoreWorking(ctx, result.Content, result.Importance, result.Tags...)
		if err == nil {
			return item, nil
		}
		// No active session: the extracted content is still worth keeping,
		// demote it to the factual tier.
		log.Printf("WARNING: no active session for extracted working memory, storing as fact")
		return m.StoreFact(ctx, result.Content, result.Content, result.Importance, result.Tags...)
	case types.TypeSemantic:
		return m.StoreConcept(ctx, result.Content, result.Importance)
	case types.TypeEpisodic:
		m.mu.Lock()
		open := m.openEpisode != nil
		m.mu.Unlock()
		if open {
			if err := m.AddToEpisode(result.Content); err == nil {
				return nil, nil
			}
		}
		fallthrough
	default:
		// Factual is the durable default. The content doubles as the key,
		// so re-extracting the same statement is a harmless overwrite.
		return m.StoreFact(ctx, result.Content, result.Content, result.Importance, result.Tags...)
	}
}

// extractionContext summarizes manager state for the extraction prompt.
func (m *Manager) extractionContext() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	if m.sessionState == types.SessionActive {
		fmt.Fprintf(&b, "Active session: %s.", m.session.ID)
	}
	if m.openEpisode != nil {
		fmt.Fprintf(&b, " Recording episode: %s.", m.openEpisode.Title)
	}
	return b.String()
}

// --- decay ---

// RunDecay sweeps all four tiers with the given policy and returns the
// number of items removed. Decay runs only when called, never inside a
// write path. Removed items leave dangling graph edges behind; traversal
// filters those lazily.
func (m *Manager) RunDecay(cfg DecayConfig) int {
	removed := 0
	for _, t := range types.ValidMemoryTypes {
		removed += m.decay.Run(m.tierFor(t), cfg)
	}
	m.stats.decayRuns.Add(1)
	m.stats.decayRemoved.Add(int64(removed))
	return removed
}

// --- graph ---

// Link records a symmetric related-memory edge between two items.
func (m *Manager) Link(a, b string) {
	m.graph.Link(a, b)
}

// Related returns the items reachable from id within depth hops of the
// related-memory graph. Edges to removed items are skipped and pruned.
func (m *Manager) Related(id string, depth int) []*types.MemoryItem {
	ids := m.graph.Related(id, depth, func(candidate string) bool {
		_, ok := m.lookupItem(candidate)
		return ok
	})

	items := make([]*types.MemoryItem, 0, len(ids))
	for _, relatedID := range ids {
		if item, ok := m.lookupItem(relatedID); ok {
			items = append(items, item)
		}
	}
	return items
}

// --- stats ---

// Stats returns a point-in-time snapshot of manager state. It reads
// counters atomically and never mutates access bookkeeping.
func (m *Manager) Stats() types.Stats {
	m.mu.Lock()
	state := m.sessionState
	sessionID := ""
	if m.session != nil {
		sessionID = m.session.ID
	}
	m.mu.Unlock()

	return types.Stats{
		WorkingCount:        m.working.Len(),
		FactCount:           m.facts.Len(),
		EpisodicCount:       m.episodic.Len(),
		SemanticCount:       m.semantic.Len(),
		SessionState:        state,
		SessionID:           sessionID,
		DecayRuns:           m.stats.decayRuns.Load(),
		DecayRemoved:        m.stats.decayRemoved.Load(),
		StoreOps:            m.stats.storeOps.Load(),
		RetrieveOps:         m.stats.retrieveOps.Load(),
		Evictions:           m.stats.evictions.Load(),
		ExtractionFailures:  m.stats.extractionFailures.Load(),
		EmbeddingFailures:   m.stats.embeddingFailures.Load(),
		ExtractionsAccepted: m.stats.extractionsAccepted.Load(),
	}
}

// --- archive ---

// LoadArchive hydrates the durable tiers from the attached archive:
// facts and concepts from archived items, sealed episodes as episodic
// records. Working memory is ephemeral and never archived.
func (m *Manager) LoadArchive(ctx context.Context) error {
	if m.archive == nil {
		return nil
	}

	items, err := m.archive.LoadItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to load archived items: %w", err)
	}
	for _, item := range items {
		switch item.MemoryType {
		case types.TypeFactual:
			_, evicted := m.facts.Upsert(item)
			m.stats.countEviction(evicted)
		case types.TypeSemantic:
			concept := &types.SemanticConcept{Content: item.Content, Confidence: item.Importance}
			_, evicted := m.semantic.StoreConcept(concept, item)
			m.stats.countEviction(evicted)
		}
	}

	episodes, err := m.archive.LoadEpisodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load archived episodes: %w", err)
	}
	for _, ep := range episodes {
		if !ep.IsSealed() {
			continue
		}
		item := m.newItem(renderEpisode(ep), types.TypeEpisodic, episodeImportance(ep), nil)
		item.ID = ep.ID
		item.SessionID = ep.SessionID
		if evicted, err := m.episodic.AddSealed(ep, item); err == nil {
			m.stats.countEviction(evicted)
		}
	}
	return nil
}

// VectorSearcher is implemented by archives that can rank their rows by
// vector similarity (the Postgres archive, when pgvector is installed).
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, vec []float32, limit int) ([]string, error)
}

// SearchArchive ranks archived items against the query by vector
// similarity and returns up to limit matching item ids, including items
// long evicted from the in-memory tiers. Returns nil without error when
// the archive cannot search vectors or no embedding provider is
// configured; Retrieve remains the in-memory path.
func (m *Manager) SearchArchive(ctx context.Context, query string, limit int) ([]string, error) {
	searcher, ok := m.archive.(VectorSearcher)
	if !ok {
		return nil, nil
	}
	vec, embedded := m.index.Embed(ctx, query)
	if !embedded {
		return nil, nil
	}
	return searcher.SearchSimilar(ctx, vec, limit)
}

// archiveItem saves a durable item to the archive, best-effort.
func (m *Manager) archiveItem(ctx context.Context, item *types.MemoryItem) {
	if m.archive == nil || item == nil {
		return
	}
	if err := m.archive.SaveItem(ctx, item); err != nil {
		log.Printf("WARNING: failed to archive item %s: %v", item.ID, err)
	}
}

// --- internals ---

// newItem builds a fresh memory item with importance clamped to [0, 1].
func (m *Manager) newItem(content string, memoryType types.MemoryType, importance float64, tags []string) *types.MemoryItem {
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}

	now := m.now()
	return &types.MemoryItem{
		ID:             types.NewItemID(),
		Content:        content,
		MemoryType:     memoryType,
		CreatedAt:      now,
		LastAccessedAt: now,
		Importance:     importance,
		Tags:           tags,
	}
}

// embedAndLink vectorizes the item before it becomes visible and links it
// to its nearest embedded neighbors across all tiers. Both steps are
// best-effort; an item without a vector simply skips similarity scoring
// and linking.
func (m *Manager) embedAndLink(ctx context.Context, item *types.MemoryItem) {
	vec, ok := m.index.Embed(ctx, item.Content)
	if !ok {
		return
	}
	item.Embedding = vec

	if m.cfg.LinkTopK <= 0 {
		return
	}
	neighbors := nearest(vec, m.candidates(""), item.ID, m.cfg.LinkTopK, m.cfg.LinkMinSimilarity)
	for _, neighbor := range neighbors {
		m.graph.Link(item.ID, neighbor)
	}
	item.RelatedIDs = neighbors
}
