package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

// snapshotVersion guards the serialized layout. Restore rejects snapshots
// written by an incompatible layout rather than misreading them.
const snapshotVersion = 1

// snapshot is the serialized form of all observable manager state.
type snapshot struct {
	Version int       `json:"version"`
	TakenAt time.Time `json:"taken_at"`

	SessionState types.SessionState `json:"session_state"`
	Session      *types.Session     `json:"session,omitempty"`
	OpenEpisode  *types.Episode     `json:"open_episode,omitempty"`

	Working  []*types.MemoryItem `json:"working,omitempty"`
	Facts    []*types.MemoryItem `json:"facts,omitempty"`
	Episodes []episodeSnapshot   `json:"episodes,omitempty"`
	Concepts []conceptSnapshot   `json:"concepts,omitempty"`

	Edges map[string][]string `json:"edges,omitempty"`

	Counters counterSnapshot `json:"counters"`
}

// episodeSnapshot pairs a sealed episode with its companion retrieval item.
type episodeSnapshot struct {
	Episode *types.Episode    `json:"episode"`
	Item    *types.MemoryItem `json:"item"`
}

// conceptSnapshot pairs a concept record with its companion item.
type conceptSnapshot struct {
	Concept types.SemanticConcept `json:"concept"`
	Item    *types.MemoryItem     `json:"item"`
}

type counterSnapshot struct {
	StoreOps            int64 `json:"store_ops"`
	RetrieveOps         int64 `json:"retrieve_ops"`
	Evictions           int64 `json:"evictions"`
	DecayRuns           int64 `json:"decay_runs"`
	DecayRemoved        int64 `json:"decay_removed"`
	ExtractionFailures  int64 `json:"extraction_failures"`
	EmbeddingFailures   int64 `json:"embedding_failures"`
	ExtractionsAccepted int64 `json:"extractions_accepted"`
}

// Snapshot serializes the manager's observable state to JSON: every tier's
// items, the episode and concept records behind them, session and episode
// lifecycle state, the related-memory graph and the stats counters.
func (m *Manager) Snapshot() ([]byte, error) {
	m.mu.Lock()
	snap := snapshot{
		Version:      snapshotVersion,
		TakenAt:      m.now(),
		SessionState: m.sessionState,
		Counters: counterSnapshot{
			StoreOps:            m.stats.storeOps.Load(),
			RetrieveOps:         m.stats.retrieveOps.Load(),
			Evictions:           m.stats.evictions.Load(),
			DecayRuns:           m.stats.decayRuns.Load(),
			DecayRemoved:        m.stats.decayRemoved.Load(),
			ExtractionFailures:  m.stats.extractionFailures.Load(),
			EmbeddingFailures:   m.stats.embeddingFailures.Load(),
			ExtractionsAccepted: m.stats.extractionsAccepted.Load(),
		},
	}
	if m.session != nil {
		snap.Session = m.session.Clone()
	}
	if m.openEpisode != nil {
		snap.OpenEpisode = m.openEpisode.Clone()
	}
	m.mu.Unlock()

	snap.Working = m.working.List()
	snap.Facts = m.facts.List()
	snap.Edges = m.graph.Snapshot()

	// Oldest-first so restore replays seals in the original order.
	recent := m.episodic.Recent(m.episodic.Len())
	for i := len(recent) - 1; i >= 0; i-- {
		ep := recent[i]
		item, ok := m.episodic.Get(ep.ID)
		if !ok {
			continue
		}
		snap.Episodes = append(snap.Episodes, episodeSnapshot{Episode: ep, Item: item})
	}

	for _, item := range m.semantic.List() {
		concept, ok := m.semantic.Concept(item.Content)
		if !ok {
			continue
		}
		snap.Concepts = append(snap.Concepts, conceptSnapshot{Concept: concept, Item: item})
	}

	return json.Marshal(snap)
}

// Restore replaces all manager state with the snapshot's. The manager's
// configuration (capacities, weights, providers) is kept, so a snapshot
// restored into a smaller-capacity manager evicts down to fit. Restore
// must not run concurrently with other manager operations.
func (m *Manager) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	working := store.NewWorkingStore(m.cfg.WorkingCapacity)
	for _, item := range snap.Working {
		working.Insert(item)
	}

	facts := store.NewFactStore(m.cfg.FactCapacity)
	for _, item := range snap.Facts {
		facts.Upsert(item)
	}

	episodic := store.NewEpisodicStore(m.cfg.EpisodicCapacity)
	for _, es := range snap.Episodes {
		if _, err := episodic.AddSealed(es.Episode, es.Item); err != nil {
			return fmt.Errorf("failed to restore episode %s: %w", es.Episode.ID, err)
		}
	}

	semantic := store.NewSemanticStore(m.cfg.SemanticCapacity)
	for _, cs := range snap.Concepts {
		concept := cs.Concept
		semantic.StoreConcept(&concept, cs.Item)
	}

	m.mu.Lock()
	m.working = working
	m.facts = facts
	m.episodic = episodic
	m.semantic = semantic
	m.graph.Restore(snap.Edges)
	m.sessionState = snap.SessionState
	m.session = snap.Session
	m.openEpisode = snap.OpenEpisode
	m.stats.storeOps.Store(snap.Counters.StoreOps)
	m.stats.retrieveOps.Store(snap.Counters.RetrieveOps)
	m.stats.evictions.Store(snap.Counters.Evictions)
	m.stats.decayRuns.Store(snap.Counters.DecayRuns)
	m.stats.decayRemoved.Store(snap.Counters.DecayRemoved)
	m.stats.extractionFailures.Store(snap.Counters.ExtractionFailures)
	m.stats.embeddingFailures.Store(snap.Counters.EmbeddingFailures)
	m.stats.extractionsAccepted.Store(snap.Counters.ExtractionsAccepted)
	m.mu.Unlock()

	return nil
}
