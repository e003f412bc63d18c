package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// ScoreComponents breaks a retrieval score into its weighted parts, for
// callers that want to explain a ranking.
type ScoreComponents struct {
	Similarity float64 `json:"similarity"`
	Importance float64 `json:"importance"`
	Recency    float64 `json:"recency"`
}

// RetrievalResult is one ranked memory returned by a query.
type RetrievalResult struct {
	Item       *types.MemoryItem `json:"item"`
	Score      float64           `json:"score"`
	Components ScoreComponents   `json:"components"`
}

// RetrievalEngine ranks candidate memories against a query in two stages:
// hard filters first (type, session, tags — an item failing any filter is
// excluded no matter its score), then a weighted combination of vector
// similarity, importance and recency. Candidates without a vector, or
// queries issued with no embedding provider, are scored with the weights
// renormalized over importance and recency, so missing embeddings degrade
// ranking quality and never fail a query.
type RetrievalEngine struct {
	weights  Weights
	halfLife time.Duration
	index    *EmbeddingIndex
	now      func() time.Time
}

// NewRetrievalEngine creates a retrieval engine. The index may be disabled.
func NewRetrievalEngine(weights Weights, halfLife time.Duration, index *EmbeddingIndex) *RetrievalEngine {
	if halfLife <= 0 {
		halfLife = defaultRecencyHalfLife
	}
	return &RetrievalEngine{
		weights:  weights,
		halfLife: halfLife,
		index:    index,
		now:      time.Now,
	}
}

// Retrieve filters and ranks candidates, returning at most the query's
// effective limit, best first. It does not touch items; the caller owns
// access bookkeeping for the winners.
func (r *RetrievalEngine) Retrieve(ctx context.Context, query types.MemoryQuery, candidates []*types.MemoryItem) ([]RetrievalResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	filtered := candidates[:0:0]
	for _, item := range candidates {
		if query.Matches(item) {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	// One embedding call per query, not per candidate. A failed or
	// disabled embed drops only the similarity term.
	var queryVec []float32
	if query.Query != "" && r.index.Enabled() {
		queryVec, _ = r.index.Embed(ctx, query.Query)
	}

	now := r.now()
	results := make([]RetrievalResult, 0, len(filtered))
	for _, item := range filtered {
		score, components := r.score(item, queryVec, now)
		results = append(results, RetrievalResult{Item: item, Score: score, Components: components})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Deterministic order for equal scores: most recently accessed first.
		return results[i].Item.LastAccessedAt.After(results[j].Item.LastAccessedAt)
	})

	if limit := query.EffectiveLimit(); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// score computes the weighted score of one candidate.
func (r *RetrievalEngine) score(item *types.MemoryItem, queryVec []float32, now time.Time) (float64, ScoreComponents) {
	recency := math.Exp(-now.Sub(item.LastAccessedAt).Seconds() / r.halfLife.Seconds())

	wSim, wImp, wRec := r.weights.Similarity, r.weights.Importance, r.weights.Recency

	var sim float64
	if len(queryVec) > 0 && len(item.Embedding) > 0 {
		sim = CosineSimilarity(queryVec, item.Embedding)
		if sim < 0 {
			sim = 0
		}
	} else {
		// No vector on one side: renormalize over the remaining terms.
		wSim = 0
	}

	total := wSim + wImp + wRec
	if total == 0 {
		return 0, ScoreComponents{}
	}
	wSim, wImp, wRec = wSim/total, wImp/total, wRec/total

	components := ScoreComponents{
		Similarity: wSim * sim,
		Importance: wImp * item.Importance,
		Recency:    wRec * recency,
	}
	return components.Similarity + components.Importance + components.Recency, components
}

// nearest returns the ids of the up-to-k candidates most similar to vec,
// excluding selfID and anything below minSim. Used for automatic graph
// linking of freshly embedded items.
func nearest(vec []float32, candidates []*types.MemoryItem, selfID string, k int, minSim float64) []string {
	if len(vec) == 0 || k <= 0 {
		return nil
	}

	type scored struct {
		id  string
		sim float64
	}
	var matches []scored
	for _, item := range candidates {
		if item.ID == selfID || len(item.Embedding) == 0 {
			continue
		}
		if sim := CosineSimilarity(vec, item.Embedding); sim >= minSim {
			matches = append(matches, scored{item.ID, sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].sim > matches[j].sim })
	if len(matches) > k {
		matches = matches[:k]
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids
}
