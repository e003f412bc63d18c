package memory

import "sync/atomic"

// counters tracks operation statistics with lock-free atomics so the hot
// store/retrieve paths never contend on a stats lock.
type counters struct {
	storeOps            atomic.Int64
	retrieveOps         atomic.Int64
	evictions           atomic.Int64
	decayRuns           atomic.Int64
	decayRemoved        atomic.Int64
	extractionFailures  atomic.Int64
	embeddingFailures   atomic.Int64
	extractionsAccepted atomic.Int64
}

// countEviction records an eviction when the stores report one.
func (c *counters) countEviction(evictedID string) {
	if evictedID != "" {
		c.evictions.Add(1)
	}
}
