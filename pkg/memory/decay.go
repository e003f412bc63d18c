package memory

import (
	"time"

	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

// DecayConfig parameterizes one decay sweep. An item is removed iff all
// three conditions hold simultaneously:
//
//	importance < ImportanceThreshold
//	AND age  > AgeThreshold
//	AND idle > AccessThreshold
//
// A recently-accessed but low-importance item survives, as does an old
// but high-importance one. The named presets are parameterizations of
// this single rule, never separate code paths.
type DecayConfig struct {
	ImportanceThreshold float64       `yaml:"importance_threshold"`
	AgeThreshold        time.Duration `yaml:"age_threshold"`
	AccessThreshold     time.Duration `yaml:"access_threshold"`
}

// ConservativeDecayConfig removes little: only items that are both quite
// unimportant and have sat untouched for a long time.
func ConservativeDecayConfig() DecayConfig {
	return DecayConfig{
		ImportanceThreshold: 0.2,
		AgeThreshold:        30 * 24 * time.Hour,
		AccessThreshold:     14 * 24 * time.Hour,
	}
}

// AggressiveDecayConfig removes more: anything of middling importance
// that has aged a week and idled a day is swept.
func AggressiveDecayConfig() DecayConfig {
	return DecayConfig{
		ImportanceThreshold: 0.5,
		AgeThreshold:        7 * 24 * time.Hour,
		AccessThreshold:     24 * time.Hour,
	}
}

// DecayEngine sweeps tier stores and removes items that fall below the
// retention policy. It is invoked explicitly (on a caller's schedule or
// on demand) and never runs inside a write path.
type DecayEngine struct {
	now func() time.Time
}

// NewDecayEngine creates a decay engine using the wall clock.
func NewDecayEngine() *DecayEngine {
	return &DecayEngine{now: time.Now}
}

// newDecayEngineAt creates a decay engine with an injected clock for tests.
func newDecayEngineAt(now func() time.Time) *DecayEngine {
	return &DecayEngine{now: now}
}

// Run sweeps the tier and returns the number of items removed. The whole
// sweep runs under the tier's write lock, blocking concurrent writers to
// that tier for its duration, so an item touched during the sweep cannot
// be evaluated on stale bookkeeping and then removed. Other tiers are
// never touched.
func (d *DecayEngine) Run(tier store.Tier, cfg DecayConfig) int {
	now := d.now()
	return tier.Sweep(func(item *types.MemoryItem) bool {
		age := now.Sub(item.CreatedAt)
		idle := now.Sub(item.LastAccessedAt)

		return item.Importance < cfg.ImportanceThreshold &&
			age > cfg.AgeThreshold &&
			idle > cfg.AccessThreshold
	})
}
