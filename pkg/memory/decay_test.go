package memory

import (
	"testing"
	"time"

	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

func TestDecayEngine_RemovalRequiresAllThreeConditions(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := DecayConfig{
		ImportanceThreshold: 0.5,
		AgeThreshold:        7 * 24 * time.Hour,
		AccessThreshold:     24 * time.Hour,
	}

	tests := []struct {
		name       string
		importance float64
		age        time.Duration
		idle       time.Duration
		removed    bool
	}{
		{"all conditions met", 0.1, 10 * 24 * time.Hour, 48 * time.Hour, true},
		{"important", 0.9, 10 * 24 * time.Hour, 48 * time.Hour, false},
		{"importance at threshold", 0.5, 10 * 24 * time.Hour, 48 * time.Hour, false},
		{"too young", 0.1, 24 * time.Hour, 48 * time.Hour, false},
		{"recently accessed", 0.1, 10 * 24 * time.Hour, time.Hour, false},
		{"old but fresh and important", 0.9, 30 * 24 * time.Hour, time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := store.NewWorkingStore(0)
			tier.Insert(&types.MemoryItem{
				ID:             "mem:candidate",
				MemoryType:     types.TypeWorking,
				CreatedAt:      now.Add(-tt.age),
				LastAccessedAt: now.Add(-tt.idle),
				Importance:     tt.importance,
			})

			engine := newDecayEngineAt(func() time.Time { return now })
			removed := engine.Run(tier, cfg)

			if tt.removed && removed != 1 {
				t.Errorf("Expected removal, item survived")
			}
			if !tt.removed && removed != 0 {
				t.Errorf("Expected survival, item was removed")
			}
		})
	}
}

func TestDecayPresets_AggressiveRemovesMore(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Middling importance, ten days old, two days idle: inside the
	// aggressive envelope, outside the conservative one.
	seed := func() store.Tier {
		tier := store.NewWorkingStore(0)
		tier.Insert(&types.MemoryItem{
			ID:             "mem:middling",
			MemoryType:     types.TypeWorking,
			CreatedAt:      now.Add(-10 * 24 * time.Hour),
			LastAccessedAt: now.Add(-48 * time.Hour),
			Importance:     0.3,
		})
		return tier
	}

	engine := newDecayEngineAt(func() time.Time { return now })

	if removed := engine.Run(seed(), ConservativeDecayConfig()); removed != 0 {
		t.Errorf("Conservative preset should keep the item, removed %d", removed)
	}
	if removed := engine.Run(seed(), AggressiveDecayConfig()); removed != 1 {
		t.Errorf("Aggressive preset should remove the item, removed %d", removed)
	}
}
