package types

import (
	"errors"
	"time"
)

// ErrEpisodeSealed is returned when appending to an episode that has
// already been sealed. An episode is sealed exactly once and is immutable
// thereafter.
var ErrEpisodeSealed = errors.New("episode is sealed")

// Episode is an append-only record of a bounded interaction. Content can
// be appended only while the episode is open; EndEpisode seals it and the
// record becomes immutable.
type Episode struct {
	ID        string     `json:"id"`         // Unique identifier (format: ep:<uuid>)
	SessionID string     `json:"session_id"` // Session the episode was recorded under
	Title     string     `json:"title"`
	Content   []string   `json:"content"`             // Ordered entries, append-only while open
	OpenedAt  time.Time  `json:"opened_at"`
	SealedAt  *time.Time `json:"sealed_at,omitempty"` // Nil while the episode is open
}

// IsSealed reports whether the episode has been sealed.
func (e *Episode) IsSealed() bool {
	return e.SealedAt != nil
}

// Append adds an entry to an open episode. Appending to a sealed episode
// returns ErrEpisodeSealed.
func (e *Episode) Append(content string) error {
	if e.IsSealed() {
		return ErrEpisodeSealed
	}
	e.Content = append(e.Content, content)
	return nil
}

// Seal closes the episode at the given instant. Sealing an already-sealed
// episode returns ErrEpisodeSealed; the original seal time is preserved.
func (e *Episode) Seal(now time.Time) error {
	if e.IsSealed() {
		return ErrEpisodeSealed
	}
	sealed := now
	e.SealedAt = &sealed
	return nil
}

// Clone returns a copy of the episode with its own content slice.
func (e *Episode) Clone() *Episode {
	clone := *e
	clone.Content = append([]string(nil), e.Content...)
	if e.SealedAt != nil {
		sealed := *e.SealedAt
		clone.SealedAt = &sealed
	}
	return &clone
}
