package memory

import "errors"

// Sentinel errors for public API misuse. Only session/episode ordering
// violations and malformed queries surface to callers; degraded-mode
// paths (failed extraction, failed embedding) are logged and recovered
// locally.
var (
	// ErrSessionNotActive is returned by working-memory and episode
	// operations when no session is open.
	ErrSessionNotActive = errors.New("no active session")

	// ErrNoOpenEpisode is returned when appending to or sealing an
	// episode while none is recording.
	ErrNoOpenEpisode = errors.New("no open episode")

	// ErrEpisodeAlreadyOpen is returned by StartEpisode while another
	// episode is still recording; episodes are never silently queued.
	ErrEpisodeAlreadyOpen = errors.New("an episode is already open")
)
