package types

import "time"

// SessionState describes the lifecycle position of the manager's session
// tracking. The machine is NoSession -> Active -> Ended; Ended is terminal
// for a given session instance and a new StartSession creates a fresh
// session rather than resurrecting the old one.
type SessionState string

// Session lifecycle constants
const (
	SessionNone   SessionState = "none"
	SessionActive SessionState = "active"
	SessionEnded  SessionState = "ended"
)

// Session tracks working memory created under one session id.
type Session struct {
	ID       string    `json:"id"`
	OpenedAt time.Time `json:"opened_at"`

	// ItemIDs lists the working-memory items created under this session,
	// in insertion order. The items themselves live in the working store.
	ItemIDs []string `json:"item_ids,omitempty"`
}

// Clone returns a copy of the session with its own item id slice.
func (s *Session) Clone() *Session {
	clone := *s
	clone.ItemIDs = append([]string(nil), s.ItemIDs...)
	return &clone
}
