package domain

import (
	"time"

	"github.com/google/uuid"
)

// BounceContext distinguishes ordinary delivery failures from probe bounces,
// whose VERP envelope already identifies exactly one member.
type BounceContext string

const (
	ContextNormal BounceContext = "normal"
	ContextProbe  BounceContext = "probe"
)

// BounceEvent is one delivery failure reported by the intake collaborator.
// Events are never deleted; the processor marks them processed.
type BounceEvent struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	ListID     string        `json:"list_id" db:"list_id"`
	Email      string        `json:"email" db:"email"`
	ReceivedAt time.Time     `json:"received_at" db:"received_at"`
	MessageID  string        `json:"message_id" db:"message_id"`
	Context    BounceContext `json:"context" db:"context"`
	Processed  bool          `json:"processed" db:"processed"`
}

// SameUTCDay reports whether two instants fall on the same UTC calendar date.
// Bounce scoring increments at most once per UTC day per member.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
