package domain

import (
	"time"

	"github.com/google/uuid"
)

// PendKind enumerates the workflows a pending action can belong to.
type PendKind string

const (
	PendSubscription   PendKind = "subscription"
	PendUnsubscription PendKind = "unsubscription"
	PendInvitation     PendKind = "invitation"
	PendProbe          PendKind = "probe"
	PendHeldMessage    PendKind = "held_message"
	PendRegistration   PendKind = "registration"
)

// TokenOwner identifies which party is expected to act on a pending action.
type TokenOwner string

const (
	OwnerNoOne      TokenOwner = "no_one"
	OwnerSubscriber TokenOwner = "subscriber"
	OwnerModerator  TokenOwner = "moderator"
)

// PendPayload is the serialized state of a suspended workflow. The workflow
// engine re-enters the state machine from these fields when the token is
// confirmed.
type PendPayload struct {
	ListID       string       `json:"list_id,omitempty"`
	Email        string       `json:"email"`
	DisplayName  string       `json:"display_name,omitempty"`
	DeliveryMode DeliveryMode `json:"delivery_mode,omitempty"`
	Language     string       `json:"language,omitempty"`

	// Step names the gate the workflow suspended at: "verify", "confirm",
	// or "approve". Empty for invitation and probe payloads, whose kind
	// already identifies the gate.
	Step string `json:"step,omitempty"`

	PreVerified  bool `json:"pre_verified,omitempty"`
	PreConfirmed bool `json:"pre_confirmed,omitempty"`
	PreApproved  bool `json:"pre_approved,omitempty"`
	Invitation   bool `json:"invitation,omitempty"`

	// SendWelcome overrides the list's send_welcome_message knob when non-nil.
	SendWelcome *bool `json:"send_welcome,omitempty"`

	// MemberID carries the target membership for probe payloads.
	MemberID string `json:"member_id,omitempty"`

	// UserID is set when the subscriber is a user rather than a bare
	// address, so a resumed workflow links the membership to the user.
	UserID *uuid.UUID `json:"user_id,omitempty"`
}

// PendingAction is a tokenised, expirable record of an in-flight multi-step
// workflow. Tokens are single-use: confirming with expunge removes the row.
type PendingAction struct {
	Token      string      `json:"token" db:"token"`
	Kind       PendKind    `json:"kind" db:"kind"`
	ListID     *string     `json:"list_id" db:"list_id"`
	Payload    PendPayload `json:"payload" db:"payload"`
	TokenOwner TokenOwner  `json:"token_owner" db:"token_owner"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the action is past its lifetime at the given instant.
func (p *PendingAction) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
