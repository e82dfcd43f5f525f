// Package events provides the synchronous in-process event bus the
// lifecycle core publishes membership changes on.
//
// Publishing is fire-and-forget within the publisher's transaction:
// a subscriber that panics or misbehaves is logged and isolated, it never
// rolls the publisher back.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every lifecycle event published on the bus.
type Event interface {
	// Name returns the stable event name subscribers can switch on.
	Name() string
}

// SubscriptionEvent fires when a membership is created.
type SubscriptionEvent struct {
	ListID   string
	MemberID uuid.UUID
	Email    string
	Role     string
	At       time.Time
}

func (SubscriptionEvent) Name() string { return "subscription" }

// UnsubscriptionEvent fires when a membership is destroyed by an
// unsubscribe, moderator removal, or list deletion.
type UnsubscriptionEvent struct {
	ListID   string
	MemberID uuid.UUID
	Email    string
	At       time.Time
}

func (UnsubscriptionEvent) Name() string { return "unsubscription" }

// MembershipDisabledByBouncesEvent fires when the bounce processor turns a
// member's delivery off.
type MembershipDisabledByBouncesEvent struct {
	ListID   string
	MemberID uuid.UUID
	Email    string
	Score    int
	At       time.Time
}

func (MembershipDisabledByBouncesEvent) Name() string { return "membership_disabled_by_bounces" }

// MembershipRemovedForBouncesEvent fires when the escalation pass removes a
// member whose warnings are exhausted.
type MembershipRemovedForBouncesEvent struct {
	ListID   string
	MemberID uuid.UUID
	Email    string
	At       time.Time
}

func (MembershipRemovedForBouncesEvent) Name() string { return "membership_removed_for_bounces" }

// ConfirmationRequiredEvent fires when a workflow suspends on a pending
// action waiting for the subscriber or a moderator.
type ConfirmationRequiredEvent struct {
	ListID     string
	Email      string
	Token      string
	TokenOwner string
	At         time.Time
}

func (ConfirmationRequiredEvent) Name() string { return "confirmation_required" }
