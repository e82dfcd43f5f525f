package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role enumerates the relationships a subscriber can have with a list.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
	RoleNonmember Role = "nonmember"
)

// DeliveryMode enumerates how list traffic is delivered to a member.
type DeliveryMode string

const (
	DeliveryRegular          DeliveryMode = "regular"
	DeliveryMIMEDigests      DeliveryMode = "mime_digests"
	DeliveryPlaintextDigests DeliveryMode = "plaintext_digests"
	DeliverySummaryDigests   DeliveryMode = "summary_digests"
)

// DeliveryStatus enumerates whether and why delivery is enabled or disabled.
type DeliveryStatus string

const (
	DeliveryEnabled     DeliveryStatus = "enabled"
	DeliveryByUser      DeliveryStatus = "by_user"
	DeliveryByBounces   DeliveryStatus = "by_bounces"
	DeliveryByModerator DeliveryStatus = "by_moderator"
	DeliveryUnknown     DeliveryStatus = "unknown"
)

// ModerationAction enumerates dispositions for postings or held requests.
// The empty string means "inherit the list default".
type ModerationAction string

const (
	ActionAccept  ModerationAction = "accept"
	ActionHold    ModerationAction = "hold"
	ActionReject  ModerationAction = "reject"
	ActionDiscard ModerationAction = "discard"
	ActionDefer   ModerationAction = "defer"
)

// Preferences holds per-member delivery settings. Every field is nullable;
// nil means "inherit from the next layer" (address, user, system default).
type Preferences struct {
	DeliveryMode       *DeliveryMode   `json:"delivery_mode" db:"delivery_mode"`
	DeliveryStatus     *DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	PreferredLanguage  *string         `json:"preferred_language" db:"preferred_language"`
	AcknowledgePosts   *bool           `json:"acknowledge_posts" db:"acknowledge_posts"`
	HideAddress        *bool           `json:"hide_address" db:"hide_address"`
	ReceiveOwnPostings *bool           `json:"receive_own_postings" db:"receive_own_postings"`
	ReceiveListCopy    *bool           `json:"receive_list_copy" db:"receive_list_copy"`
}

// DefaultPreferences returns the system-wide preference layer, the final
// stop of the resolution walk when every other layer is nil.
func DefaultPreferences() Preferences {
	mode := DeliveryRegular
	status := DeliveryEnabled
	lang := "en"
	f := false
	t := true
	return Preferences{
		DeliveryMode:       &mode,
		DeliveryStatus:     &status,
		PreferredLanguage:  &lang,
		AcknowledgePosts:   &f,
		HideAddress:        &f,
		ReceiveOwnPostings: &t,
		ReceiveListCopy:    &t,
	}
}

// Membership is the durable (list, subscriber, role) triple. Exactly one of
// AddressID and UserID is non-nil; a user-subscription resolves to the user's
// preferred address at read time.
type Membership struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	ListID           string           `json:"list_id" db:"list_id"`
	Role             Role             `json:"role" db:"role"`
	AddressID        *uuid.UUID       `json:"address_id" db:"address_id"`
	UserID           *uuid.UUID       `json:"user_id" db:"user_id"`
	ModerationAction ModerationAction `json:"moderation_action" db:"moderation_action"`
	Preferences      Preferences      `json:"preferences"`

	BounceScore        int        `json:"bounce_score" db:"bounce_score"`
	LastBounceReceived *time.Time `json:"last_bounce_received" db:"last_bounce_received"`
	LastWarningSent    time.Time  `json:"last_warning_sent" db:"last_warning_sent"`
	TotalWarningsSent  int        `json:"total_warnings_sent" db:"total_warnings_sent"`

	// Email is the resolved subscribing address, populated on read.
	Email string `json:"email" db:"email"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultModerationAction returns the moderation action a freshly created
// membership carries for the given role. Owners and moderators accept their
// own postings; members and nonmembers inherit the list policy.
func DefaultModerationAction(role Role) ModerationAction {
	switch role {
	case RoleOwner, RoleModerator:
		return ActionAccept
	default:
		return ""
	}
}

// DeliveryDisabledByBounces reports whether the bounce processor has turned
// delivery off for this membership.
func (m *Membership) DeliveryDisabledByBounces() bool {
	return m.Preferences.DeliveryStatus != nil && *m.Preferences.DeliveryStatus == DeliveryByBounces
}
