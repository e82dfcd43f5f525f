package domain

import (
	"strings"
	"time"
)

// SubscriptionPolicy controls which gates a subscription request passes.
type SubscriptionPolicy string

const (
	PolicyOpen                SubscriptionPolicy = "open"
	PolicyConfirm             SubscriptionPolicy = "confirm"
	PolicyModerate            SubscriptionPolicy = "moderate"
	PolicyConfirmThenModerate SubscriptionPolicy = "confirm_then_moderate"
)

// RequiresConfirmation reports whether the policy demands user confirmation.
func (p SubscriptionPolicy) RequiresConfirmation() bool {
	switch p {
	case PolicyConfirm, PolicyConfirmThenModerate:
		return true
	}
	return false
}

// RequiresApproval reports whether the policy demands moderator approval.
func (p SubscriptionPolicy) RequiresApproval() bool {
	switch p {
	case PolicyModerate, PolicyConfirmThenModerate:
		return true
	}
	return false
}

// UnrecognizedBounceDisposition controls what happens to bounces the
// processor cannot associate with a member.
type UnrecognizedBounceDisposition string

const (
	UnrecognizedToListOwner UnrecognizedBounceDisposition = "list_owner"
	UnrecognizedToSiteOwner UnrecognizedBounceDisposition = "site_owner"
	UnrecognizedDiscard     UnrecognizedBounceDisposition = "discard"
)

// List is the policy record the core reads for a mailing list. The core never
// mutates lists; list administration belongs to the management front-ends.
type List struct {
	ListID      string `json:"list_id" db:"list_id"`
	DisplayName string `json:"display_name" db:"display_name"`
	MailHost    string `json:"mail_host" db:"mail_host"`

	PostingAddress string `json:"posting_address" db:"posting_address"`
	RequestAddress string `json:"request_address" db:"request_address"`
	BouncesAddress string `json:"bounces_address" db:"bounces_address"`
	OwnerAddress   string `json:"owner_address" db:"owner_address"`

	AliasDomains []string `json:"alias_domains" db:"alias_domains"`

	SubscriptionPolicy     SubscriptionPolicy `json:"subscription_policy" db:"subscription_policy"`
	UnsubscriptionPolicy   SubscriptionPolicy `json:"unsubscription_policy" db:"unsubscription_policy"`
	DefaultMemberAction    ModerationAction   `json:"default_member_action" db:"default_member_action"`
	DefaultNonmemberAction ModerationAction   `json:"default_nonmember_action" db:"default_nonmember_action"`

	ProcessBounces                       bool          `json:"process_bounces" db:"process_bounces"`
	BounceScoreThreshold                 int           `json:"bounce_score_threshold" db:"bounce_score_threshold"`
	BounceInfoStaleAfter                 time.Duration `json:"bounce_info_stale_after" db:"bounce_info_stale_after"`
	BounceYouAreDisabledWarnings         int           `json:"bounce_you_are_disabled_warnings" db:"bounce_you_are_disabled_warnings"`
	BounceYouAreDisabledWarningsInterval time.Duration `json:"bounce_you_are_disabled_warnings_interval" db:"bounce_you_are_disabled_warnings_interval"`
	BounceNotifyOwnerOnDisable           bool          `json:"bounce_notify_owner_on_disable" db:"bounce_notify_owner_on_disable"`
	BounceNotifyOwnerOnRemoval           bool          `json:"bounce_notify_owner_on_removal" db:"bounce_notify_owner_on_removal"`

	ForwardUnrecognizedBouncesTo UnrecognizedBounceDisposition `json:"forward_unrecognized_bounces_to" db:"forward_unrecognized_bounces_to"`

	SendWelcomeMessage  bool `json:"send_welcome_message" db:"send_welcome_message"`
	SendGoodbyeMessage  bool `json:"send_goodbye_message" db:"send_goodbye_message"`
	AdminNotifyMchanges bool `json:"admin_notify_mchanges" db:"admin_notify_mchanges"`

	PreferredLanguage      string `json:"preferred_language" db:"preferred_language"`
	MemberRosterVisibility string `json:"member_roster_visibility" db:"member_roster_visibility"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ReservedAddresses returns the list's own addresses, none of which may ever
// appear on the roster in any role.
func (l *List) ReservedAddresses() []string {
	return []string{l.PostingAddress, l.RequestAddress, l.BouncesAddress, l.OwnerAddress}
}

// IsReservedAddress reports whether email is one of the list's own addresses.
func (l *List) IsReservedAddress(email string) bool {
	folded := FoldEmail(email)
	for _, a := range l.ReservedAddresses() {
		if FoldEmail(a) == folded {
			return true
		}
	}
	return false
}

// ListIDFromPostingAddress derives the canonical dotted list-id from a posting
// address: "test@example.com" becomes "test.example.com".
func ListIDFromPostingAddress(posting string) string {
	at := strings.Index(posting, "@")
	if at < 0 {
		return FoldEmail(posting)
	}
	return FoldEmail(posting[:at] + "." + posting[at+1:])
}
