package subscription

import "errors"

// Sentinel errors for the workflow engine. All surface to callers as
// conflicts with no state change.
var (
	// ErrNoSuchList is returned when the list-id resolves to nothing.
	ErrNoSuchList = errors.New("no such mailing list")

	// ErrAlreadySubscribed is returned when the (list, subscriber, role)
	// triple already exists.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrMembershipBanned is returned when the address is banned from the
	// list or site-wide.
	ErrMembershipBanned = errors.New("membership is banned")

	// ErrSubscriptionPending is returned when a prior pending token exists
	// for the same (list, email).
	ErrSubscriptionPending = errors.New("subscription request already pending")

	// ErrMissingPreferredAddress is returned for a user subscriber with no
	// preferred address.
	ErrMissingPreferredAddress = errors.New("user has no preferred address")

	// ErrInvalidEmailAddress is returned for malformed addresses and for the
	// list's own posting/request/bounces/owner addresses.
	ErrInvalidEmailAddress = errors.New("invalid email address")

	// ErrUnverifiedAddress is returned when changing a membership's
	// subscribing address to one that has not been verified.
	ErrUnverifiedAddress = errors.New("new address is not verified")

	// ErrAddressOwnershipMismatch is returned when the replacement address
	// belongs to a different user than the current one.
	ErrAddressOwnershipMismatch = errors.New("addresses belong to different users")

	// ErrNotAddressSubscription is returned when changing the address of a
	// membership that was subscribed as a user.
	ErrNotAddressSubscription = errors.New("membership is not an address subscription")

	// ErrNotAMember is returned by unsubscription for an address that holds
	// no membership.
	ErrNotAMember = errors.New("not a member of this list")

	// ErrTokenNotFound is returned when a token is absent, expired, or
	// already consumed.
	ErrTokenNotFound = errors.New("token not found or expired")
)
