package identity

import "errors"

// Sentinel errors for the identity store.
var (
	// ErrAddressAlreadyLinked is returned when two users claim the same address.
	ErrAddressAlreadyLinked = errors.New("address is already linked to another user")

	// ErrInvalidEmail is returned for text that does not parse as an address.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrUnverifiedAddress is returned when an operation requires a verified
	// address (preferred-address assignment, membership address changes).
	ErrUnverifiedAddress = errors.New("address is not verified")

	// ErrAddressNotOwned is returned when a preferred address does not belong
	// to the user it is being assigned to.
	ErrAddressNotOwned = errors.New("address is not owned by this user")

	// ErrNotFound is returned by operations that require an existing record.
	ErrNotFound = errors.New("identity record not found")
)
