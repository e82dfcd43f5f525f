package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Address represents a single email address known to the system. The email
// field preserves the case it was first seen with; all identity comparisons
// fold to lower case.
type Address struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	DisplayName string     `json:"display_name" db:"display_name"`
	VerifiedAt  *time.Time `json:"verified_at" db:"verified_at"`
	UserID      *uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`

	// Preferences at the address layer; consulted when a membership's own
	// preference field is nil.
	Preferences Preferences `json:"preferences"`
}

// CaseFolded returns the canonical lower-cased form used for identity.
func (a *Address) CaseFolded() string {
	return FoldEmail(a.Email)
}

// Verified reports whether the address has completed verification.
func (a *Address) Verified() bool {
	return a.VerifiedAt != nil
}

// FoldEmail normalises an email for case-insensitive comparison.
func FoldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// User represents an account that may own several addresses. PreferredAddressID,
// when set, must point at a verified address owned by this user.
type User struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	DisplayName        string     `json:"display_name" db:"display_name"`
	PreferredAddressID *uuid.UUID `json:"preferred_address_id" db:"preferred_address_id"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`

	// Preferences at the user layer; the last stop before system defaults.
	Preferences Preferences `json:"preferences"`
}

// HexID returns the user id without dashes, the compact form exposed to
// external callers alongside the canonical UUID.
func (u *User) HexID() string {
	return strings.ReplaceAll(u.ID.String(), "-", "")
}

// Ban forbids an email (or regexp pattern prefixed with '^') from holding any
// membership. A nil ListID means the ban is site-wide.
type Ban struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ListID    *string   `json:"list_id" db:"list_id"`
	Pattern   string    `json:"pattern" db:"pattern"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsPattern reports whether the ban matches by regexp rather than literal email.
func (b *Ban) IsPattern() bool {
	return strings.HasPrefix(b.Pattern, "^")
}
