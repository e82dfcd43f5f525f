package identity

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/listkeeper/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so that store methods can
// run inside the caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides database operations for users, addresses, and bans.
type Store struct {
	db DBTX
}

// NewStore creates a new identity store.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a view of the store bound to the given transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

const addressColumns = `id, email, display_name, verified_at, user_id, created_at`

func scanAddress(row *sql.Row) (*domain.Address, error) {
	a := &domain.Address{}
	var displayName sql.NullString
	err := row.Scan(&a.ID, &a.Email, &displayName, &a.VerifiedAt, &a.UserID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.DisplayName = displayName.String
	return a, nil
}

// CreateAddress creates an address, preserving its original case. Creating an
// address that already exists (case-insensitively) returns the existing
// record rather than failing.
func (s *Store) CreateAddress(ctx context.Context, email, displayName string) (*domain.Address, error) {
	if !IsValidEmail(email) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	if existing, err := s.GetAddress(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	a := &domain.Address{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO addresses (id, email, display_name, created_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Email, a.DisplayName, a.CreatedAt)
	if isUniqueViolation(err) {
		// Lost a race with a concurrent create; the winner's row is the record.
		return s.GetAddress(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAddress looks an address up by email, folding case.
func (s *Store) GetAddress(ctx context.Context, email string) (*domain.Address, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE lower(email) = $1`,
		domain.FoldEmail(email))
	return scanAddress(row)
}

// GetAddressByID looks an address up by primary key.
func (s *Store) GetAddressByID(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id)
	return scanAddress(row)
}

// VerifyAddress stamps the address verified as of now. Idempotent: an
// already-verified address keeps its original timestamp.
func (s *Store) VerifyAddress(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE addresses SET verified_at = COALESCE(verified_at, NOW()) WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUser creates a user, implicitly creating and linking an address when
// an email is supplied.
func (s *Store) CreateUser(ctx context.Context, email, displayName string) (*domain.User, error) {
	u := &domain.User{
		ID:          uuid.New(),
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, created_at) VALUES ($1, $2, $3)`,
		u.ID, u.DisplayName, u.CreatedAt)
	if err != nil {
		return nil, err
	}

	if email != "" {
		addr, err := s.CreateAddress(ctx, email, displayName)
		if err != nil {
			return nil, err
		}
		if err := s.Link(ctx, u.ID, addr.ID); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// GetUser returns the user owning the given address, or nil.
func (s *Store) GetUser(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.preferred_address_id, u.created_at
		FROM users u JOIN addresses a ON a.user_id = u.id
		WHERE lower(a.email) = $1`,
		domain.FoldEmail(email))
	return scanUser(row)
}

// GetUserByID looks a user up by UUID.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, preferred_address_id, created_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	u := &domain.User{}
	var displayName sql.NullString
	err := row.Scan(&u.ID, &displayName, &u.PreferredAddressID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.DisplayName = displayName.String
	return u, nil
}

// Link attaches an address to a user. Linking an address another user
// already owns fails with ErrAddressAlreadyLinked; re-linking to the same
// user is a no-op.
func (s *Store) Link(ctx context.Context, userID, addressID uuid.UUID) error {
	addr, err := s.GetAddressByID(ctx, addressID)
	if err != nil {
		return err
	}
	if addr == nil {
		return ErrNotFound
	}
	if addr.UserID != nil {
		if *addr.UserID == userID {
			return nil
		}
		return ErrAddressAlreadyLinked
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE addresses SET user_id = $1 WHERE id = $2 AND user_id IS NULL`, userID, addressID)
	return err
}

// Unlink detaches an address from its user, clearing the user's preferred
// address if it pointed here.
func (s *Store) Unlink(ctx context.Context, userID, addressID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE addresses SET user_id = NULL WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET preferred_address_id = NULL WHERE id = $1 AND preferred_address_id = $2`,
		userID, addressID)
	return err
}

// SetPreferredAddress points a user at one of their verified addresses.
func (s *Store) SetPreferredAddress(ctx context.Context, userID, addressID uuid.UUID) error {
	addr, err := s.GetAddressByID(ctx, addressID)
	if err != nil {
		return err
	}
	if addr == nil {
		return ErrNotFound
	}
	if addr.UserID == nil || *addr.UserID != userID {
		return ErrAddressNotOwned
	}
	if !addr.Verified() {
		return ErrUnverifiedAddress
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET preferred_address_id = $1 WHERE id = $2`, addressID, userID)
	return err
}

// PreferredAddress resolves a user's current preferred address, or nil.
func (s *Store) PreferredAddress(ctx context.Context, userID uuid.UUID) (*domain.Address, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil || u == nil {
		return nil, err
	}
	if u.PreferredAddressID == nil {
		return nil, nil
	}
	return s.GetAddressByID(ctx, *u.PreferredAddressID)
}

// AddBan records a ban. A nil listID makes the ban site-wide.
func (s *Store) AddBan(ctx context.Context, listID *string, pattern string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bans (id, list_id, pattern, created_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (pattern, list_id) DO NOTHING`,
		uuid.New(), listID, pattern)
	return err
}

// RemoveBan deletes a ban.
func (s *Store) RemoveBan(ctx context.Context, listID *string, pattern string) error {
	var res sql.Result
	var err error
	if listID == nil {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM bans WHERE list_id IS NULL AND pattern = $1`, pattern)
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM bans WHERE list_id = $1 AND pattern = $2`, *listID, pattern)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsBanned reports whether an email may not subscribe to the given list,
// considering both site-wide and list-scoped bans. Patterns starting with
// '^' match as regular expressions; anything else compares case-folded.
func (s *Store) IsBanned(ctx context.Context, listID, email string) (bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern FROM bans WHERE list_id IS NULL OR list_id = $1`, listID)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	folded := domain.FoldEmail(email)
	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return false, err
		}
		if matchBan(pattern, folded) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func matchBan(pattern, foldedEmail string) bool {
	if len(pattern) > 0 && pattern[0] == '^' {
		re, err := regexp.Compile(`(?i)` + pattern)
		if err != nil {
			return false
		}
		return re.MatchString(foldedEmail)
	}
	return domain.FoldEmail(pattern) == foldedEmail
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
