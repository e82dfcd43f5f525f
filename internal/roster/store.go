package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/listkeeper/internal/domain"
)

// ErrDuplicate is returned when an insert collides with the
// (list, subscriber, role) uniqueness constraint.
var ErrDuplicate = errors.New("membership already exists")

// EpochMin is the zero value for last_warning_sent, far enough in the past
// that a freshly disabled member is immediately eligible for its first
// warning.
var EpochMin = time.Unix(0, 0).UTC()

// DBTX is satisfied by both *sql.DB and *sql.Tx so that store methods can
// run inside the caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides database operations for memberships.
type Store struct {
	db DBTX
}

// NewStore creates a new roster store.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a view of the store bound to the given transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

const memberColumns = `m.id, m.list_id, m.role, m.address_id, m.user_id, m.moderation_action,
	m.delivery_mode, m.delivery_status, m.preferred_language, m.acknowledge_posts,
	m.hide_address, m.receive_own_postings, m.receive_list_copy,
	m.bounce_score, m.last_bounce_received, m.last_warning_sent, m.total_warnings_sent,
	COALESCE(a.email, pa.email, ''),
	m.created_at, m.updated_at`

const memberJoins = `FROM memberships m
	LEFT JOIN addresses a ON a.id = m.address_id
	LEFT JOIN users u ON u.id = m.user_id
	LEFT JOIN addresses pa ON pa.id = u.preferred_address_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row rowScanner) (*domain.Membership, error) {
	m := &domain.Membership{}
	var action sql.NullString
	var mode, status, lang sql.NullString
	var ack, hide, own, copyList sql.NullBool
	err := row.Scan(
		&m.ID, &m.ListID, &m.Role, &m.AddressID, &m.UserID, &action,
		&mode, &status, &lang, &ack, &hide, &own, &copyList,
		&m.BounceScore, &m.LastBounceReceived, &m.LastWarningSent, &m.TotalWarningsSent,
		&m.Email, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ModerationAction = domain.ModerationAction(action.String)
	if mode.Valid {
		v := domain.DeliveryMode(mode.String)
		m.Preferences.DeliveryMode = &v
	}
	if status.Valid {
		v := domain.DeliveryStatus(status.String)
		m.Preferences.DeliveryStatus = &v
	}
	if lang.Valid {
		v := lang.String
		m.Preferences.PreferredLanguage = &v
	}
	if ack.Valid {
		v := ack.Bool
		m.Preferences.AcknowledgePosts = &v
	}
	if hide.Valid {
		v := hide.Bool
		m.Preferences.HideAddress = &v
	}
	if own.Valid {
		v := own.Bool
		m.Preferences.ReceiveOwnPostings = &v
	}
	if copyList.Valid {
		v := copyList.Bool
		m.Preferences.ReceiveListCopy = &v
	}
	return m, nil
}

func prefString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func prefBool(p *bool) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// Create inserts a membership. The (list, subscriber, role) uniqueness
// invariant is enforced by the database; a collision returns ErrDuplicate.
func (s *Store) Create(ctx context.Context, m *domain.Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.LastWarningSent.IsZero() {
		m.LastWarningSent = EpochMin
	}
	if m.ModerationAction == "" {
		m.ModerationAction = domain.DefaultModerationAction(m.Role)
	}

	var mode, status interface{}
	if m.Preferences.DeliveryMode != nil {
		mode = string(*m.Preferences.DeliveryMode)
	}
	if m.Preferences.DeliveryStatus != nil {
		status = string(*m.Preferences.DeliveryStatus)
	}
	var action interface{}
	if m.ModerationAction != "" {
		action = string(m.ModerationAction)
	}

	query := `INSERT INTO memberships (id, list_id, role, address_id, user_id, moderation_action,
		delivery_mode, delivery_status, preferred_language, acknowledge_posts, hide_address,
		receive_own_postings, receive_list_copy, bounce_score, last_bounce_received,
		last_warning_sent, total_warnings_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := s.db.ExecContext(ctx, query, m.ID, m.ListID, m.Role, m.AddressID, m.UserID, action,
		mode, status, prefString(m.Preferences.PreferredLanguage),
		prefBool(m.Preferences.AcknowledgePosts), prefBool(m.Preferences.HideAddress),
		prefBool(m.Preferences.ReceiveOwnPostings), prefBool(m.Preferences.ReceiveListCopy),
		m.BounceScore, m.LastBounceReceived, m.LastWarningSent, m.TotalWarningsSent,
		m.CreatedAt, m.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves one membership with its resolved email.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` `+memberJoins+` WHERE m.id = $1`, id)
	return scanMembership(row)
}

// GetMember retrieves the member-role membership for (list, email), resolving
// user-subscriptions through the preferred address.
func (s *Store) GetMember(ctx context.Context, listID, email string) (*domain.Membership, error) {
	return s.Get(ctx, listID, email, domain.RoleMember)
}

// Get retrieves the membership for (list, email, role).
func (s *Store) Get(ctx context.Context, listID, email string, role domain.Role) (*domain.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` `+memberJoins+`
		 WHERE m.list_id = $1 AND m.role = $2 AND lower(COALESCE(a.email, pa.email)) = $3`,
		listID, role, domain.FoldEmail(email))
	return scanMembership(row)
}

// FindFilter narrows FindMembers. Zero values mean "any".
type FindFilter struct {
	ListID string
	Email  string
	Role   domain.Role
}

// FindMembers returns memberships matching the filter, ordered by list then
// address for stable pagination upstream.
func (s *Store) FindMembers(ctx context.Context, f FindFilter) ([]*domain.Membership, error) {
	query := `SELECT ` + memberColumns + ` ` + memberJoins + ` WHERE 1=1`
	var args []interface{}
	n := 1
	if f.ListID != "" {
		query += fmt.Sprintf(" AND m.list_id = $%d", n)
		args = append(args, f.ListID)
		n++
	}
	if f.Email != "" {
		query += fmt.Sprintf(" AND lower(COALESCE(a.email, pa.email)) = $%d", n)
		args = append(args, domain.FoldEmail(f.Email))
		n++
	}
	if f.Role != "" {
		query += fmt.Sprintf(" AND m.role = $%d", n)
		args = append(args, f.Role)
		n++
	}
	query += " ORDER BY m.list_id, lower(COALESCE(a.email, pa.email))"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Delete removes a membership.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateAddress repoints an address-subscribed membership at a new address.
// Ownership and verification preconditions are checked by the workflow
// engine before this runs.
func (s *Store) UpdateAddress(ctx context.Context, id, newAddressID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET address_id = $1, updated_at = NOW()
		 WHERE id = $2 AND address_id IS NOT NULL`, newAddressID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetBounceInfo updates the decaying score and the last-bounce timestamp in
// one statement.
func (s *Store) SetBounceInfo(ctx context.Context, id uuid.UUID, score int, lastBounce time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET bounce_score = $1, last_bounce_received = $2, updated_at = NOW()
		 WHERE id = $3`, score, lastBounce, id)
	return err
}

// TouchLastBounce records a same-day bounce without changing the score.
func (s *Store) TouchLastBounce(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET last_bounce_received = $1, updated_at = NOW() WHERE id = $2`, at, id)
	return err
}

// DisableDelivery flips the membership to by_bounces and resets the warning
// cadence so the escalation pass starts from zero.
func (s *Store) DisableDelivery(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET delivery_status = $1, total_warnings_sent = 0,
		 last_warning_sent = $2, updated_at = NOW() WHERE id = $3`,
		domain.DeliveryByBounces, EpochMin, id)
	return err
}

// ResetBounceScore zeroes the score, used after a probe goes out.
func (s *Store) ResetBounceScore(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET bounce_score = 0, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// RecordWarning stamps one warning sent at the given instant.
func (s *Store) RecordWarning(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET total_warnings_sent = total_warnings_sent + 1,
		 last_warning_sent = $1, updated_at = NOW() WHERE id = $2`, at, id)
	return err
}

// DisabledMemberships returns every membership whose delivery is off by
// bounces on a list that processes bounces. The warning-interval arithmetic
// is deliberately left to the caller: all by_bounces rows are candidates,
// not only those already past their next-warning time.
func (s *Store) DisabledMemberships(ctx context.Context) ([]*domain.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` `+memberJoins+`
		 JOIN lists l ON l.list_id = m.list_id
		 WHERE m.delivery_status = $1 AND l.process_bounces
		 ORDER BY m.list_id, m.id`, domain.DeliveryByBounces)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// EnsureNonmember registers an address as a nonmember of the list if no
// membership in any role exists yet, returning the (possibly pre-existing)
// membership. Used by the bounce processor when a bounce arrives for an
// address known to the list only as a poster.
func (s *Store) EnsureNonmember(ctx context.Context, listID string, addressID uuid.UUID, email string) (*domain.Membership, error) {
	for _, role := range []domain.Role{domain.RoleMember, domain.RoleNonmember} {
		m, err := s.Get(ctx, listID, email, role)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}

	m := &domain.Membership{
		ListID:    listID,
		Role:      domain.RoleNonmember,
		AddressID: &addressID,
		Email:     email,
	}
	if err := s.Create(ctx, m); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return s.Get(ctx, listID, email, domain.RoleNonmember)
		}
		return nil, err
	}
	return m, nil
}
