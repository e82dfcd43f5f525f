// Package pending implements the tokenised store of suspended workflows.
//
// A pending action is the persisted continuation of a subscription,
// unsubscription, invitation, or probe: the workflow engine suspends by
// writing one and resumes when its token comes back. Tokens are
// cryptographically random, URL-safe, and single-use on expunge. Expiry
// silently voids a token; expired rows are purged lazily on access and by a
// periodic sweep.
package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/listkeeper/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides database operations for pending actions.
type Store struct {
	db  DBTX
	now func() time.Time
}

// NewStore creates a new pending actions store.
func NewStore(db DBTX) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx returns a view of the store bound to the given transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx, now: s.now}
}

// SetClock overrides the time source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Add persists a new pending action and returns its token.
func (s *Store) Add(ctx context.Context, kind domain.PendKind, listID *string, payload domain.PendPayload, owner domain.TokenOwner, lifetime time.Duration) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pended (token, kind, list_id, payload, token_owner, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token, kind, listID, data, owner, now, now.Add(lifetime))
	if err != nil {
		return "", err
	}
	return token, nil
}

// Confirm resolves a token to its pending action. A missing or expired token
// returns nil. With expunge, the row is deleted in the same call, making the
// token single-use; without, the row survives for inspection.
func (s *Store) Confirm(ctx context.Context, token string, expunge bool) (*domain.PendingAction, error) {
	p, err := s.get(ctx, token)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Expired(s.now()) {
		// Lazy purge: expired behaves as absent.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM pended WHERE token = $1`, token)
		return nil, nil
	}
	if expunge {
		res, err := s.db.ExecContext(ctx, `DELETE FROM pended WHERE token = $1`, token)
		if err != nil {
			return nil, err
		}
		// A concurrent confirm got here first; the token was already used.
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, nil
		}
	}
	return p, nil
}

// Discard drops a pending action without resuming its workflow.
func (s *Store) Discard(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pended WHERE token = $1`, token)
	return err
}

func (s *Store) get(ctx context.Context, token string) (*domain.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, kind, list_id, payload, token_owner, created_at, expires_at
		 FROM pended WHERE token = $1`, token)
	return scanPended(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPended(row rowScanner) (*domain.PendingAction, error) {
	p := &domain.PendingAction{}
	var data []byte
	err := row.Scan(&p.Token, &p.Kind, &p.ListID, &data, &p.TokenOwner, &p.CreatedAt, &p.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &p.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for %s: %w", p.Token, err)
	}
	return p, nil
}

// FindFilter narrows Find and Count. Zero values mean "any".
type FindFilter struct {
	ListID string
	Kind   domain.PendKind
	Owner  domain.TokenOwner
}

// Find returns live (unexpired) pending actions matching the filter.
func (s *Store) Find(ctx context.Context, f FindFilter) ([]*domain.PendingAction, error) {
	query := `SELECT token, kind, list_id, payload, token_owner, created_at, expires_at
		FROM pended WHERE expires_at > $1`
	args := []interface{}{s.now()}
	n := 2
	if f.ListID != "" {
		query += fmt.Sprintf(" AND list_id = $%d", n)
		args = append(args, f.ListID)
		n++
	}
	if f.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", n)
		args = append(args, f.Kind)
		n++
	}
	if f.Owner != "" {
		query += fmt.Sprintf(" AND token_owner = $%d", n)
		args = append(args, f.Owner)
		n++
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PendingAction
	for rows.Next() {
		p, err := scanPended(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of live pending actions matching the filter.
func (s *Store) Count(ctx context.Context, f FindFilter) (int, error) {
	found, err := s.Find(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(found), nil
}

// FindSubscription returns the token of a live pending subscription for
// (list, email), or "" if none exists. The workflow engine uses this to
// refuse duplicate subscription attempts.
func (s *Store) FindSubscription(ctx context.Context, listID, email string) (string, error) {
	found, err := s.Find(ctx, FindFilter{ListID: listID, Kind: domain.PendSubscription})
	if err != nil {
		return "", err
	}
	folded := domain.FoldEmail(email)
	for _, p := range found {
		if domain.FoldEmail(p.Payload.Email) == folded {
			return p.Token, nil
		}
	}
	// Invitations count: a pending invite for the same address also blocks.
	found, err = s.Find(ctx, FindFilter{ListID: listID, Kind: domain.PendInvitation})
	if err != nil {
		return "", err
	}
	for _, p := range found {
		if domain.FoldEmail(p.Payload.Email) == folded {
			return p.Token, nil
		}
	}
	return "", nil
}

// Sweep deletes every expired row, returning how many were purged. The
// bounce runner calls this once per tick.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pended WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
