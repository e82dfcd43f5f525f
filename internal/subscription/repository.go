package subscription

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/identity"
	"github.com/ignite/listkeeper/internal/listregistry"
	"github.com/ignite/listkeeper/internal/pending"
	"github.com/ignite/listkeeper/internal/roster"
)

// IdentityRepo is the slice of the identity store the workflow needs.
type IdentityRepo interface {
	GetAddress(ctx context.Context, email string) (*domain.Address, error)
	GetAddressByID(ctx context.Context, id uuid.UUID) (*domain.Address, error)
	CreateAddress(ctx context.Context, email, displayName string) (*domain.Address, error)
	VerifyAddress(ctx context.Context, id uuid.UUID) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	PreferredAddress(ctx context.Context, userID uuid.UUID) (*domain.Address, error)
	IsBanned(ctx context.Context, listID, email string) (bool, error)
}

// ListRepo resolves lists by canonical id.
type ListRepo interface {
	GetByListID(ctx context.Context, listID string) (*domain.List, error)
}

// RosterRepo is the slice of the membership store the workflow mutates.
type RosterRepo interface {
	Get(ctx context.Context, listID, email string, role domain.Role) (*domain.Membership, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	Create(ctx context.Context, m *domain.Membership) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateAddress(ctx context.Context, id, newAddressID uuid.UUID) error
}

// PendingRepo is the slice of the pending-action store the workflow uses to
// suspend and resume.
type PendingRepo interface {
	Add(ctx context.Context, kind domain.PendKind, listID *string, payload domain.PendPayload, owner domain.TokenOwner, lifetime time.Duration) (string, error)
	Confirm(ctx context.Context, token string, expunge bool) (*domain.PendingAction, error)
	Discard(ctx context.Context, token string) error
	FindSubscription(ctx context.Context, listID, email string) (string, error)
}

// Repos bundles the per-transaction view of every store the workflow touches.
type Repos struct {
	Identity IdentityRepo
	Lists    ListRepo
	Roster   RosterRepo
	Pending  PendingRepo
}

// TxRunner executes fn against a Repos view bound to a single database
// transaction. fn returning an error rolls the whole transaction back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Repos) error) error
}

// SQLTxRunner is the production TxRunner over *sql.DB.
type SQLTxRunner struct {
	db       *sql.DB
	identity *identity.Store
	lists    *listregistry.Store
	roster   *roster.Store
	pending  *pending.Store
}

// NewSQLTxRunner builds a TxRunner that binds the given stores to each
// transaction.
func NewSQLTxRunner(db *sql.DB, ids *identity.Store, lists *listregistry.Store, ros *roster.Store, pend *pending.Store) *SQLTxRunner {
	return &SQLTxRunner{db: db, identity: ids, lists: lists, roster: ros, pending: pend}
}

// InTx implements TxRunner.
func (r *SQLTxRunner) InTx(ctx context.Context, fn func(Repos) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	repos := Repos{
		Identity: r.identity.WithTx(tx),
		Lists:    r.lists.WithTx(tx),
		Roster:   r.roster.WithTx(tx),
		Pending:  r.pending.WithTx(tx),
	}
	if err := fn(repos); err != nil {
		return err
	}
	return tx.Commit()
}
