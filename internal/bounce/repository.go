package bounce

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

// IdentityRepo resolves the subscribing address for nonmember
// auto-registration.
type IdentityRepo interface {
	GetAddress(ctx context.Context, email string) (*domain.Address, error)
	CreateAddress(ctx context.Context, email, displayName string) (*domain.Address, error)
}

// RosterRepo is the slice of the membership store the processor mutates.
type RosterRepo interface {
	GetMember(ctx context.Context, listID, email string) (*domain.Membership, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Membership, error)
	SetBounceInfo(ctx context.Context, id uuid.UUID, score int, lastBounce time.Time) error
	TouchLastBounce(ctx context.Context, id uuid.UUID, at time.Time) error
	DisableDelivery(ctx context.Context, id uuid.UUID) error
	ResetBounceScore(ctx context.Context, id uuid.UUID) error
	RecordWarning(ctx context.Context, id uuid.UUID, at time.Time) error
	DisabledMemberships(ctx context.Context) ([]*domain.Membership, error)
	Delete(ctx context.Context, id uuid.UUID) error
	EnsureNonmember(ctx context.Context, listID string, addressID uuid.UUID, email string) (*domain.Membership, error)
}

// ListRepo resolves list policy for scoring and escalation.
type ListRepo interface {
	GetByListID(ctx context.Context, listID string) (*domain.List, error)
}

// PendingRepo issues probe tokens and sweeps expired pendings.
type PendingRepo interface {
	Add(ctx context.Context, kind domain.PendKind, listID *string, payload domain.PendPayload, owner domain.TokenOwner, lifetime time.Duration) (string, error)
	Confirm(ctx context.Context, token string, expunge bool) (*domain.PendingAction, error)
	Sweep(ctx context.Context) (int64, error)
}

// EventRepo is the slice of the bounce-event store the processor needs.
type EventRepo interface {
	Record(ctx context.Context, ev *domain.BounceEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Repos bundles the per-transaction view of the stores the processor touches.
type Repos struct {
	Identity IdentityRepo
	Roster   RosterRepo
	Lists    ListRepo
	Pending  PendingRepo
	Events   EventRepo
}

// TxRunner executes fn against a Repos view bound to a single database
// transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Repos) error) error
}

// SQLTxRunner is the production TxRunner over *sql.DB.
type SQLTxRunner struct {
	db       *sql.DB
	identity *identity.Store
	roster   *roster.Store
	lists    *listregistry.Store
	pending  *pending.Store
	events   *Store
}

func NewSQLTxRunner(db *sql.DB, ids *identity.Store, ros *roster.Store, lists *listregistry.Store, pend *pending.Store, events *Store) *SQLTxRunner {
	return &SQLTxRunner{db: db, identity: ids, roster: ros, lists: lists, pending: pend, events: events}
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
		Roster:   r.roster.WithTx(tx),
		Lists:    r.lists.WithTx(tx),
		Pending:  r.pending.WithTx(tx),
		Events:   r.events.WithTx(tx),
	}
	if err := fn(repos); err != nil {
		return err
	}
	return tx.Commit()
}
