package bounce

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/listkeeper/internal/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store persists bounce events. Events are append-only; the processor only
// ever flips the processed flag.
type Store struct {
	db DBTX
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a view of the store bound to tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// Record inserts one bounce event, filling in the id, received time, and
// context when the caller left them zero.
func (s *Store) Record(ctx context.Context, ev *domain.BounceEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	if ev.Context == "" {
		ev.Context = domain.ContextNormal
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bounce_events (id, list_id, email, received_at, message_id, context, processed)
		VALUES ($1, $2, $3, $4, $5, $6, false)`,
		ev.ID, ev.ListID, ev.Email, ev.ReceivedAt, ev.MessageID, ev.Context)
	if err != nil {
		return fmt.Errorf("failed to record bounce event: %w", err)
	}
	return nil
}

// MarkProcessed flips the processed flag. Marking an already-processed event
// is a no-op.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bounce_events SET processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark bounce event processed: %w", err)
	}
	return nil
}

// Get retrieves one event by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.BounceEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, list_id, email, received_at, message_id, context, processed
		FROM bounce_events WHERE id = $1`, id)
	ev := &domain.BounceEvent{}
	err := row.Scan(&ev.ID, &ev.ListID, &ev.Email, &ev.ReceivedAt, &ev.MessageID, &ev.Context, &ev.Processed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bounce event: %w", err)
	}
	return ev, nil
}

// Unprocessed returns up to limit events still awaiting the processor, oldest
// first.
func (s *Store) Unprocessed(ctx context.Context, limit int) ([]*domain.BounceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, list_id, email, received_at, message_id, context, processed
		FROM bounce_events WHERE NOT processed
		ORDER BY received_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed bounce events: %w", err)
	}
	defer rows.Close()

	var out []*domain.BounceEvent
	for rows.Next() {
		ev := &domain.BounceEvent{}
		if err := rows.Scan(&ev.ID, &ev.ListID, &ev.Email, &ev.ReceivedAt, &ev.MessageID, &ev.Context, &ev.Processed); err != nil {
			return nil, fmt.Errorf("failed to scan bounce event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
