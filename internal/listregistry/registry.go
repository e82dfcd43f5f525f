// Package listregistry resolves mailing lists by canonical list-id or by
// posting address and exposes the per-list policy knobs the lifecycle core
// reads. The core never writes lists; administration lives elsewhere.
package listregistry

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/listkeeper/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides read access to the mailing list table.
type Store struct {
	db DBTX
}

// NewStore creates a new list registry.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a view of the store bound to the given transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

const listColumns = `list_id, display_name, mail_host, posting_address, request_address,
	bounces_address, owner_address, alias_domains, subscription_policy, unsubscription_policy,
	default_member_action, default_nonmember_action, process_bounces, bounce_score_threshold,
	bounce_info_stale_after_secs, bounce_you_are_disabled_warnings,
	bounce_you_are_disabled_warnings_interval_secs, bounce_notify_owner_on_disable,
	bounce_notify_owner_on_removal, forward_unrecognized_bounces_to, send_welcome_message,
	send_goodbye_message, admin_notify_mchanges, preferred_language, member_roster_visibility,
	created_at`

func scanList(row *sql.Row) (*domain.List, error) {
	l := &domain.List{}
	var staleSecs, intervalSecs int64
	var defaultMember, defaultNonmember sql.NullString
	err := row.Scan(
		&l.ListID, &l.DisplayName, &l.MailHost, &l.PostingAddress, &l.RequestAddress,
		&l.BouncesAddress, &l.OwnerAddress, pq.Array(&l.AliasDomains),
		&l.SubscriptionPolicy, &l.UnsubscriptionPolicy,
		&defaultMember, &defaultNonmember, &l.ProcessBounces, &l.BounceScoreThreshold,
		&staleSecs, &l.BounceYouAreDisabledWarnings, &intervalSecs,
		&l.BounceNotifyOwnerOnDisable, &l.BounceNotifyOwnerOnRemoval,
		&l.ForwardUnrecognizedBouncesTo, &l.SendWelcomeMessage, &l.SendGoodbyeMessage,
		&l.AdminNotifyMchanges, &l.PreferredLanguage, &l.MemberRosterVisibility, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.DefaultMemberAction = domain.ModerationAction(defaultMember.String)
	l.DefaultNonmemberAction = domain.ModerationAction(defaultNonmember.String)
	l.BounceInfoStaleAfter = time.Duration(staleSecs) * time.Second
	l.BounceYouAreDisabledWarningsInterval = time.Duration(intervalSecs) * time.Second
	return l, nil
}

// GetByListID looks a list up by its canonical dotted id.
func (s *Store) GetByListID(ctx context.Context, listID string) (*domain.List, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listColumns+` FROM lists WHERE list_id = $1`, strings.ToLower(listID))
	return scanList(row)
}

// GetByPostingAddress looks a list up by its posting address. Alias domains
// are honoured: "test@alias.example.org" finds the list whose localpart is
// "test" and whose alias_domains contains "alias.example.org".
func (s *Store) GetByPostingAddress(ctx context.Context, addr string) (*domain.List, error) {
	folded := domain.FoldEmail(addr)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listColumns+` FROM lists WHERE lower(posting_address) = $1`, folded)
	l, err := scanList(row)
	if err != nil || l != nil {
		return l, err
	}

	at := strings.Index(folded, "@")
	if at <= 0 {
		return nil, nil
	}
	local, dom := folded[:at], folded[at+1:]
	row = s.db.QueryRowContext(ctx,
		`SELECT `+listColumns+` FROM lists
		 WHERE split_part(lower(posting_address), '@', 1) = $1 AND $2 = ANY(alias_domains)`,
		local, dom)
	return scanList(row)
}

// All returns every list, ordered by list-id. The bounce escalation pass
// iterates this to resolve policy knobs per membership.
func (s *Store) All(ctx context.Context) ([]*domain.List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT list_id FROM lists ORDER BY list_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lists := make([]*domain.List, 0, len(ids))
	for _, id := range ids {
		l, err := s.GetByListID(ctx, id)
		if err != nil {
			return nil, err
		}
		if l != nil {
			lists = append(lists, l)
		}
	}
	return lists, nil
}
