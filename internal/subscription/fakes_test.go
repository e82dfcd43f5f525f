package subscription

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pending"
)

// fakeRepos is an in-memory implementation of every workflow repository,
// shared by the service tests.
type fakeRepos struct {
	addresses map[string]*domain.Address // keyed by folded email
	users     map[uuid.UUID]*domain.User
	bans      []domain.Ban
	lists     map[string]*domain.List
	members   map[uuid.UUID]*domain.Membership
	pended    map[string]*domain.PendingAction

	now time.Time
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{
		addresses: map[string]*domain.Address{},
		users:     map[uuid.UUID]*domain.User{},
		lists:     map[string]*domain.List{},
		members:   map[uuid.UUID]*domain.Membership{},
		pended:    map[string]*domain.PendingAction{},
		now:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepos) repos() Repos {
	return Repos{Identity: f, Lists: f, Roster: f, Pending: f}
}

// fakeTx runs the callback directly against the shared fake state.
type fakeTx struct{ f *fakeRepos }

func (t fakeTx) InTx(ctx context.Context, fn func(Repos) error) error {
	return fn(t.f.repos())
}

// IdentityRepo

func (f *fakeRepos) GetAddress(ctx context.Context, email string) (*domain.Address, error) {
	return f.addresses[domain.FoldEmail(email)], nil
}

func (f *fakeRepos) GetAddressByID(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	for _, a := range f.addresses {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeRepos) CreateAddress(ctx context.Context, email, displayName string) (*domain.Address, error) {
	if a := f.addresses[domain.FoldEmail(email)]; a != nil {
		return a, nil
	}
	a := &domain.Address{ID: uuid.New(), Email: email, DisplayName: displayName, CreatedAt: f.now}
	f.addresses[domain.FoldEmail(email)] = a
	return a, nil
}

func (f *fakeRepos) VerifyAddress(ctx context.Context, id uuid.UUID) error {
	for _, a := range f.addresses {
		if a.ID == id && a.VerifiedAt == nil {
			at := f.now
			a.VerifiedAt = &at
		}
	}
	return nil
}

func (f *fakeRepos) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return f.users[id], nil
}

func (f *fakeRepos) PreferredAddress(ctx context.Context, userID uuid.UUID) (*domain.Address, error) {
	u := f.users[userID]
	if u == nil || u.PreferredAddressID == nil {
		return nil, nil
	}
	return f.GetAddressByID(ctx, *u.PreferredAddressID)
}

func (f *fakeRepos) IsBanned(ctx context.Context, listID, email string) (bool, error) {
	folded := domain.FoldEmail(email)
	for _, b := range f.bans {
		if b.ListID != nil && *b.ListID != listID {
			continue
		}
		if strings.HasPrefix(b.Pattern, "^") {
			if ok, _ := regexp.MatchString("(?i)"+b.Pattern, folded); ok {
				return true, nil
			}
			continue
		}
		if domain.FoldEmail(b.Pattern) == folded {
			return true, nil
		}
	}
	return false, nil
}

// ListRepo

func (f *fakeRepos) GetByListID(ctx context.Context, listID string) (*domain.List, error) {
	return f.lists[listID], nil
}

// RosterRepo

func (f *fakeRepos) Get(ctx context.Context, listID, email string, role domain.Role) (*domain.Membership, error) {
	folded := domain.FoldEmail(email)
	for _, m := range f.members {
		if m.ListID == listID && m.Role == role && domain.FoldEmail(m.Email) == folded {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeRepos) GetByID(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	return f.members[id], nil
}

func (f *fakeRepos) Create(ctx context.Context, m *domain.Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Email == "" && m.UserID != nil {
		if a, _ := f.PreferredAddress(ctx, *m.UserID); a != nil {
			m.Email = a.Email
		}
	}
	for _, other := range f.members {
		if other.ListID == m.ListID && other.Role == m.Role && domain.FoldEmail(other.Email) == domain.FoldEmail(m.Email) {
			return fmt.Errorf("duplicate membership")
		}
	}
	m.CreatedAt = f.now
	m.UpdatedAt = f.now
	f.members[m.ID] = m
	return nil
}

func (f *fakeRepos) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.members[id]; !ok {
		return fmt.Errorf("no such membership")
	}
	delete(f.members, id)
	return nil
}

func (f *fakeRepos) UpdateAddress(ctx context.Context, id, newAddressID uuid.UUID) error {
	m := f.members[id]
	if m == nil || m.AddressID == nil {
		return fmt.Errorf("no address membership")
	}
	m.AddressID = &newAddressID
	if a, _ := f.GetAddressByID(ctx, newAddressID); a != nil {
		m.Email = a.Email
	}
	return nil
}

// PendingRepo

func (f *fakeRepos) Add(ctx context.Context, kind domain.PendKind, listID *string, payload domain.PendPayload, owner domain.TokenOwner, lifetime time.Duration) (string, error) {
	token, err := pending.NewToken()
	if err != nil {
		return "", err
	}
	f.pended[token] = &domain.PendingAction{
		Token:      token,
		Kind:       kind,
		ListID:     listID,
		Payload:    payload,
		TokenOwner: owner,
		CreatedAt:  f.now,
		ExpiresAt:  f.now.Add(lifetime),
	}
	return token, nil
}

func (f *fakeRepos) Confirm(ctx context.Context, token string, expunge bool) (*domain.PendingAction, error) {
	act := f.pended[token]
	if act == nil || act.Expired(f.now) {
		return nil, nil
	}
	if expunge {
		delete(f.pended, token)
	}
	return act, nil
}

func (f *fakeRepos) Discard(ctx context.Context, token string) error {
	delete(f.pended, token)
	return nil
}

func (f *fakeRepos) FindSubscription(ctx context.Context, listID, email string) (string, error) {
	folded := domain.FoldEmail(email)
	for token, act := range f.pended {
		if act.Expired(f.now) {
			continue
		}
		if act.Kind != domain.PendSubscription && act.Kind != domain.PendInvitation {
			continue
		}
		if act.Payload.ListID == listID && domain.FoldEmail(act.Payload.Email) == folded {
			return token, nil
		}
	}
	return "", nil
}

// fakeDispatcher records every notification instead of sending it.
type fakeDispatcher struct {
	calls []string
}

func (d *fakeDispatcher) record(call string) { d.calls = append(d.calls, call) }

func (d *fakeDispatcher) sent(prefix string) bool {
	for _, c := range d.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (d *fakeDispatcher) SendWelcome(ctx context.Context, list *domain.List, email, language string) error {
	d.record("welcome:" + email)
	return nil
}

func (d *fakeDispatcher) SendGoodbye(ctx context.Context, list *domain.List, email, language string) error {
	d.record("goodbye:" + email)
	return nil
}

func (d *fakeDispatcher) SendSubscribeConfirmation(ctx context.Context, list *domain.List, email, token, language string) error {
	d.record("confirm:" + email)
	return nil
}

func (d *fakeDispatcher) SendUnsubscribeConfirmation(ctx context.Context, list *domain.List, email, token, language string) error {
	d.record("unsub-confirm:" + email)
	return nil
}

func (d *fakeDispatcher) SendInvitation(ctx context.Context, list *domain.List, email, token, language string) error {
	d.record("invite:" + email)
	return nil
}

func (d *fakeDispatcher) SendApprovalRequest(ctx context.Context, list *domain.List, email, token string) error {
	d.record("approval:" + email)
	return nil
}

func (d *fakeDispatcher) SendRejection(ctx context.Context, list *domain.List, email, description, reason string) error {
	d.record("reject:" + email + ":" + reason)
	return nil
}

func (d *fakeDispatcher) NotifyAdminSubscribe(ctx context.Context, list *domain.List, email string) error {
	d.record("admin-sub:" + email)
	return nil
}

func (d *fakeDispatcher) NotifyAdminUnsubscribe(ctx context.Context, list *domain.List, email string) error {
	d.record("admin-unsub:" + email)
	return nil
}

// testList returns a list with every gate open and all notices on.
func testList() *domain.List {
	return &domain.List{
		ListID:               "test.example.com",
		DisplayName:          "Test",
		MailHost:             "example.com",
		PostingAddress:       "test@example.com",
		RequestAddress:       "test-request@example.com",
		BouncesAddress:       "test-bounces@example.com",
		OwnerAddress:         "test-owner@example.com",
		SubscriptionPolicy:   domain.PolicyOpen,
		UnsubscriptionPolicy: domain.PolicyOpen,
		SendWelcomeMessage:   true,
		SendGoodbyeMessage:   true,
	}
}

func verifiedAddress(f *fakeRepos, email string) *domain.Address {
	a, _ := f.CreateAddress(context.Background(), email, "")
	at := f.now
	a.VerifiedAt = &at
	return a
}
