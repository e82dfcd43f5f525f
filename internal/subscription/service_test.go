package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/events"
)

func newTestService(f *fakeRepos, d *fakeDispatcher) (*Service, *events.Bus) {
	bus := events.NewBus()
	svc := NewService(fakeTx{f}, d, bus, Lifetimes{})
	svc.SetClock(func() time.Time { return f.now })
	return svc, bus
}

func TestRegisterOpenListVerifiedAddress(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()
	verifiedAddress(f, "anne@example.org")

	svc, bus := newTestService(f, d)
	var got []events.Event
	bus.Subscribe(func(e events.Event) { got = append(got, e) })

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: "test.example.com",
		Email:  "anne@example.org",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Member)
	assert.Empty(t, res.Token)
	assert.Equal(t, domain.OwnerNoOne, res.TokenOwner)
	assert.Equal(t, domain.RoleMember, res.Member.Role)
	assert.Equal(t, "anne@example.org", res.Member.Email)

	assert.True(t, d.sent("welcome:anne@example.org"))
	require.Len(t, got, 1)
	sub, ok := got[0].(events.SubscriptionEvent)
	require.True(t, ok)
	assert.Equal(t, "test.example.com", sub.ListID)
	assert.Equal(t, "anne@example.org", sub.Email)
}

func TestRegisterUnverifiedAddressSuspendsThenConfirms(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: "test.example.com",
		Email:  "bart@example.org",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Member)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, domain.OwnerSubscriber, res.TokenOwner)
	assert.True(t, d.sent("confirm:bart@example.org"))

	// Nothing on the roster while suspended.
	m, _ := f.Get(context.Background(), "test.example.com", "bart@example.org", domain.RoleMember)
	assert.Nil(t, m)

	done, err := svc.ConfirmToken(context.Background(), res.Token)
	require.NoError(t, err)
	require.NotNil(t, done.Member)

	// The address ends up verified.
	addr, _ := f.GetAddress(context.Background(), "bart@example.org")
	require.NotNil(t, addr)
	assert.True(t, addr.Verified())

	// The token was single-use.
	_, err = svc.ConfirmToken(context.Background(), res.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRegisterConfirmPolicy(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	list := testList()
	list.SubscriptionPolicy = domain.PolicyConfirm
	f.lists[list.ListID] = list
	verifiedAddress(f, "cris@example.org")

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: list.ListID,
		Email:  "cris@example.org",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, domain.OwnerSubscriber, res.TokenOwner)

	done, err := svc.ConfirmToken(context.Background(), res.Token)
	require.NoError(t, err)
	require.NotNil(t, done.Member)
	assert.Equal(t, "cris@example.org", done.Member.Email)
}

func TestRegisterPreConfirmedSkipsConfirmation(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	list := testList()
	list.SubscriptionPolicy = domain.PolicyConfirm
	f.lists[list.ListID] = list
	verifiedAddress(f, "dana@example.org")

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID:       list.ListID,
		Email:        "dana@example.org",
		PreConfirmed: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Member)
	assert.False(t, d.sent("confirm:"))
}

func TestRegisterModeratePolicy(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	list := testList()
	list.SubscriptionPolicy = domain.PolicyModerate
	f.lists[list.ListID] = list
	verifiedAddress(f, "elle@example.org")

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: list.ListID,
		Email:  "elle@example.org",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, domain.OwnerModerator, res.TokenOwner)
	assert.True(t, d.sent("approval:elle@example.org"))

	done, err := svc.HandleModeratorAction(context.Background(), res.Token, ActionAccept, "")
	require.NoError(t, err)
	require.NotNil(t, done.Member)
}

func TestRegisterConfirmThenModerate(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	list := testList()
	list.SubscriptionPolicy = domain.PolicyConfirmThenModerate
	f.lists[list.ListID] = list
	verifiedAddress(f, "fred@example.org")

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: list.ListID,
		Email:  "fred@example.org",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OwnerSubscriber, res.TokenOwner)

	held, err := svc.ConfirmToken(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Nil(t, held.Member)
	assert.Equal(t, domain.OwnerModerator, held.TokenOwner)

	done, err := svc.HandleModeratorAction(context.Background(), held.Token, ActionAccept, "")
	require.NoError(t, err)
	require.NotNil(t, done.Member)
}

func TestModeratorReject(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	list := testList()
	list.SubscriptionPolicy = domain.PolicyModerate
	f.lists[list.ListID] = list
	verifiedAddress(f, "gina@example.org")

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: list.ListID,
		Email:  "gina@example.org",
	})
	require.NoError(t, err)

	_, err = svc.HandleModeratorAction(context.Background(), res.Token, ActionReject, "not today")
	require.NoError(t, err)
	assert.True(t, d.sent("reject:gina@example.org:not today"))

	// The request is gone; the address never joined.
	m, _ := f.Get(context.Background(), list.ListID, "gina@example.org", domain.RoleMember)
	assert.Nil(t, m)
	_, err = svc.ConfirmToken(context.Background(), res.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestModeratorDiscardAndDefer(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	list := testList()
	list.SubscriptionPolicy = domain.PolicyModerate
	f.lists[list.ListID] = list
	verifiedAddress(f, "hans@example.org")

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: list.ListID,
		Email:  "hans@example.org",
	})
	require.NoError(t, err)

	// Defer leaves the request held.
	deferred, err := svc.HandleModeratorAction(context.Background(), res.Token, ActionDefer, "")
	require.NoError(t, err)
	assert.Equal(t, res.Token, deferred.Token)

	// Hold does the same; the token stays actionable.
	held, err := svc.HandleModeratorAction(context.Background(), res.Token, ActionHold, "")
	require.NoError(t, err)
	assert.Equal(t, res.Token, held.Token)
	assert.Equal(t, domain.OwnerModerator, held.TokenOwner)

	// Discard drops it silently.
	_, err = svc.HandleModeratorAction(context.Background(), res.Token, ActionDiscard, "")
	require.NoError(t, err)
	assert.False(t, d.sent("reject:"))
	_, err = svc.ConfirmToken(context.Background(), res.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRegisterInvitation(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID:     "test.example.com",
		Email:      "iris@example.org",
		Invitation: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.True(t, d.sent("invite:iris@example.org"))

	done, err := svc.ConfirmToken(context.Background(), res.Token)
	require.NoError(t, err)
	require.NotNil(t, done.Member)
	assert.Equal(t, "iris@example.org", done.Member.Email)
}

func TestRegisterGateErrors(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	list := testList()
	f.lists[list.ListID] = list
	verifiedAddress(f, "kate@example.org")

	svc, _ := newTestService(f, d)
	ctx := context.Background()

	_, err := svc.Register(ctx, SubscribeRequest{ListID: "nope.example.com", Email: "kate@example.org"})
	assert.ErrorIs(t, err, ErrNoSuchList)

	_, err = svc.Register(ctx, SubscribeRequest{ListID: list.ListID, Email: "not-an-address"})
	assert.ErrorIs(t, err, ErrInvalidEmailAddress)

	// The list's own addresses are off limits.
	_, err = svc.Register(ctx, SubscribeRequest{ListID: list.ListID, Email: "test-request@example.com"})
	assert.ErrorIs(t, err, ErrInvalidEmailAddress)

	f.bans = append(f.bans, domain.Ban{Pattern: "spammer@example.org"})
	_, err = svc.Register(ctx, SubscribeRequest{ListID: list.ListID, Email: "spammer@example.org"})
	assert.ErrorIs(t, err, ErrMembershipBanned)

	f.bans = append(f.bans, domain.Ban{Pattern: `^.*@blocked\.example\.com$`})
	_, err = svc.Register(ctx, SubscribeRequest{ListID: list.ListID, Email: "anyone@blocked.example.com"})
	assert.ErrorIs(t, err, ErrMembershipBanned)

	// Already a member.
	_, err = svc.Register(ctx, SubscribeRequest{ListID: list.ListID, Email: "kate@example.org"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, SubscribeRequest{ListID: list.ListID, Email: "kate@example.org"})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	// A live pending request blocks a second one.
	_, err = svc.Register(ctx, SubscribeRequest{ListID: list.ListID, Email: "later@example.org"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, SubscribeRequest{ListID: list.ListID, Email: "later@example.org"})
	assert.ErrorIs(t, err, ErrSubscriptionPending)
}

func TestRegisterUserSubscriber(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()

	addr := verifiedAddress(f, "lars@example.org")
	user := &domain.User{ID: uuid.New(), PreferredAddressID: &addr.ID}
	f.users[user.ID] = user
	addr.UserID = &user.ID

	svc, _ := newTestService(f, d)

	res, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: "test.example.com",
		UserID: &user.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Member)
	assert.Equal(t, &user.ID, res.Member.UserID)
	assert.Nil(t, res.Member.AddressID)
	assert.Equal(t, "lars@example.org", res.Member.Email)
}

func TestRegisterUserWithoutPreferredAddress(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()

	user := &domain.User{ID: uuid.New()}
	f.users[user.ID] = user

	svc, _ := newTestService(f, d)

	_, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: "test.example.com",
		UserID: &user.ID,
	})
	assert.ErrorIs(t, err, ErrMissingPreferredAddress)
}

func TestUnregisterOpenPolicy(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()
	verifiedAddress(f, "mona@example.org")

	svc, bus := newTestService(f, d)
	var got []events.Event
	bus.Subscribe(func(e events.Event) { got = append(got, e) })

	_, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: "test.example.com", Email: "mona@example.org",
	})
	require.NoError(t, err)

	res, err := svc.Unregister(context.Background(), "test.example.com", "mona@example.org", false, false)
	require.NoError(t, err)
	assert.Empty(t, res.Token)
	assert.True(t, d.sent("goodbye:mona@example.org"))

	m, _ := f.Get(context.Background(), "test.example.com", "mona@example.org", domain.RoleMember)
	assert.Nil(t, m)

	var sawUnsub bool
	for _, e := range got {
		if _, ok := e.(events.UnsubscriptionEvent); ok {
			sawUnsub = true
		}
	}
	assert.True(t, sawUnsub)
}

func TestUnregisterConfirmPolicy(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	list := testList()
	list.UnsubscriptionPolicy = domain.PolicyConfirm
	f.lists[list.ListID] = list
	verifiedAddress(f, "nick@example.org")

	svc, _ := newTestService(f, d)

	_, err := svc.Register(context.Background(), SubscribeRequest{
		ListID: list.ListID, Email: "nick@example.org",
	})
	require.NoError(t, err)

	res, err := svc.Unregister(context.Background(), list.ListID, "nick@example.org", false, false)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.True(t, d.sent("unsub-confirm:nick@example.org"))

	// Still a member while the request is pending.
	m, _ := f.Get(context.Background(), list.ListID, "nick@example.org", domain.RoleMember)
	require.NotNil(t, m)

	done, err := svc.ConfirmToken(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Nil(t, done.Member)
	m, _ = f.Get(context.Background(), list.ListID, "nick@example.org", domain.RoleMember)
	assert.Nil(t, m)
}

func TestUnregisterNotAMember(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()

	svc, _ := newTestService(f, d)

	_, err := svc.Unregister(context.Background(), "test.example.com", "ghost@example.org", false, false)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestChangeAddress(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()
	verifiedAddress(f, "old@example.org")

	svc, _ := newTestService(f, d)
	ctx := context.Background()

	res, err := svc.Register(ctx, SubscribeRequest{ListID: "test.example.com", Email: "old@example.org"})
	require.NoError(t, err)
	memberID := res.Member.ID

	// Unverified target is refused.
	f.CreateAddress(ctx, "new@example.org", "")
	err = svc.ChangeAddress(ctx, memberID, "new@example.org")
	assert.ErrorIs(t, err, ErrUnverifiedAddress)

	verifiedAddress(f, "new@example.org")
	require.NoError(t, svc.ChangeAddress(ctx, memberID, "new@example.org"))
	m, _ := f.GetByID(ctx, memberID)
	assert.Equal(t, "new@example.org", m.Email)
}

func TestChangeAddressOwnershipMismatch(t *testing.T) {
	f := newFakeRepos()
	d := &fakeDispatcher{}
	f.lists["test.example.com"] = testList()

	oldAddr := verifiedAddress(f, "pia@example.org")
	owner := &domain.User{ID: uuid.New(), PreferredAddressID: &oldAddr.ID}
	f.users[owner.ID] = owner
	oldAddr.UserID = &owner.ID

	otherAddr := verifiedAddress(f, "other@example.org")
	stranger := &domain.User{ID: uuid.New(), PreferredAddressID: &otherAddr.ID}
	f.users[stranger.ID] = stranger
	otherAddr.UserID = &stranger.ID

	svc, _ := newTestService(f, d)
	ctx := context.Background()

	res, err := svc.Register(ctx, SubscribeRequest{ListID: "test.example.com", Email: "pia@example.org"})
	require.NoError(t, err)

	err = svc.ChangeAddress(ctx, res.Member.ID, "other@example.org")
	assert.ErrorIs(t, err, ErrAddressOwnershipMismatch)
}
