package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/events"
	"github.com/ignite/listkeeper/internal/identity"
	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// Dispatcher is the slice of the notification dispatcher the workflow uses.
type Dispatcher interface {
	SendWelcome(ctx context.Context, list *domain.List, email, language string) error
	SendGoodbye(ctx context.Context, list *domain.List, email, language string) error
	SendSubscribeConfirmation(ctx context.Context, list *domain.List, email, token, language string) error
	SendUnsubscribeConfirmation(ctx context.Context, list *domain.List, email, token, language string) error
	SendInvitation(ctx context.Context, list *domain.List, email, token, language string) error
	SendApprovalRequest(ctx context.Context, list *domain.List, email, token string) error
	SendRejection(ctx context.Context, list *domain.List, email, description, reason string) error
	NotifyAdminSubscribe(ctx context.Context, list *domain.List, email string) error
	NotifyAdminUnsubscribe(ctx context.Context, list *domain.List, email string) error
}

// Lifetimes carries the per-kind pending-action lifetimes.
type Lifetimes struct {
	Subscription time.Duration
	Invitation   time.Duration
}

// Service is the workflow engine. All public methods are blocking and run in
// exactly one database transaction.
type Service struct {
	tx        TxRunner
	dispatch  Dispatcher
	bus       *events.Bus
	lifetimes Lifetimes
	now       func() time.Time
}

// NewService creates a workflow engine.
func NewService(tx TxRunner, dispatch Dispatcher, bus *events.Bus, lifetimes Lifetimes) *Service {
	if lifetimes.Subscription == 0 {
		lifetimes.Subscription = 3 * 24 * time.Hour
	}
	if lifetimes.Invitation == 0 {
		lifetimes.Invitation = 7 * 24 * time.Hour
	}
	return &Service{
		tx:        tx,
		dispatch:  dispatch,
		bus:       bus,
		lifetimes: lifetimes,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SubscribeRequest describes one subscription attempt. Exactly one of Email
// and UserID identifies the subscriber.
type SubscribeRequest struct {
	ListID      string
	Email       string
	UserID      *uuid.UUID
	DisplayName string

	DeliveryMode domain.DeliveryMode
	Language     string

	PreVerified  bool
	PreConfirmed bool
	PreApproved  bool
	Invitation   bool

	// SendWelcome overrides the list's send_welcome_message knob when
	// non-nil.
	SendWelcome *bool
}

// Result is the outcome of any workflow call. Exactly one of Token (with
// TokenOwner other than no_one) and Member is set: a token means the
// workflow suspended, a member means it completed.
type Result struct {
	Token      string
	TokenOwner domain.TokenOwner
	Member     *domain.Membership
}

func suspended(token string, owner domain.TokenOwner) *Result {
	return &Result{Token: token, TokenOwner: owner}
}

func completed(m *domain.Membership) *Result {
	return &Result{TokenOwner: domain.OwnerNoOne, Member: m}
}

// Register starts (or short-circuits through) the subscription state machine
// for one candidate. It either completes with a new membership or suspends
// with a token for the subscriber or a moderator.
func (s *Service) Register(ctx context.Context, req SubscribeRequest) (*Result, error) {
	var result *Result
	err := s.tx.InTx(ctx, func(r Repos) error {
		list, err := r.Lists.GetByListID(ctx, req.ListID)
		if err != nil {
			return err
		}
		if list == nil {
			return fmt.Errorf("%w: %s", ErrNoSuchList, req.ListID)
		}

		payload, err := s.resolveSubscriber(ctx, r, list, req)
		if err != nil {
			return err
		}

		if err := s.checkAdmissible(ctx, r, list, payload.Email); err != nil {
			return err
		}

		result, err = s.step(ctx, r, list, *payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveSubscriber turns the request into a concrete payload, resolving a
// user subscriber to their preferred address.
func (s *Service) resolveSubscriber(ctx context.Context, r Repos, list *domain.List, req SubscribeRequest) (*domain.PendPayload, error) {
	p := &domain.PendPayload{
		ListID:       list.ListID,
		DisplayName:  req.DisplayName,
		DeliveryMode: req.DeliveryMode,
		Language:     req.Language,
		PreVerified:  req.PreVerified,
		PreConfirmed: req.PreConfirmed,
		PreApproved:  req.PreApproved,
		Invitation:   req.Invitation,
		SendWelcome:  req.SendWelcome,
	}

	if req.UserID != nil {
		user, err := r.Identity.GetUserByID(ctx, *req.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("%w: user %s", ErrMissingPreferredAddress, req.UserID)
		}
		addr, err := r.Identity.PreferredAddress(ctx, *req.UserID)
		if err != nil {
			return nil, err
		}
		if addr == nil {
			return nil, ErrMissingPreferredAddress
		}
		// Preferred addresses are verified by construction.
		p.Email = addr.Email
		p.UserID = req.UserID
		p.PreVerified = true
		return p, nil
	}

	if !identity.IsValidEmail(req.Email) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmailAddress, req.Email)
	}
	p.Email = req.Email
	return p, nil
}

// checkAdmissible enforces the START-state gates: bans, the list's own
// addresses, existing memberships, and duplicate pending requests.
func (s *Service) checkAdmissible(ctx context.Context, r Repos, list *domain.List, email string) error {
	banned, err := r.Identity.IsBanned(ctx, list.ListID, email)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("%w: %s on %s", ErrMembershipBanned, email, list.ListID)
	}

	if list.IsReservedAddress(email) {
		return fmt.Errorf("%w: %s is a list address", ErrInvalidEmailAddress, email)
	}

	existing, err := r.Roster.Get(ctx, list.ListID, email, domain.RoleMember)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s on %s", ErrAlreadySubscribed, email, list.ListID)
	}

	token, err := r.Pending.FindSubscription(ctx, list.ListID, email)
	if err != nil {
		return err
	}
	if token != "" {
		return fmt.Errorf("%w: %s on %s", ErrSubscriptionPending, email, list.ListID)
	}
	return nil
}

// step runs the state machine from wherever the payload's flags place it.
// It either suspends by persisting a pending action or completes by creating
// the membership.
func (s *Service) step(ctx context.Context, r Repos, list *domain.List, p domain.PendPayload) (*Result, error) {
	listID := list.ListID

	// INVITE suspends immediately; accepting the invitation is itself the
	// verification and confirmation.
	if p.Invitation {
		token, err := r.Pending.Add(ctx, domain.PendInvitation, &listID, p, domain.OwnerSubscriber, s.lifetimes.Invitation)
		if err != nil {
			return nil, err
		}
		if err := s.dispatch.SendInvitation(ctx, list, p.Email, token, p.Language); err != nil {
			return nil, err
		}
		s.publishConfirmationRequired(list, p.Email, token, domain.OwnerSubscriber)
		return suspended(token, domain.OwnerSubscriber), nil
	}

	// VERIFY
	if !p.PreVerified {
		addr, err := r.Identity.GetAddress(ctx, p.Email)
		if err != nil {
			return nil, err
		}
		if addr == nil || !addr.Verified() {
			p.Step = stepVerify
			token, err := r.Pending.Add(ctx, domain.PendSubscription, &listID, p, domain.OwnerSubscriber, s.lifetimes.Subscription)
			if err != nil {
				return nil, err
			}
			if err := s.dispatch.SendSubscribeConfirmation(ctx, list, p.Email, token, p.Language); err != nil {
				return nil, err
			}
			s.publishConfirmationRequired(list, p.Email, token, domain.OwnerSubscriber)
			return suspended(token, domain.OwnerSubscriber), nil
		}
	}

	// CONFIRM
	if list.SubscriptionPolicy.RequiresConfirmation() && !p.PreConfirmed {
		p.Step = stepConfirm
		token, err := r.Pending.Add(ctx, domain.PendSubscription, &listID, p, domain.OwnerSubscriber, s.lifetimes.Subscription)
		if err != nil {
			return nil, err
		}
		if err := s.dispatch.SendSubscribeConfirmation(ctx, list, p.Email, token, p.Language); err != nil {
			return nil, err
		}
		s.publishConfirmationRequired(list, p.Email, token, domain.OwnerSubscriber)
		return suspended(token, domain.OwnerSubscriber), nil
	}

	// APPROVE
	if list.SubscriptionPolicy.RequiresApproval() && !p.PreApproved {
		p.Step = stepApprove
		token, err := r.Pending.Add(ctx, domain.PendSubscription, &listID, p, domain.OwnerModerator, s.lifetimes.Subscription)
		if err != nil {
			return nil, err
		}
		if err := s.dispatch.SendApprovalRequest(ctx, list, p.Email, token); err != nil {
			return nil, err
		}
		s.publishConfirmationRequired(list, p.Email, token, domain.OwnerModerator)
		return suspended(token, domain.OwnerModerator), nil
	}

	return s.subscribe(ctx, r, list, p)
}

const (
	stepVerify  = "verify"
	stepConfirm = "confirm"
	stepApprove = "approve"
)

// subscribe is the terminal SUBSCRIBE state: create the membership, publish
// the event, and queue the user-visible artifacts.
func (s *Service) subscribe(ctx context.Context, r Repos, list *domain.List, p domain.PendPayload) (*Result, error) {
	m := &domain.Membership{
		ListID: list.ListID,
		Role:   domain.RoleMember,
		Email:  p.Email,
	}
	if p.UserID != nil {
		m.UserID = p.UserID
	} else {
		addr, err := r.Identity.CreateAddress(ctx, p.Email, p.DisplayName)
		if err != nil {
			return nil, err
		}
		if !addr.Verified() {
			// VERIFY was passed either by confirmation or pre_verified;
			// either way the address is trusted now.
			if err := r.Identity.VerifyAddress(ctx, addr.ID); err != nil {
				return nil, err
			}
		}
		m.AddressID = &addr.ID
	}

	if p.DeliveryMode != "" {
		mode := p.DeliveryMode
		m.Preferences.DeliveryMode = &mode
	}
	status := domain.DeliveryEnabled
	m.Preferences.DeliveryStatus = &status
	if p.Language != "" {
		lang := p.Language
		m.Preferences.PreferredLanguage = &lang
	}

	if err := r.Roster.Create(ctx, m); err != nil {
		return nil, err
	}

	s.bus.Publish(events.SubscriptionEvent{
		ListID:   list.ListID,
		MemberID: m.ID,
		Email:    p.Email,
		Role:     string(domain.RoleMember),
		At:       s.now(),
	})

	sendWelcome := list.SendWelcomeMessage
	if p.SendWelcome != nil {
		sendWelcome = *p.SendWelcome
	}
	if sendWelcome {
		if err := s.dispatch.SendWelcome(ctx, list, p.Email, p.Language); err != nil {
			return nil, err
		}
	}
	if list.AdminNotifyMchanges {
		if err := s.dispatch.NotifyAdminSubscribe(ctx, list, p.Email); err != nil {
			return nil, err
		}
	}

	logger.Info("member subscribed", "list", list.ListID, "email", p.Email)
	return completed(m), nil
}

func (s *Service) publishConfirmationRequired(list *domain.List, email, token string, owner domain.TokenOwner) {
	s.bus.Publish(events.ConfirmationRequiredEvent{
		ListID:     list.ListID,
		Email:      email,
		Token:      token,
		TokenOwner: string(owner),
		At:         s.now(),
	})
}
