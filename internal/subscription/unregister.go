package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/events"
	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// Unregister starts the unsubscription state machine for a member. The
// pre-flags short-circuit the confirmation and approval gates, for callers
// acting on an already-authenticated channel.
func (s *Service) Unregister(ctx context.Context, listID, email string, preConfirmed, preApproved bool) (*Result, error) {
	var result *Result
	err := s.tx.InTx(ctx, func(r Repos) error {
		list, err := r.Lists.GetByListID(ctx, listID)
		if err != nil {
			return err
		}
		if list == nil {
			return fmt.Errorf("%w: %s", ErrNoSuchList, listID)
		}

		m, err := r.Roster.Get(ctx, listID, email, domain.RoleMember)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: %s on %s", ErrNotAMember, email, listID)
		}

		p := domain.PendPayload{
			ListID:       listID,
			Email:        email,
			MemberID:     m.ID.String(),
			PreConfirmed: preConfirmed,
			PreApproved:  preApproved,
		}
		result, err = s.unsubscribeStep(ctx, r, list, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// unsubscribeStep mirrors step for the leaving direction: confirm, then
// approve, then delete.
func (s *Service) unsubscribeStep(ctx context.Context, r Repos, list *domain.List, p domain.PendPayload) (*Result, error) {
	listID := list.ListID

	if list.UnsubscriptionPolicy.RequiresConfirmation() && !p.PreConfirmed {
		p.Step = stepConfirm
		token, err := r.Pending.Add(ctx, domain.PendUnsubscription, &listID, p, domain.OwnerSubscriber, s.lifetimes.Subscription)
		if err != nil {
			return nil, err
		}
		if err := s.dispatch.SendUnsubscribeConfirmation(ctx, list, p.Email, token, p.Language); err != nil {
			return nil, err
		}
		s.publishConfirmationRequired(list, p.Email, token, domain.OwnerSubscriber)
		return suspended(token, domain.OwnerSubscriber), nil
	}

	if list.UnsubscriptionPolicy.RequiresApproval() && !p.PreApproved {
		p.Step = stepApprove
		token, err := r.Pending.Add(ctx, domain.PendUnsubscription, &listID, p, domain.OwnerModerator, s.lifetimes.Subscription)
		if err != nil {
			return nil, err
		}
		if err := s.dispatch.SendApprovalRequest(ctx, list, p.Email, token); err != nil {
			return nil, err
		}
		s.publishConfirmationRequired(list, p.Email, token, domain.OwnerModerator)
		return suspended(token, domain.OwnerModerator), nil
	}

	return s.unsubscribe(ctx, r, list, p)
}

// unsubscribe is the terminal state: remove the membership and queue the
// leaving artifacts.
func (s *Service) unsubscribe(ctx context.Context, r Repos, list *domain.List, p domain.PendPayload) (*Result, error) {
	memberID, err := uuid.Parse(p.MemberID)
	if err != nil {
		return nil, fmt.Errorf("pending payload: bad member id %q: %w", p.MemberID, err)
	}
	m, err := r.Roster.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		// The member left by other means while the request was pending.
		return nil, fmt.Errorf("%w: %s on %s", ErrNotAMember, p.Email, p.ListID)
	}

	if err := r.Roster.Delete(ctx, m.ID); err != nil {
		return nil, err
	}

	s.bus.Publish(events.UnsubscriptionEvent{
		ListID:   list.ListID,
		MemberID: m.ID,
		Email:    p.Email,
		At:       s.now(),
	})

	if list.SendGoodbyeMessage {
		if err := s.dispatch.SendGoodbye(ctx, list, p.Email, p.Language); err != nil {
			return nil, err
		}
	}
	if list.AdminNotifyMchanges {
		if err := s.dispatch.NotifyAdminUnsubscribe(ctx, list, p.Email); err != nil {
			return nil, err
		}
	}

	logger.Info("member unsubscribed", "list", list.ListID, "email", p.Email)
	return completed(nil), nil
}

// ChangeAddress points an address-based membership at a different, verified
// address. The new address must already belong to the same user as the old
// one, or to no user at all when the old one is unowned.
func (s *Service) ChangeAddress(ctx context.Context, memberID uuid.UUID, newEmail string) error {
	return s.tx.InTx(ctx, func(r Repos) error {
		m, err := r.Roster.GetByID(ctx, memberID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: %s", ErrNotAMember, memberID)
		}
		if m.AddressID == nil {
			return ErrNotAddressSubscription
		}

		oldAddr, err := r.Identity.GetAddressByID(ctx, *m.AddressID)
		if err != nil {
			return err
		}
		newAddr, err := r.Identity.GetAddress(ctx, newEmail)
		if err != nil {
			return err
		}
		if newAddr == nil || !newAddr.Verified() {
			return fmt.Errorf("%w: %s", ErrUnverifiedAddress, newEmail)
		}
		if oldAddr != nil && !sameOwner(oldAddr.UserID, newAddr.UserID) {
			return fmt.Errorf("%w: %s", ErrAddressOwnershipMismatch, newEmail)
		}

		if err := r.Roster.UpdateAddress(ctx, m.ID, newAddr.ID); err != nil {
			return err
		}
		logger.Info("membership address changed", "member", m.ID, "email", newEmail)
		return nil
	})
}

func sameOwner(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
