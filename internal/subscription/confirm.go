package subscription

import (
	"context"
	"fmt"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// ModeratorAction is a moderator's disposition of a held request.
type ModeratorAction string

const (
	ActionAccept  ModeratorAction = "accept"
	ActionReject  ModeratorAction = "reject"
	ActionDiscard ModeratorAction = "discard"
	ActionDefer   ModeratorAction = "defer"
	ActionHold    ModeratorAction = "hold"
)

// ConfirmToken consumes a pending-action token and resumes the suspended
// workflow from the gate it stopped at. Tokens are single-use; a second
// confirmation of the same token returns ErrTokenNotFound.
func (s *Service) ConfirmToken(ctx context.Context, token string) (*Result, error) {
	var result *Result
	err := s.tx.InTx(ctx, func(r Repos) error {
		act, err := r.Pending.Confirm(ctx, token, true)
		if err != nil {
			return err
		}
		if act == nil {
			return ErrTokenNotFound
		}
		result, err = s.resume(ctx, r, act)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("pending action confirmed", "token", logger.RedactToken(token))
	return result, nil
}

// resume advances a confirmed pending action: the gate it suspended at is
// now satisfied, so mark the corresponding pre-flag and re-enter the chain.
func (s *Service) resume(ctx context.Context, r Repos, act *domain.PendingAction) (*Result, error) {
	p := act.Payload

	list, err := r.Lists.GetByListID(ctx, p.ListID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchList, p.ListID)
	}

	switch act.Kind {
	case domain.PendUnsubscription:
		switch p.Step {
		case stepConfirm:
			p.PreConfirmed = true
		case stepApprove:
			p.PreApproved = true
		default:
			return nil, fmt.Errorf("pending action %s: unknown step %q", act.Token, p.Step)
		}
		p.Step = ""
		return s.unsubscribeStep(ctx, r, list, p)

	case domain.PendInvitation:
		// Accepting the invitation proves control of the address and
		// records the member's assent in one step.
		p.Invitation = false
		p.PreVerified = true
		p.PreConfirmed = true

	case domain.PendSubscription:
		switch p.Step {
		case stepVerify:
			addr, err := r.Identity.CreateAddress(ctx, p.Email, p.DisplayName)
			if err != nil {
				return nil, err
			}
			if err := r.Identity.VerifyAddress(ctx, addr.ID); err != nil {
				return nil, err
			}
			p.PreVerified = true
			// Clicking the link also satisfies a confirm-policy gate;
			// the address owner has already assented once.
			p.PreConfirmed = true
		case stepConfirm:
			p.PreConfirmed = true
		case stepApprove:
			p.PreApproved = true
		default:
			return nil, fmt.Errorf("pending action %s: unknown step %q", act.Token, p.Step)
		}

	default:
		return nil, fmt.Errorf("pending action %s: kind %q is not confirmable here", act.Token, act.Kind)
	}

	p.Step = ""
	return s.step(ctx, r, list, p)
}

// HandleModeratorAction applies a moderator's decision to a held
// subscription request. Accept resumes the workflow, reject expunges the
// token and notifies the subscriber, discard expunges silently, and defer
// or hold leaves the request held.
func (s *Service) HandleModeratorAction(ctx context.Context, token string, action ModeratorAction, reason string) (*Result, error) {
	var result *Result
	err := s.tx.InTx(ctx, func(r Repos) error {
		switch action {
		case ActionAccept:
			act, err := r.Pending.Confirm(ctx, token, true)
			if err != nil {
				return err
			}
			if act == nil {
				return ErrTokenNotFound
			}
			result, err = s.resume(ctx, r, act)
			return err

		case ActionReject:
			act, err := r.Pending.Confirm(ctx, token, true)
			if err != nil {
				return err
			}
			if act == nil {
				return ErrTokenNotFound
			}
			list, err := r.Lists.GetByListID(ctx, act.Payload.ListID)
			if err != nil {
				return err
			}
			if list != nil {
				desc := "subscription request"
				if act.Kind == domain.PendUnsubscription {
					desc = "unsubscription request"
				}
				if err := s.dispatch.SendRejection(ctx, list, act.Payload.Email, desc, reason); err != nil {
					return err
				}
			}
			logger.Info("request rejected", "list", act.Payload.ListID, "email", act.Payload.Email)
			result = &Result{TokenOwner: domain.OwnerNoOne}
			return nil

		case ActionDiscard:
			if err := r.Pending.Discard(ctx, token); err != nil {
				return err
			}
			result = &Result{TokenOwner: domain.OwnerNoOne}
			return nil

		case ActionDefer, ActionHold:
			result = &Result{Token: token, TokenOwner: domain.OwnerModerator}
			return nil

		default:
			return fmt.Errorf("unknown moderator action %q", action)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
