package bounce

import (
	"context"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/events"
	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// Escalate runs one pass of the warning ladder over every bounce-disabled
// membership: members still owed warnings get the next one when the list's
// interval has elapsed, and members whose warnings are exhausted are removed.
// The whole pass runs in one transaction; callers serialize passes with a
// distributed lock.
func (p *Processor) Escalate(ctx context.Context) error {
	now := p.now()
	return p.tx.InTx(ctx, func(r Repos) error {
		members, err := r.Roster.DisabledMemberships(ctx)
		if err != nil {
			return err
		}

		lists := map[string]*domain.List{}
		for _, m := range members {
			list, ok := lists[m.ListID]
			if !ok {
				list, err = r.Lists.GetByListID(ctx, m.ListID)
				if err != nil {
					return err
				}
				lists[m.ListID] = list
			}
			if list == nil {
				continue
			}

			if now.Sub(m.LastWarningSent) < list.BounceYouAreDisabledWarningsInterval {
				continue
			}

			maxWarnings := list.BounceYouAreDisabledWarnings
			if maxWarnings == 0 || m.TotalWarningsSent >= maxWarnings {
				if err := p.remove(ctx, r, list, m); err != nil {
					return err
				}
				continue
			}

			remaining := maxWarnings - m.TotalWarningsSent
			if err := p.dispatch.SendWarning(ctx, list, m.Email, remaining); err != nil {
				return err
			}
			if err := r.Roster.RecordWarning(ctx, m.ID, now); err != nil {
				return err
			}
			logger.Info("disabled-delivery warning sent",
				"list", m.ListID, "email", m.Email, "remaining", remaining)
		}
		return nil
	})
}

// remove drops a membership whose warnings ran out.
func (p *Processor) remove(ctx context.Context, r Repos, list *domain.List, m *domain.Membership) error {
	if err := r.Roster.Delete(ctx, m.ID); err != nil {
		return err
	}
	p.bus.Publish(events.MembershipRemovedForBouncesEvent{
		ListID:   list.ListID,
		MemberID: m.ID,
		Email:    m.Email,
		At:       p.now(),
	})
	// Unlike a voluntary unsubscribe, a bounce removal always notifies the
	// member; only the owner notice is a list knob.
	if err := p.dispatch.SendGoodbye(ctx, list, m.Email, ""); err != nil {
		return err
	}
	if list.BounceNotifyOwnerOnRemoval {
		if err := p.dispatch.NotifyOwnerRemoval(ctx, list, m.Email); err != nil {
			return err
		}
	}
	logger.Info("member removed for bouncing", "list", list.ListID, "email", m.Email)
	return nil
}
