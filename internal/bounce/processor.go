package bounce

import (
	"context"
	"time"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/events"
	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// Dispatcher is the slice of the notification dispatcher the processor uses.
type Dispatcher interface {
	SendProbe(ctx context.Context, list *domain.List, email, token string) error
	SendWarning(ctx context.Context, list *domain.List, email string, remainingWarnings int) error
	SendGoodbye(ctx context.Context, list *domain.List, email, language string) error
	NotifyOwnerDisable(ctx context.Context, list *domain.List, email string) error
	NotifyOwnerRemoval(ctx context.Context, list *domain.List, email string) error
	ForwardUnrecognized(ctx context.Context, list *domain.List, email string, raw []byte) error
}

// Options tunes the processor.
type Options struct {
	// VERPProbes switches threshold handling from disabling delivery to
	// sending an addressed probe and resetting the score.
	VERPProbes bool

	// ProbeLifetime bounds how long a probe token stays confirmable.
	ProbeLifetime time.Duration
}

// Processor applies bounce events to memberships and runs the escalation
// ladder for members whose delivery is already off.
type Processor struct {
	tx       TxRunner
	dispatch Dispatcher
	bus      *events.Bus
	opts     Options
	now      func() time.Time
}

func NewProcessor(tx TxRunner, dispatch Dispatcher, bus *events.Bus, opts Options) *Processor {
	if opts.ProbeLifetime == 0 {
		opts.ProbeLifetime = 14 * 24 * time.Hour
	}
	return &Processor{
		tx:       tx,
		dispatch: dispatch,
		bus:      bus,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// ProcessEvent applies one bounce event in a single transaction. Events that
// cannot be applied (unknown list, bounce processing off, no such member,
// already-disabled member, same-day duplicate) are marked processed and
// skipped; only infrastructure failures return an error, leaving the event
// unprocessed for a retry.
func (p *Processor) ProcessEvent(ctx context.Context, ev *domain.BounceEvent) error {
	return p.tx.InTx(ctx, func(r Repos) error {
		if err := p.applyEvent(ctx, r, ev); err != nil {
			return err
		}
		return r.Events.MarkProcessed(ctx, ev.ID)
	})
}

func (p *Processor) applyEvent(ctx context.Context, r Repos, ev *domain.BounceEvent) error {
	list, err := r.Lists.GetByListID(ctx, ev.ListID)
	if err != nil {
		return err
	}
	if list == nil {
		logger.Warn("bounce for unknown list", "list", ev.ListID, "email", ev.Email)
		return nil
	}
	if !list.ProcessBounces {
		logger.Debug("bounce processing off, ignoring", "list", ev.ListID, "email", ev.Email)
		return nil
	}

	member, err := r.Roster.GetMember(ctx, ev.ListID, ev.Email)
	if err != nil {
		return err
	}
	if member == nil {
		if err := p.registerNonmember(ctx, r, list, ev); err != nil {
			return err
		}
		return p.dispatch.ForwardUnrecognized(ctx, list, ev.Email, nil)
	}

	// A probe bounce identifies exactly one member; no scoring needed.
	if ev.Context == domain.ContextProbe {
		return p.disable(ctx, r, list, member)
	}

	if member.DeliveryDisabledByBounces() {
		logger.Debug("residual bounce for disabled member",
			"list", ev.ListID, "email", ev.Email)
		return nil
	}

	// Score at most once per UTC day.
	if member.LastBounceReceived != nil && domain.SameUTCDay(*member.LastBounceReceived, ev.ReceivedAt) {
		return r.Roster.TouchLastBounce(ctx, member.ID, ev.ReceivedAt)
	}

	score := member.BounceScore + 1
	if member.LastBounceReceived != nil &&
		ev.ReceivedAt.Sub(*member.LastBounceReceived) > list.BounceInfoStaleAfter {
		// The old score has gone stale; this bounce starts a fresh count.
		score = 1
	}
	if err := r.Roster.SetBounceInfo(ctx, member.ID, score, ev.ReceivedAt); err != nil {
		return err
	}
	logger.Debug("bounce scored", "list", ev.ListID, "email", ev.Email, "score", score)

	if score < list.BounceScoreThreshold {
		return nil
	}

	if p.opts.VERPProbes {
		return p.probe(ctx, r, list, member)
	}
	member.BounceScore = score
	return p.disable(ctx, r, list, member)
}

// registerNonmember puts a bouncing address the list has never subscribed
// onto the roster as a nonmember. Nonmembers carry no bounce score; the
// event itself is handed to the owner per the list's disposition.
func (p *Processor) registerNonmember(ctx context.Context, r Repos, list *domain.List, ev *domain.BounceEvent) error {
	addr, err := r.Identity.GetAddress(ctx, ev.Email)
	if err != nil {
		return err
	}
	if addr == nil {
		addr, err = r.Identity.CreateAddress(ctx, ev.Email, "")
		if err != nil {
			return err
		}
	}
	if _, err := r.Roster.EnsureNonmember(ctx, list.ListID, addr.ID, ev.Email); err != nil {
		return err
	}
	logger.Info("bounce from non-member", "list", ev.ListID, "email", ev.Email)
	return nil
}

// Register records a bounce and processes it immediately, for callers not
// going through the intake queue.
func (p *Processor) Register(ctx context.Context, listID, email, messageID string, bctx domain.BounceContext) (*domain.BounceEvent, error) {
	ev := &domain.BounceEvent{
		ListID:     listID,
		Email:      email,
		MessageID:  messageID,
		ReceivedAt: p.now(),
		Context:    bctx,
	}
	if err := p.tx.InTx(ctx, func(r Repos) error {
		return r.Events.Record(ctx, ev)
	}); err != nil {
		return nil, err
	}
	if err := p.ProcessEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Sweep purges expired pending actions, probe tokens included.
func (p *Processor) Sweep(ctx context.Context) error {
	return p.tx.InTx(ctx, func(r Repos) error {
		n, err := r.Pending.Sweep(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("expired pending actions swept", "count", n)
		}
		return nil
	})
}

// probe sends a VERP-addressed test message instead of disabling outright.
// The score resets so ordinary bounces start over; the probe's own bounce
// comes back with ContextProbe and disables unconditionally.
func (p *Processor) probe(ctx context.Context, r Repos, list *domain.List, m *domain.Membership) error {
	listID := list.ListID
	payload := domain.PendPayload{
		ListID:   listID,
		Email:    m.Email,
		MemberID: m.ID.String(),
	}
	token, err := r.Pending.Add(ctx, domain.PendProbe, &listID, payload, domain.OwnerSubscriber, p.opts.ProbeLifetime)
	if err != nil {
		return err
	}
	if err := p.dispatch.SendProbe(ctx, list, m.Email, token); err != nil {
		return err
	}
	if err := r.Roster.ResetBounceScore(ctx, m.ID); err != nil {
		return err
	}
	logger.Info("probe sent", "list", list.ListID, "email", m.Email)
	return nil
}

// disable turns a member's delivery off for bouncing and resets the
// escalation counters so the warning ladder starts from the top.
func (p *Processor) disable(ctx context.Context, r Repos, list *domain.List, m *domain.Membership) error {
	if m.DeliveryDisabledByBounces() {
		return nil
	}
	if err := r.Roster.DisableDelivery(ctx, m.ID); err != nil {
		return err
	}
	p.bus.Publish(events.MembershipDisabledByBouncesEvent{
		ListID:   list.ListID,
		MemberID: m.ID,
		Email:    m.Email,
		Score:    m.BounceScore,
		At:       p.now(),
	})
	if list.BounceNotifyOwnerOnDisable {
		if err := p.dispatch.NotifyOwnerDisable(ctx, list, m.Email); err != nil {
			return err
		}
	}
	logger.Info("delivery disabled by bounces", "list", list.ListID, "email", m.Email)
	return nil
}
