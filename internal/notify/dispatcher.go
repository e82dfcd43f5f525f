package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// Options carries the runtime knobs the dispatcher reads.
type Options struct {
	// VERPDeliveries tags welcome/goodbye envelopes with the recipient.
	VERPDeliveries bool
	// DevmodeEnabled redirects every outbound message to DevmodeRecipient.
	DevmodeEnabled   bool
	DevmodeRecipient string
	// SiteOwner receives unrecognized bounces routed site-wide.
	SiteOwner string
	// DefaultLanguage is the site fallback when neither the recipient nor
	// the list specifies one.
	DefaultLanguage string
}

// Dispatcher renders templates and hands finished messages to the outbound
// submission collaborator. Safe for concurrent use.
type Dispatcher struct {
	outbound Outbound
	resolver Resolver
	opts     Options

	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template keyed by source
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(outbound Outbound, resolver Resolver, opts Options) *Dispatcher {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	return &Dispatcher{
		outbound: outbound,
		resolver: resolver,
		opts:     opts,
		engine:   liquid.NewEngine(),
	}
}

func (d *Dispatcher) render(source string, bindings map[string]interface{}) (string, error) {
	var tmpl *liquid.Template
	if cached, ok := d.cache.Load(source); ok {
		tmpl = cached.(*liquid.Template)
	} else {
		parsed, err := d.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		d.cache.Store(source, parsed)
		tmpl = parsed
	}
	out, err := tmpl.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return string(out), nil
}

func (d *Dispatcher) listBindings(list *domain.List) map[string]interface{} {
	return map[string]interface{}{
		"list_id":         list.ListID,
		"display_name":    list.DisplayName,
		"mail_host":       list.MailHost,
		"posting_address": list.PostingAddress,
		"request_address": list.RequestAddress,
		"owner_address":   list.OwnerAddress,
	}
}

// send resolves, renders, wraps, and enqueues one message.
func (d *Dispatcher) send(ctx context.Context, templateID string, list *domain.List, to []string, language string, bindings map[string]interface{}, envelopeFrom string, meta Metadata) error {
	// The member's own language wins; the list language backs it up even
	// when an explicit request misses.
	subjectSrc, bodySrc, ok := d.resolver.Raw(templateID, list.ListID, list.MailHost,
		[]string{language, list.PreferredLanguage})
	if !ok {
		return fmt.Errorf("no template source for %s", templateID)
	}

	merged := d.listBindings(list)
	for k, v := range bindings {
		merged[k] = v
	}

	subject, err := d.render(subjectSrc, merged)
	if err != nil {
		return err
	}
	body, err := d.render(bodySrc, merged)
	if err != nil {
		return err
	}

	if d.opts.DevmodeEnabled && d.opts.DevmodeRecipient != "" {
		logger.Debug("devmode redirect", "template", templateID, "original_recipients", strings.Join(to, ","))
		to = []string{d.opts.DevmodeRecipient}
	}

	if envelopeFrom == "" {
		envelopeFrom = list.BouncesAddress
	}

	msg := &Message{
		EnvelopeFrom: envelopeFrom,
		From:         list.OwnerAddress,
		To:           to,
		Subject:      strings.TrimSpace(subject),
		Body:         body,
		Headers: map[string]string{
			"List-Id": fmt.Sprintf("<%s>", list.ListID),
		},
	}
	meta.ListID = list.ListID
	meta.TemplateID = templateID

	if err := d.outbound.Enqueue(ctx, msg, meta); err != nil {
		return fmt.Errorf("enqueue %s: %w", templateID, err)
	}
	logger.Info("notification enqueued", "template", templateID, "list", list.ListID,
		"recipient", strings.Join(to, ","))
	return nil
}

// verpEncode folds the recipient into the envelope sender so a bounce is
// self-identifying: bounces "test-bounces@x.com" + recipient "anne@a.org"
// gives "test-bounces+anne=a.org@x.com".
func verpEncode(bouncesAddress, recipient string) string {
	at := strings.Index(bouncesAddress, "@")
	rat := strings.Index(recipient, "@")
	if at < 0 || rat < 0 {
		return bouncesAddress
	}
	return fmt.Sprintf("%s+%s=%s%s",
		bouncesAddress[:at], recipient[:rat], recipient[rat+1:], bouncesAddress[at:])
}

// probeEncode folds a pending-action token into the envelope sender so the
// returning bounce names exactly one membership.
func probeEncode(bouncesAddress, token string) string {
	at := strings.Index(bouncesAddress, "@")
	if at < 0 {
		return bouncesAddress
	}
	return fmt.Sprintf("%s+%s%s", bouncesAddress[:at], token, bouncesAddress[at:])
}

func (d *Dispatcher) personalEnvelope(list *domain.List, recipient string) string {
	if d.opts.VERPDeliveries {
		return verpEncode(list.BouncesAddress, recipient)
	}
	return list.BouncesAddress
}

// SendWelcome greets a freshly subscribed member.
func (d *Dispatcher) SendWelcome(ctx context.Context, list *domain.List, email, language string) error {
	return d.send(ctx, TemplateWelcome, list, []string{email}, language, nil,
		d.personalEnvelope(list, email), Metadata{Recipient: email})
}

// SendGoodbye says farewell to a departing member.
func (d *Dispatcher) SendGoodbye(ctx context.Context, list *domain.List, email, language string) error {
	return d.send(ctx, TemplateGoodbye, list, []string{email}, language, nil,
		d.personalEnvelope(list, email), Metadata{Recipient: email})
}

// SendSubscribeConfirmation asks the subscriber to confirm joining.
func (d *Dispatcher) SendSubscribeConfirmation(ctx context.Context, list *domain.List, email, token, language string) error {
	return d.send(ctx, TemplateConfirmSubscribe, list, []string{email}, language,
		map[string]interface{}{"email": email, "token": token},
		"", Metadata{Recipient: email})
}

// SendUnsubscribeConfirmation asks the subscriber to confirm leaving.
func (d *Dispatcher) SendUnsubscribeConfirmation(ctx context.Context, list *domain.List, email, token, language string) error {
	return d.send(ctx, TemplateConfirmUnsub, list, []string{email}, language,
		map[string]interface{}{"email": email, "token": token},
		"", Metadata{Recipient: email})
}

// SendInvitation invites an address onto the list.
func (d *Dispatcher) SendInvitation(ctx context.Context, list *domain.List, email, token, language string) error {
	return d.send(ctx, TemplateInvite, list, []string{email}, language,
		map[string]interface{}{"email": email, "token": token},
		"", Metadata{Recipient: email})
}

// SendApprovalRequest asks the list administrators to act on a held
// subscription request.
func (d *Dispatcher) SendApprovalRequest(ctx context.Context, list *domain.List, email, token string) error {
	return d.send(ctx, TemplateAdminApproval, list, []string{list.OwnerAddress}, "",
		map[string]interface{}{"email": email, "token": token},
		"", Metadata{Recipient: list.OwnerAddress})
}

// SendRejection tells a subscriber their request was turned down, with an
// optional moderator-supplied reason.
func (d *Dispatcher) SendRejection(ctx context.Context, list *domain.List, email, description, reason string) error {
	return d.send(ctx, TemplateRejected, list, []string{email}, "",
		map[string]interface{}{"email": email, "request_description": description, "reason": reason},
		"", Metadata{Recipient: email})
}

// NotifyAdminSubscribe tells the owners a member joined (admin_notify_mchanges).
func (d *Dispatcher) NotifyAdminSubscribe(ctx context.Context, list *domain.List, email string) error {
	return d.send(ctx, TemplateAdminSubscribe, list, []string{list.OwnerAddress}, "",
		map[string]interface{}{"member": email},
		"", Metadata{Recipient: list.OwnerAddress})
}

// NotifyAdminUnsubscribe tells the owners a member left.
func (d *Dispatcher) NotifyAdminUnsubscribe(ctx context.Context, list *domain.List, email string) error {
	return d.send(ctx, TemplateAdminUnsub, list, []string{list.OwnerAddress}, "",
		map[string]interface{}{"member": email},
		"", Metadata{Recipient: list.OwnerAddress})
}

// SendWarning reminds a bounce-disabled member their delivery is off.
func (d *Dispatcher) SendWarning(ctx context.Context, list *domain.List, email string, remainingWarnings int) error {
	return d.send(ctx, TemplateWarning, list, []string{email}, "",
		map[string]interface{}{"email": email, "remaining_warnings": remainingWarnings},
		"", Metadata{Recipient: email})
}

// SendProbe sends a VERP-addressed test message whose bounce unambiguously
// identifies one member.
func (d *Dispatcher) SendProbe(ctx context.Context, list *domain.List, email, token string) error {
	return d.send(ctx, TemplateProbe, list, []string{email}, "",
		map[string]interface{}{"email": email},
		probeEncode(list.BouncesAddress, token),
		Metadata{Recipient: email, Probe: true})
}

// NotifyOwnerDisable tells the owners a member's delivery was disabled.
func (d *Dispatcher) NotifyOwnerDisable(ctx context.Context, list *domain.List, email string) error {
	return d.send(ctx, TemplateAdminDisable, list, []string{list.OwnerAddress}, "",
		map[string]interface{}{"member": email},
		"", Metadata{Recipient: list.OwnerAddress})
}

// NotifyOwnerRemoval tells the owners a member was removed for bouncing.
func (d *Dispatcher) NotifyOwnerRemoval(ctx context.Context, list *domain.List, email string) error {
	return d.send(ctx, TemplateAdminRemoval, list, []string{list.OwnerAddress}, "",
		map[string]interface{}{"member": email},
		"", Metadata{Recipient: list.OwnerAddress})
}

// ForwardUnrecognized routes a bounce the processor could not associate with
// any member, per the list's disposition.
func (d *Dispatcher) ForwardUnrecognized(ctx context.Context, list *domain.List, email string, raw []byte) error {
	var to string
	switch list.ForwardUnrecognizedBouncesTo {
	case domain.UnrecognizedToListOwner:
		to = list.OwnerAddress
	case domain.UnrecognizedToSiteOwner:
		to = d.opts.SiteOwner
	default:
		logger.Debug("unrecognized bounce discarded", "list", list.ListID, "email", email)
		return nil
	}
	if to == "" {
		return nil
	}

	msg := &Message{
		EnvelopeFrom: list.BouncesAddress,
		From:         list.BouncesAddress,
		To:           []string{to},
		Subject:      fmt.Sprintf("Uncaught bounce notification on %s", list.ListID),
		Body:         string(raw),
		Headers:      map[string]string{"List-Id": fmt.Sprintf("<%s>", list.ListID)},
	}
	if d.opts.DevmodeEnabled && d.opts.DevmodeRecipient != "" {
		msg.To = []string{d.opts.DevmodeRecipient}
	}
	return d.outbound.Enqueue(ctx, msg, Metadata{ListID: list.ListID, Recipient: to})
}
