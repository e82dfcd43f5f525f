package notify

import "context"

// Message is a fully composed outbound mail.
type Message struct {
	// EnvelopeFrom is the bounce return path, possibly VERP-tagged.
	EnvelopeFrom string
	From         string
	To           []string
	Subject      string
	Body         string
	Headers      map[string]string
}

// Metadata rides alongside a message for the submission pipeline's benefit.
type Metadata struct {
	ListID     string
	TemplateID string
	Recipient  string
	Probe      bool
}

// Outbound is the submission collaborator contract: best-effort durable
// enqueueing onto the outgoing pipeline. The core owns no transport.
type Outbound interface {
	Enqueue(ctx context.Context, msg *Message, meta Metadata) error
}
