package notify

import (
	"context"

	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// LogOutbound logs messages instead of delivering them. It stands in when no
// queue is configured, in development and in tests.
type LogOutbound struct{}

func NewLogOutbound() *LogOutbound {
	return &LogOutbound{}
}

// Enqueue implements Outbound.
func (o *LogOutbound) Enqueue(ctx context.Context, msg *Message, meta Metadata) error {
	logger.Info("outbound message (not delivered)",
		"template", meta.TemplateID,
		"list", meta.ListID,
		"recipient", meta.Recipient,
		"subject", msg.Subject)
	return nil
}
