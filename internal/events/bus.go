package events

import (
	"sync"

	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// Handler receives every event published after it subscribed.
type Handler func(Event)

// Bus is a synchronous in-process publish/subscribe hub. Handlers run on the
// publisher's goroutine in subscription order. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events. There is no
// unsubscribe: buses live for the process lifetime and tests build fresh ones.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish delivers the event to every handler synchronously. A panicking
// handler is logged and skipped; it never propagates to the publisher.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, evt)
	}
}

func (b *Bus) deliver(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event subscriber panicked", "event", evt.Name(), "panic", r)
		}
	}()
	h(evt)
}
