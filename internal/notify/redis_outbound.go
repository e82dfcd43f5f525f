package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// queuedMessage is the wire form handed to the delivery workers.
type queuedMessage struct {
	Message  *Message `json:"message"`
	Metadata Metadata `json:"metadata"`
	QueuedAt string   `json:"queued_at"`
}

// RedisOutbound enqueues rendered messages onto a Redis list for the MTA
// workers to drain. The lifecycle core never speaks SMTP itself.
type RedisOutbound struct {
	client *redis.Client
	key    string
}

func NewRedisOutbound(client *redis.Client, key string) *RedisOutbound {
	if key == "" {
		key = "listkeeper:outbound"
	}
	return &RedisOutbound{client: client, key: key}
}

// Enqueue implements Outbound.
func (o *RedisOutbound) Enqueue(ctx context.Context, msg *Message, meta Metadata) error {
	body, err := json.Marshal(queuedMessage{
		Message:  msg,
		Metadata: meta,
		QueuedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}
	if err := o.client.LPush(ctx, o.key, body).Err(); err != nil {
		return fmt.Errorf("failed to enqueue outbound message: %w", err)
	}
	return nil
}
