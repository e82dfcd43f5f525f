package bounce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// Notice is the wire form of one bounce report on the intake queue. Ordinary
// bounces carry the list and recipient the MTA extracted; probe bounces carry
// only the token from the probe's VERP envelope.
type Notice struct {
	ListID     string    `json:"list_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	ProbeToken string    `json:"probe_token,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Queue is the Redis list the intake side pushes notices onto.
type Queue struct {
	client *redis.Client
	key    string
}

func NewQueue(client *redis.Client, key string) *Queue {
	return &Queue{client: client, key: key}
}

// PublishBounce enqueues an ordinary bounce notice.
func (q *Queue) PublishBounce(ctx context.Context, listID, email, messageID string) error {
	return q.push(ctx, Notice{
		ListID:     listID,
		Email:      email,
		MessageID:  messageID,
		ReceivedAt: time.Now().UTC(),
	})
}

// PublishProbe enqueues a probe bounce identified only by its token.
func (q *Queue) PublishProbe(ctx context.Context, token string) error {
	return q.push(ctx, Notice{
		ProbeToken: token,
		ReceivedAt: time.Now().UTC(),
	})
}

func (q *Queue) push(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal bounce notice: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("failed to enqueue bounce notice: %w", err)
	}
	return nil
}

// Consumer drains the intake queue: each notice becomes a durable bounce
// event and is handed to the processor. A notice that fails to apply is
// logged and dropped from the queue; the durable event stays unprocessed for
// a later retry.
type Consumer struct {
	queue     *Queue
	tx        TxRunner
	processor *Processor

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewConsumer(queue *Queue, tx TxRunner, processor *Processor) *Consumer {
	return &Consumer{
		queue:     queue,
		tx:        tx,
		processor: processor,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the drain loop. It returns immediately.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Info("bounce consumer started", "queue", c.queue.key)
		for {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}

			res, err := c.queue.client.BRPop(ctx, 5*time.Second, c.queue.key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
					continue
				}
				logger.Error("bounce queue read error", "error", err.Error())
				time.Sleep(time.Second)
				continue
			}
			// BRPop returns [key, value].
			if len(res) != 2 {
				continue
			}
			if err := c.handle(ctx, []byte(res[1])); err != nil {
				logger.Error("bounce notice dropped", "error", err.Error())
			}
		}
	}()
}

// Stop halts the drain loop and waits for the in-flight notice to finish.
func (c *Consumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Consumer) handle(ctx context.Context, raw []byte) error {
	var n Notice
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("malformed bounce notice: %w", err)
	}

	ev := &domain.BounceEvent{
		ListID:     n.ListID,
		Email:      n.Email,
		MessageID:  n.MessageID,
		ReceivedAt: n.ReceivedAt,
		Context:    domain.ContextNormal,
	}

	if n.ProbeToken != "" {
		if err := c.resolveProbe(ctx, n.ProbeToken, ev); err != nil {
			return err
		}
	}

	if err := c.tx.InTx(ctx, func(r Repos) error {
		return r.Events.Record(ctx, ev)
	}); err != nil {
		return err
	}
	return c.processor.ProcessEvent(ctx, ev)
}

// resolveProbe exchanges a probe token for the member it was addressed to.
// Probe tokens are single-use, so a duplicate probe bounce resolves to
// ErrBadProbeToken and is dropped.
func (c *Consumer) resolveProbe(ctx context.Context, token string, ev *domain.BounceEvent) error {
	return c.tx.InTx(ctx, func(r Repos) error {
		act, err := r.Pending.Confirm(ctx, token, true)
		if err != nil {
			return err
		}
		if act == nil || act.Kind != domain.PendProbe {
			return fmt.Errorf("%w: %s", ErrBadProbeToken, logger.RedactToken(token))
		}
		ev.ListID = act.Payload.ListID
		ev.Email = act.Payload.Email
		ev.Context = domain.ContextProbe
		return nil
	})
}
