package bounce

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/listkeeper/internal/domain"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestQueuePublishBounce(t *testing.T) {
	client := testRedis(t)
	q := NewQueue(client, "test:bounces")
	ctx := context.Background()

	require.NoError(t, q.PublishBounce(ctx, "test.example.com", "anne@example.org", "<m1@example.org>"))

	raw, err := client.RPop(ctx, "test:bounces").Result()
	require.NoError(t, err)

	var n Notice
	require.NoError(t, json.Unmarshal([]byte(raw), &n))
	assert.Equal(t, "test.example.com", n.ListID)
	assert.Equal(t, "anne@example.org", n.Email)
	assert.Equal(t, "<m1@example.org>", n.MessageID)
	assert.Empty(t, n.ProbeToken)
	assert.False(t, n.ReceivedAt.IsZero())
}

func TestConsumerHandleNormalBounce(t *testing.T) {
	s := newFakeState()
	d := &fakeNotifier{}
	s.lists["test.example.com"] = bouncyList()
	m := seedMember(s, "test.example.com", "anne@example.org")

	p, _ := newTestProcessor(s, d, Options{})
	c := NewConsumer(NewQueue(testRedis(t), "test:bounces"), fakeTx{s}, p)

	body, err := json.Marshal(Notice{
		ListID:     "test.example.com",
		Email:      "anne@example.org",
		ReceivedAt: s.now,
	})
	require.NoError(t, err)

	require.NoError(t, c.handle(context.Background(), body))
	require.Len(t, s.recorded, 1)
	assert.Equal(t, 1, m.BounceScore)
}

func TestConsumerHandleProbeBounce(t *testing.T) {
	s := newFakeState()
	d := &fakeNotifier{}
	s.lists["test.example.com"] = bouncyList()
	m := seedMember(s, "test.example.com", "anne@example.org")

	listID := "test.example.com"
	token, err := s.Add(context.Background(), domain.PendProbe, &listID,
		domain.PendPayload{ListID: listID, Email: "anne@example.org", MemberID: m.ID.String()},
		domain.OwnerSubscriber, time.Hour)
	require.NoError(t, err)

	p, _ := newTestProcessor(s, d, Options{VERPProbes: true})
	c := NewConsumer(NewQueue(testRedis(t), "test:bounces"), fakeTx{s}, p)

	body, err := json.Marshal(Notice{ProbeToken: token, ReceivedAt: s.now})
	require.NoError(t, err)

	require.NoError(t, c.handle(context.Background(), body))
	assert.True(t, m.DeliveryDisabledByBounces())

	// The token was consumed; a replay is rejected.
	err = c.handle(context.Background(), body)
	assert.ErrorIs(t, err, ErrBadProbeToken)
}

func TestConsumerHandleMalformedNotice(t *testing.T) {
	s := newFakeState()
	d := &fakeNotifier{}
	p, _ := newTestProcessor(s, d, Options{})
	c := NewConsumer(NewQueue(testRedis(t), "test:bounces"), fakeTx{s}, p)

	err := c.handle(context.Background(), []byte("{not json"))
	assert.Error(t, err)
	assert.Empty(t, s.recorded)
}
