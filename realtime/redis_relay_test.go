package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/storefront-go/logging"
)

func TestRedisRelay_FansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newInstance := func() (*Hub, *RedisRelay) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		hub := NewHub(4, logging.Discard())
		relay := NewRedisRelay(client, "test:events", hub, logging.Discard())
		require.NoError(t, relay.Start(ctx))
		t.Cleanup(func() { _ = relay.Close() })
		return hub, relay
	}

	hubA, relayA := newInstance()
	hubB, _ := newInstance()
	_, clientA := hubA.NewClient()
	_, clientB := hubB.NewClient()

	receivers, err := relayA.Broadcast(ctx, "payment.succeeded", map[string]string{"id": "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, 2, receivers)

	for _, ch := range []<-chan SSEEvent{clientA, clientB} {
		select {
		case evt := <-ch:
			assert.Equal(t, "payment.succeeded", evt.Event)
			assert.JSONEq(t, `{"id":"pi_1"}`, evt.Data)
		case <-time.After(2 * time.Second):
			t.Fatal("event was not relayed")
		}
	}
}

func TestRedisRelay_StartTwice(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	relay := NewRedisRelay(client, "test:events", NewHub(1, logging.Discard()), logging.Discard())
	require.NoError(t, relay.Start(context.Background()))
	assert.Error(t, relay.Start(context.Background()))
	assert.NoError(t, relay.Close())
	assert.NoError(t, relay.Close())
}

func TestRedisRelay_PublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	relay := NewRedisRelay(client, "test:events", NewHub(1, logging.Discard()), logging.Discard())
	_, err := relay.Broadcast(context.Background(), "tick", 1)
	assert.Error(t, err)
}
