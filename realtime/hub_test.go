package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/storefront-go/auth"
	"github.com/user/storefront-go/logging"
)

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub(4, logging.Discard())
	_, a := hub.NewClient()
	_, b := hub.NewClient()
	require.Equal(t, 2, hub.ClientCount())

	n, err := hub.Broadcast(context.Background(), "order.created", map[string]int{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, ch := range []<-chan SSEEvent{a, b} {
		evt := <-ch
		assert.Equal(t, "order.created", evt.Event)
		assert.JSONEq(t, `{"id":7}`, evt.Data)
		assert.NotEmpty(t, evt.ID)
	}
}

func TestHub_SlowClientMissesEvents(t *testing.T) {
	hub := NewHub(1, logging.Discard())
	_, slow := hub.NewClient()

	first, err := hub.Broadcast(context.Background(), "tick", 1)
	require.NoError(t, err)
	second, err := hub.Broadcast(context.Background(), "tick", 2)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second, "a full buffer drops the event instead of blocking")
	assert.Equal(t, "1", (<-slow).Data)
}

func TestHub_RemoveClientClosesChannel(t *testing.T) {
	hub := NewHub(1, logging.Discard())
	id, ch := hub.NewClient()

	hub.RemoveClient(id)
	hub.RemoveClient(id)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.ClientCount())

	n, err := hub.Broadcast(context.Background(), "tick", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHub_CloseEndsAllClients(t *testing.T) {
	hub := NewHub(4, logging.Discard())
	id, ch := hub.NewClient()

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount())
	hub.RemoveClient(id)

	_, late := hub.NewClient()
	_, ok = <-late
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_RejectsBadInput(t *testing.T) {
	hub := NewHub(1, logging.Discard())

	_, err := hub.Broadcast(context.Background(), "bad\nname", nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = hub.Broadcast(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = hub.Broadcast(context.Background(), "chan", make(chan int))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = hub.Broadcast(ctx, "tick", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSSEEvent_WriteTo(t *testing.T) {
	var buf bytes.Buffer
	_, err := SSEEvent{ID: "3", Event: "note", Data: "line one\nline two"}.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "id: 3\nevent: note\ndata: line one\ndata: line two\n\n", buf.String())
}

func TestSignupAnnouncer(t *testing.T) {
	hub := NewHub(1, logging.Discard())
	_, ch := hub.NewClient()

	hook := SignupAnnouncer(hub, logging.Discard())
	hook(context.Background(), auth.PublicUser{ID: "u-1", Name: "A", Email: "a@x.com"})

	var evt SSEEvent
	select {
	case evt = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("signup was not announced")
	}
	assert.Equal(t, EventUserSignup, evt.Event)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(evt.Data), &got))
	assert.Equal(t, map[string]any{"id": "u-1", "name": "A"}, got)
}
