package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/storefront-go/auth"
	"github.com/user/storefront-go/logging"
)

// readUntil reads lines until one has the given prefix.
func readUntil(t *testing.T, r *bufio.Reader, prefix string) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line)
		}
	}
}

func TestHandleStream(t *testing.T) {
	hub := NewHub(4, logging.Discard())
	h := NewHandlers(hub, hub, 50*time.Millisecond, logging.Discard())
	srv := httptest.NewServer(h.HandleStream())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body := bufio.NewReader(resp.Body)
	readUntil(t, body, ": connected")
	require.Equal(t, 1, hub.ClientCount())

	_, err = hub.Broadcast(ctx, "greeting", map[string]string{"text": "hi"})
	require.NoError(t, err)

	assert.Equal(t, "event: greeting", readUntil(t, body, "event:"))
	assert.Equal(t, `data: {"text":"hi"}`, readUntil(t, body, "data:"))
	assert.Equal(t, ": ping", readUntil(t, body, ": ping"))

	cancel()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleNotify(t *testing.T) {
	hub := NewHub(4, logging.Discard())
	_, ch := hub.NewClient()
	h := NewHandlers(hub, hub, 0, logging.Discard())

	post := func(body string, claims *auth.Claims) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/notifications", strings.NewReader(body))
		if claims != nil {
			req = req.WithContext(auth.NewContextWithClaims(req.Context(), claims))
		}
		rec := httptest.NewRecorder()
		h.HandleNotify().ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"event":"order.shipped","payload":{"order":42}}`, &auth.Claims{UserID: "u-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp NotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Delivered)

	evt := <-ch
	assert.Equal(t, "order.shipped", evt.Event)
	assert.JSONEq(t, `{"from":"u-1","payload":{"order":42}}`, evt.Data)

	assert.Equal(t, http.StatusBadRequest, post(`{"payload":{}}`, &auth.Claims{UserID: "u-1"}).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"event":"a\nb"}`, &auth.Claims{UserID: "u-1"}).Code)
	assert.Equal(t, http.StatusUnauthorized, post(`{"event":"x"}`, nil).Code)

	for _, reserved := range []string{"payment.payment_intent.succeeded", EventUserSignup} {
		rec := post(`{"event":"`+reserved+`","payload":{}}`, &auth.Claims{UserID: "u-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code, reserved)
		assert.Contains(t, rec.Body.String(), "reserved prefix")
	}
	select {
	case evt := <-ch:
		t.Fatalf("reserved event delivered: %+v", evt)
	default:
	}
}

func TestIsReservedEvent(t *testing.T) {
	assert.True(t, IsReservedEvent("payment.charge.refunded"))
	assert.True(t, IsReservedEvent(EventUserSignup))
	assert.False(t, IsReservedEvent("order.shipped"))
	assert.False(t, IsReservedEvent("payments"))
}
