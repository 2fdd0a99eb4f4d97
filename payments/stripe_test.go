package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/user/storefront-go/apperror"
	"github.com/user/storefront-go/config"
)

// newTestStripeProcessor points a StripeProcessor at a local test server.
func newTestStripeProcessor(t *testing.T, handler http.HandlerFunc) *StripeProcessor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	p := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: "whsec_test"})
	p.api = &client.API{}
	p.api.Init("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return p
}

func TestStripeProcessor_CreatePaymentIntent(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "1999", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "u-1", r.PostForm.Get("metadata[user_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc",
			"status":"requires_payment_method","amount":1999,"currency":"usd","metadata":{"user_id":"u-1"}}`))
	})

	intent, err := p.CreatePaymentIntent(context.Background(), IntentParams{
		Amount:   1999,
		Currency: "usd",
		Metadata: map[string]string{"user_id": "u-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	assert.Equal(t, "requires_payment_method", intent.Status)
	assert.Equal(t, "u-1", intent.Metadata["user_id"])
}

func TestStripeProcessor_NotFound(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent: 'pi_x'"}}`))
	})

	_, err := p.GetPaymentIntent(context.Background(), "pi_x")
	assert.True(t, apperror.IsNotFound(err))
}

func TestStripeProcessor_ParseWebhook(t *testing.T) {
	p := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: "whsec_test"})
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := p.ParseWebhook(payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, &WebhookEvent{ID: "evt_1", Type: "payment_intent.succeeded"}, event)

	_, err = p.ParseWebhook(payload, "t=1,v1=deadbeef")
	assert.True(t, apperror.IsValidationError(err))

	unconfigured := NewStripeProcessor(config.StripeConfig{SecretKey: "sk_test_123"})
	_, err = unconfigured.ParseWebhook(payload, signed.Header)
	assert.True(t, apperror.Is(err, apperror.ConfigError))
}

func TestTranslateStripeError(t *testing.T) {
	card := &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired, Msg: "Your card was declined."}
	err := translateStripeError("payment failed", card)
	appErr, ok := apperror.FromError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ValidationError, appErr.Type)
	assert.Equal(t, "Your card was declined.", appErr.Message)

	upstream := translateStripeError("payment failed", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError})
	assert.True(t, apperror.Is(upstream, apperror.ExternalServiceError))

	network := translateStripeError("payment failed", errors.New("dial tcp: i/o timeout"))
	appErr, ok = apperror.FromError(network)
	require.True(t, ok)
	assert.Equal(t, apperror.ExternalServiceError, appErr.Type)
	assert.Equal(t, "payment failed", appErr.Message)
}
