// Package payments exposes payment-intent creation and the related processor
// operations over HTTP. The processor itself is an external collaborator:
// amounts, currencies and payment state live there, not here.
package payments

import (
	"context"
)

// IntentParams describes a payment intent to create.
// Amount is in the currency's minor unit (cents for USD).
type IntentParams struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Intent is the processor's view of a payment intent.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"-"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Refund is the result of refunding a payment intent.
type Refund struct {
	ID     string `json:"refundId"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// WebhookEvent is a verified processor notification.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Processor is the payment processor capability.
// Implementations return apperror values so handlers can pass them through.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
	// RefundPaymentIntent refunds amount minor units, or everything when amount is 0.
	RefundPaymentIntent(ctx context.Context, id string, amount int64) (*Refund, error)
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	// ParseWebhook verifies the signature header and decodes the event.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
