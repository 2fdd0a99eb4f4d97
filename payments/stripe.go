package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/user/storefront-go/apperror"
	"github.com/user/storefront-go/config"
)

// StripeProcessor implements Processor with the Stripe API.
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProcessor creates a processor with its own API client; nothing is
// stored in stripe's package-level key.
func NewStripeProcessor(cfg config.StripeConfig) *StripeProcessor {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeProcessor{api: api, webhookSecret: cfg.WebhookSecret}
}

// CreatePaymentIntent implements Processor.
func (p *StripeProcessor) CreatePaymentIntent(ctx context.Context, in IntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translateStripeError("payment failed", err)
	}
	return intentFromStripe(pi), nil
}

// GetPaymentIntent implements Processor.
func (p *StripeProcessor) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, translateStripeError("failed to retrieve payment", err)
	}
	return intentFromStripe(pi), nil
}

// RefundPaymentIntent implements Processor.
func (p *StripeProcessor) RefundPaymentIntent(ctx context.Context, id string, amount int64) (*Refund, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(id)}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	params.Context = ctx

	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, translateStripeError("refund failed", err)
	}
	return &Refund{ID: r.ID, Status: string(r.Status), Amount: r.Amount}, nil
}

// CreateCustomer implements Processor.
func (p *StripeProcessor) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", translateStripeError("failed to create customer", err)
	}
	return c.ID, nil
}

// ParseWebhook implements Processor. Events from other API versions are
// accepted; only the id and type are read.
func (p *StripeProcessor) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, apperror.NewConfigError("webhooks are not configured", nil)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperror.NewValidationError("invalid webhook signature", err)
	}
	return &WebhookEvent{ID: event.ID, Type: string(event.Type)}, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

// translateStripeError maps Stripe API errors onto apperror types.
// Request errors carry a message meant for the caller; everything else is a
// generic upstream failure.
func translateStripeError(message string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			return apperror.NewNotFoundError("payment not found", err)
		case stripeErr.Type == stripe.ErrorTypeCard,
			stripeErr.HTTPStatusCode == http.StatusBadRequest,
			stripeErr.HTTPStatusCode == http.StatusPaymentRequired:
			if stripeErr.Msg != "" {
				message = stripeErr.Msg
			}
			return apperror.NewValidationError(message, err)
		}
	}
	return apperror.NewExternalServiceError(message, err)
}

var _ Processor = (*StripeProcessor)(nil)
