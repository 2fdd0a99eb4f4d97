package payments

// CreatePaymentRequest is the body of POST /api/payment.
// Amount is in the currency's minor unit.
type CreatePaymentRequest struct {
	Amount   int64             `json:"amount" validate:"required,gt=0,lte=99999999" example:"1999"`
	Currency string            `json:"currency" validate:"omitempty,len=3,alpha" example:"usd"`
	Metadata map[string]string `json:"metadata" validate:"max=20,dive,keys,max=40,endkeys,max=500"`
}

// CreatePaymentResponse carries what the client needs to confirm the payment.
type CreatePaymentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// RefundRequest is the optional body of POST /api/payment/{id}/refund.
// A missing or zero amount refunds the whole payment.
type RefundRequest struct {
	Amount int64 `json:"amount" validate:"gte=0" example:"500"`
}

// CustomerResponse is returned by POST /api/payment/customers.
type CustomerResponse struct {
	CustomerID string `json:"customerId"`
}

// WebhookResponse acknowledges a verified webhook.
type WebhookResponse struct {
	Received bool `json:"received"`
}
