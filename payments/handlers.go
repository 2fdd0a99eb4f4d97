package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/user/storefront-go/apperror"
	"github.com/user/storefront-go/auth"
	"github.com/user/storefront-go/realtime"
)

// maxWebhookBytes bounds webhook payloads.
const maxWebhookBytes = 64 << 10

// metadataUserID is the metadata key holding the id of the user who created an intent.
const metadataUserID = "user_id"

// UserLookup finds the caller's record for customer creation.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
}

// Handlers serves the payment endpoints.
type Handlers struct {
	processor       Processor
	users           UserLookup
	broadcaster     realtime.Broadcaster
	defaultCurrency string
	validate        *validator.Validate
	logger          *slog.Logger
}

// NewHandlers creates the payment handlers. broadcaster may be nil, in which
// case webhooks are acknowledged but not re-broadcast.
func NewHandlers(processor Processor, users UserLookup, broadcaster realtime.Broadcaster, defaultCurrency string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		processor:       processor,
		users:           users,
		broadcaster:     broadcaster,
		defaultCurrency: strings.ToLower(defaultCurrency),
		validate:        auth.NewValidator(),
		logger:          logger,
	}
}

// RegisterRoutes mounts the protected payment routes on r.
// The webhook is registered separately because it is not bearer-authenticated.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleCreatePayment())
	r.Post("/customers", h.HandleCreateCustomer())
	r.Get("/{id}", h.HandleGetPayment())
	r.Post("/{id}/refund", h.HandleRefund())
}

// HandleCreatePayment godoc
// @Summary Create a payment intent
// @Description Creates a payment intent with the processor and returns its client secret.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payment body payments.CreatePaymentRequest true "Amount in minor units, optional currency and metadata"
// @Success 200 {object} payments.CreatePaymentResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 502 {object} apperror.ErrorResponse
// @Router /payment [post]
func (h *Handlers) HandleCreatePayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req CreatePaymentRequest
		if err := auth.DecodeJSON(w, r, h.validate, &req); err != nil {
			auth.WriteError(w, r, err)
			return
		}

		currency := strings.ToLower(req.Currency)
		if currency == "" {
			currency = h.defaultCurrency
		}
		metadata := make(map[string]string, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		metadata[metadataUserID] = userID

		intent, err := h.processor.CreatePaymentIntent(r.Context(), IntentParams{
			Amount:   req.Amount,
			Currency: currency,
			Metadata: metadata,
		})
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}

		h.logger.InfoContext(r.Context(), "payment intent created",
			slog.String("user_id", userID),
			slog.String("payment_intent_id", intent.ID),
			slog.Int64("amount", req.Amount),
			slog.String("currency", currency),
		)
		auth.WriteJSON(w, http.StatusOK, CreatePaymentResponse{
			ClientSecret:    intent.ClientSecret,
			PaymentIntentID: intent.ID,
		})
	}
}

// HandleGetPayment godoc
// @Summary Get a payment intent
// @Description Returns the status of a payment intent created by the caller.
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment intent id"
// @Success 200 {object} payments.Intent
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Failure 502 {object} apperror.ErrorResponse
// @Router /payment/{id} [get]
func (h *Handlers) HandleGetPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		intent, err := h.ownedIntent(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, intent)
	}
}

// HandleRefund godoc
// @Summary Refund a payment
// @Description Refunds a payment intent created by the caller, fully or partially.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment intent id"
// @Param refund body payments.RefundRequest false "Amount to refund in minor units"
// @Success 200 {object} payments.Refund
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Failure 502 {object} apperror.ErrorResponse
// @Router /payment/{id}/refund [post]
func (h *Handlers) HandleRefund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req RefundRequest
		if r.ContentLength != 0 {
			if err := auth.DecodeJSON(w, r, h.validate, &req); err != nil {
				auth.WriteError(w, r, err)
				return
			}
		}

		intent, err := h.ownedIntent(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		if req.Amount > intent.Amount {
			auth.WriteError(w, r, apperror.NewValidationError("amount: must not exceed the payment amount", nil))
			return
		}

		refund, err := h.processor.RefundPaymentIntent(r.Context(), intent.ID, req.Amount)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		h.logger.InfoContext(r.Context(), "payment refunded",
			slog.String("user_id", userID),
			slog.String("payment_intent_id", intent.ID),
			slog.String("refund_id", refund.ID),
		)
		auth.WriteJSON(w, http.StatusOK, refund)
	}
}

// HandleCreateCustomer godoc
// @Summary Create a processor customer
// @Description Creates a customer record at the processor for the caller.
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} payments.CustomerResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Failure 502 {object} apperror.ErrorResponse
// @Router /payment/customers [post]
func (h *Handlers) HandleCreateCustomer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		user, err := h.users.FindByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				auth.WriteError(w, r, apperror.NewNotFoundError("user not found", err))
				return
			}
			auth.WriteError(w, r, apperror.NewStoreUnavailableError("server error", err))
			return
		}

		customerID, err := h.processor.CreateCustomer(r.Context(), user.Email, user.Name)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, CustomerResponse{CustomerID: customerID})
	}
}

// HandleWebhook godoc
// @Summary Processor webhook
// @Description Receives signed processor events and re-broadcasts them as payment.<type>.
// @Tags payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Webhook signature"
// @Success 200 {object} payments.WebhookResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Router /payment/webhook [post]
func (h *Handlers) HandleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			auth.WriteError(w, r, apperror.NewValidationError("invalid webhook payload", err))
			return
		}

		event, err := h.processor.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}

		h.logger.InfoContext(r.Context(), "payment webhook received",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
		)
		if h.broadcaster != nil {
			if _, err := h.broadcaster.Broadcast(r.Context(), realtime.PaymentEventPrefix+event.Type, event); err != nil {
				h.logger.WarnContext(r.Context(), "failed to broadcast payment event",
					slog.String("event_id", event.ID),
					slog.Any("error", err),
				)
			}
		}
		auth.WriteJSON(w, http.StatusOK, WebhookResponse{Received: true})
	}
}

// ownedIntent fetches an intent and checks that userID created it.
func (h *Handlers) ownedIntent(ctx context.Context, userID, id string) (*Intent, error) {
	if id == "" {
		return nil, apperror.NewValidationError("id: is required", nil)
	}
	intent, err := h.processor.GetPaymentIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.Metadata[metadataUserID] != userID {
		return nil, apperror.NewForbiddenError("payment belongs to another user", nil)
	}
	return intent, nil
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		auth.WriteError(w, r, apperror.NewUnauthenticatedError("no token, authorization denied", nil))
	}
	return userID, ok
}
