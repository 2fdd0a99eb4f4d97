package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/user/storefront-go/apperror"
	"github.com/user/storefront-go/auth"
)

// DefaultHeartbeat is how often an idle stream gets a comment line.
const DefaultHeartbeat = 25 * time.Second

// NotificationRequest is the body of POST /api/notifications.
type NotificationRequest struct {
	Event   string          `json:"event" validate:"required,max=64" example:"order.shipped"`
	Payload json.RawMessage `json:"payload" swaggertype:"object"`
}

// Notification is the payload clients receive for a user-sent notification.
type Notification struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NotificationResponse reports how many receivers the event was handed to.
type NotificationResponse struct {
	Delivered int `json:"delivered"`
}

// Handlers serves the event stream and the notification endpoint.
type Handlers struct {
	hub         *Hub
	broadcaster Broadcaster
	validate    *validator.Validate
	heartbeat   time.Duration
	logger      *slog.Logger
}

// NewHandlers creates the handlers. Streams are served from hub; notifications
// go through broadcaster, which is the hub itself or a RedisRelay in front of it.
func NewHandlers(hub *Hub, broadcaster Broadcaster, heartbeat time.Duration, logger *slog.Logger) *Handlers {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		hub:         hub,
		broadcaster: broadcaster,
		validate:    auth.NewValidator(),
		heartbeat:   heartbeat,
		logger:      logger,
	}
}

// HandleStream godoc
// @Summary Subscribe to broadcast events
// @Description Streams broadcast events as Server-Sent Events until the client disconnects.
// @Tags realtime
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /events [get]
func (h *Handlers) HandleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		// The stream outlives the server's write timeout.
		if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Warn("failed to clear write deadline", slog.Any("error", err))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		clientID, events := h.hub.NewClient()
		defer h.hub.RemoveClient(clientID)

		if _, err := io.WriteString(w, "retry: 3000\n: connected\n\n"); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			h.logger.Error("event stream requires a flushable response writer", slog.Any("error", err))
			return
		}

		h.stream(r.Context(), w, rc, events)
	}
}

func (h *Handlers) stream(ctx context.Context, w io.Writer, rc *http.ResponseController, events <-chan SSEEvent) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if _, err := evt.WriteTo(w); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// HandleNotify godoc
// @Summary Broadcast a notification
// @Description Broadcasts an event to every connected client on behalf of the caller. Delivery is best-effort.
// @Tags realtime
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param notification body realtime.NotificationRequest true "Event name and payload"
// @Success 202 {object} realtime.NotificationResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 502 {object} apperror.ErrorResponse
// @Router /notifications [post]
func (h *Handlers) HandleNotify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			auth.WriteError(w, r, apperror.NewUnauthenticatedError("no token, authorization denied", nil))
			return
		}

		var req NotificationRequest
		if err := auth.DecodeJSON(w, r, h.validate, &req); err != nil {
			auth.WriteError(w, r, err)
			return
		}
		if err := ValidateEventName(req.Event); err != nil {
			auth.WriteError(w, r, apperror.NewValidationError("event: is invalid", err))
			return
		}
		if IsReservedEvent(req.Event) {
			auth.WriteError(w, r, apperror.NewValidationError("event: uses a reserved prefix", nil))
			return
		}

		delivered, err := h.broadcaster.Broadcast(r.Context(), req.Event, Notification{From: userID, Payload: req.Payload})
		if err != nil {
			auth.WriteError(w, r, apperror.NewExternalServiceError("broadcast failed", err))
			return
		}

		auth.WriteJSON(w, http.StatusAccepted, NotificationResponse{Delivered: delivered})
	}
}
