package realtime

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/user/storefront-go/auth"
)

// Event namespaces published by the server itself. Clients may not use them
// through the notify endpoint.
const (
	UserEventPrefix    = "user."
	PaymentEventPrefix = "payment."
)

// EventUserSignup is broadcast after every successful signup.
const EventUserSignup = UserEventPrefix + "signup"

// IsReservedEvent reports whether name belongs to a server-only namespace.
func IsReservedEvent(name string) bool {
	return strings.HasPrefix(name, UserEventPrefix) || strings.HasPrefix(name, PaymentEventPrefix)
}

const announceTimeout = 2 * time.Second

// SignupAnnouncement is the payload of EventUserSignup. It carries no email.
type SignupAnnouncement struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SignupAnnouncer returns an auth.SignupHook that broadcasts new users.
// The broadcast runs in its own goroutine; failures are only logged.
func SignupAnnouncer(b Broadcaster, logger *slog.Logger) auth.SignupHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, user auth.PublicUser) {
		ctx = context.WithoutCancel(ctx)
		announcement := SignupAnnouncement{ID: user.ID, Name: user.Name}

		go func() {
			ctx, cancel := context.WithTimeout(ctx, announceTimeout)
			defer cancel()

			if _, err := b.Broadcast(ctx, EventUserSignup, announcement); err != nil {
				logger.Warn("failed to announce signup", slog.String("user_id", user.ID), slog.Any("error", err))
			}
		}()
	}
}
