// Package server assembles the HTTP router: global middleware, the API
// route tree and the operational endpoints.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/unrolled/secure"

	"github.com/user/storefront-go/auth"
	"github.com/user/storefront-go/config"
	"github.com/user/storefront-go/metrics"
	"github.com/user/storefront-go/payments"
	"github.com/user/storefront-go/realtime"
	"github.com/user/storefront-go/uploads"
	"github.com/user/storefront-go/users"

	// Registers the API description served under /swagger.
	_ "github.com/user/storefront-go/docs"
)

const healthCheckTimeout = 2 * time.Second

// Deps are the handlers and collaborators the router mounts.
// Payments and Uploads are optional; their routes exist only when set.
type Deps struct {
	Config   *config.AppConfig
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Verifier *auth.TokenVerifier

	Auth     *auth.Handlers
	Users    *users.UserHandlers
	Realtime *realtime.Handlers
	Payments *payments.Handlers
	Uploads  *uploads.Handlers

	// Health reports whether the backing store is reachable. Nil means always healthy.
	Health func(ctx context.Context) error
}

// NewRouter builds the application router.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := d.Config.Server

	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Use(middleware.RequestID)
	// Rate limiting keys on RemoteAddr, so client-supplied headers must not rewrite it.
	if srv.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(accessLog(logger))
	r.Use(recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   srv.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !allowsAnyOrigin(srv.CORSAllowedOrigins),
		MaxAge:           300,
	}))
	r.Use(secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        srv.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:         31536000,
		IsDevelopment:      !srv.IsProduction(),
	}).Handler)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/healthz", healthz(d.Health))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	requireAuth := auth.JWTMiddleware(d.Verifier)

	r.Route("/api", func(r chi.Router) {
		// The event stream is long-lived and stays outside the request timeout.
		r.Get("/events", d.Realtime.HandleStream())

		r.Group(func(r chi.Router) {
			if srv.RequestTimeout > 0 {
				r.Use(middleware.Timeout(srv.RequestTimeout))
			}

			r.Route("/auth", func(r chi.Router) {
				r.Use(httprate.Limit(srv.AuthRateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(tooManyRequests),
				))
				r.Post("/signup", d.Auth.HandleSignup())
				r.Post("/login", d.Auth.HandleLogin())
			})

			r.With(requireAuth).Get("/users/me", d.Users.HandleGetUserProfile())
			r.With(requireAuth).Post("/notifications", d.Realtime.HandleNotify())

			if d.Payments != nil {
				r.Route("/payment", func(r chi.Router) {
					r.Post("/webhook", d.Payments.HandleWebhook())
					r.Group(func(r chi.Router) {
						r.Use(requireAuth)
						d.Payments.RegisterRoutes(r)
					})
				})
			}
			if d.Uploads != nil {
				r.With(requireAuth).Post("/upload", d.Uploads.HandleUpload())
			}
		})
	})

	return r
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
				auth.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		auth.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
