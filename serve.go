package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/user/storefront-go/auth"
	"github.com/user/storefront-go/background"
	"github.com/user/storefront-go/config"
	"github.com/user/storefront-go/db"
	"github.com/user/storefront-go/logging"
	"github.com/user/storefront-go/mail"
	"github.com/user/storefront-go/metrics"
	"github.com/user/storefront-go/payments"
	"github.com/user/storefront-go/realtime"
	"github.com/user/storefront-go/server"
	"github.com/user/storefront-go/uploads"
	"github.com/user/storefront-go/users"
)

const mailQueueSize = 256

func serve(ctx context.Context, inMemory bool) error {
	cfg, err := config.LoadConfig(config.Options{InMemoryStore: inMemory})
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Server.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Credential store
	var (
		store interface {
			auth.CredentialStore
			users.ProfileStore
		}
		health func(context.Context) error
	)
	if inMemory {
		logger.Warn("using in-memory user store; data is lost on restart")
		store = auth.NewMemoryStore()
	} else {
		if cfg.Database.RunMigrations {
			if err := db.RunMigrations(cfg.Database.URL, logger); err != nil {
				return err
			}
		}
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = auth.NewPostgresStore(pool)
		health = pool.Ping
	}

	m := metrics.New()

	// Realtime: the local hub, fanned out across instances through Redis when configured.
	hub := realtime.NewHub(cfg.Realtime.ClientBuffer, logger)
	defer hub.Close()
	m.RegisterSSEClients(hub.ClientCount)

	var broadcaster realtime.Broadcaster = hub
	if cfg.Realtime.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Realtime.RedisAddr})
		defer rdb.Close()

		relay := realtime.NewRedisRelay(rdb, cfg.Realtime.RedisChannel, hub, logger)
		if err := relay.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := relay.Close(); err != nil {
				logger.Warn("failed to close redis relay", slog.Any("error", err))
			}
		}()
		broadcaster = relay
		logger.Info("realtime events relayed through redis", slog.String("channel", cfg.Realtime.RedisChannel))
	}

	// Mail
	var sender mail.Sender
	if cfg.Mail.Enabled() {
		smtp, err := mail.NewSMTPSender(cfg.Mail)
		if err != nil {
			return err
		}
		sender = smtp
	} else {
		logger.Info("EMAIL_HOST not set; outgoing mail is logged only")
		sender = mail.NewLogSender(logger)
	}
	dispatcher := background.NewDispatcher(sender, cfg.Mail.Workers, mailQueueSize, logger)
	dispatcher.Start()

	// Auth and users
	authService := auth.NewAuthService(store,
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		auth.NewTokenIssuer(cfg.Auth),
		auth.WithLogger(logger),
		auth.WithOutcomeRecorder(m),
		auth.WithSignupHook(dispatcher.WelcomeHook()),
		auth.WithSignupHook(realtime.SignupAnnouncer(broadcaster, logger)),
	)

	deps := server.Deps{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Verifier: auth.NewTokenVerifier(cfg.Auth),
		Auth:     auth.NewHandlers(authService),
		Users:    users.NewUserHandlers(users.NewUserService(store)),
		Realtime: realtime.NewHandlers(hub, broadcaster, realtime.DefaultHeartbeat, logger),
		Health:   health,
	}

	if cfg.Stripe.Enabled() {
		processor := payments.NewStripeProcessor(cfg.Stripe)
		deps.Payments = payments.NewHandlers(processor, store, broadcaster, cfg.Stripe.DefaultCurrency, logger)
	} else {
		logger.Info("STRIPE_SECRET_KEY not set; payment routes disabled")
	}

	if cfg.Storage.Enabled() {
		uploader, err := uploads.NewS3Uploader(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		deps.Uploads = uploads.NewHandlers(uploader, cfg.Storage.Folder, cfg.Storage.MaxUploadBytes, logger)
	} else {
		logger.Info("S3_BUCKET not set; upload route disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	// Event streams only end when their client leaves; closing the hub ends them.
	srv.RegisterOnShutdown(hub.Close)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr), slog.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	logger.Info("server stopped",
		slog.Int64("mail_sent", dispatcher.Sent()),
		slog.Int64("mail_failed", dispatcher.Failed()),
		slog.Duration("shutdown_budget", cfg.Server.ShutdownTimeout),
	)
	return errors.Join(errs...)
}
