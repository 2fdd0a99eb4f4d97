// Package config provides configuration management for the storefront application.
// It loads settings from environment variables once at startup, applies defaults,
// validates them and reports every problem together in a single error, so a
// misconfigured deployment fails fast with the full list of things to fix.
// Each section is processed separately with envconfig so variable names stay flat
// (`JWT_SECRET`, `PORT`, `STRIPE_SECRET_KEY`, ...).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

// MinJWTSecretLength is the minimum accepted length of JWT_SECRET in bytes.
const MinJWTSecretLength = 32

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"5000"`
	Env                string        `envconfig:"APP_ENV" default:"development"`
	ReadTimeout        time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout        time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	AuthRateLimit      int           `envconfig:"AUTH_RATE_LIMIT" default:"20"` // requests per minute per IP
	LogFormat          string        `envconfig:"LOG_FORMAT" default:"text"`
	// Only enable behind a proxy that overwrites X-Forwarded-For and X-Real-IP.
	TrustProxyHeaders bool `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
}

// IsProduction reports whether the server runs with APP_ENV=production.
func (c ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL           string `envconfig:"DATABASE_URL"`
	MaxConns      int    `envconfig:"DB_MAX_CONNS" default:"10"`
	RunMigrations bool   `envconfig:"DB_RUN_MIGRATIONS" default:"true"`
}

// AuthConfig holds authentication-related configuration.
// JWTSecret is read-only after startup and must never be logged.
type AuthConfig struct {
	JWTSecret  string        `envconfig:"JWT_SECRET"`
	TokenTTL   time.Duration `envconfig:"JWT_TOKEN_TTL" default:"24h"`
	Issuer     string        `envconfig:"JWT_ISSUER" default:"storefront"`
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"10"`
}

// StripeConfig holds payment processor credentials.
type StripeConfig struct {
	SecretKey       string `envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	DefaultCurrency string `envconfig:"STRIPE_DEFAULT_CURRENCY" default:"usd"`
}

// Enabled reports whether payments are configured.
func (c StripeConfig) Enabled() bool {
	return c.SecretKey != ""
}

// StorageConfig holds S3-compatible object storage settings for uploads.
type StorageConfig struct {
	Bucket         string `envconfig:"S3_BUCKET"`
	Region         string `envconfig:"S3_REGION" default:"us-east-1"`
	Endpoint       string `envconfig:"S3_ENDPOINT"`
	AccessKey      string `envconfig:"S3_ACCESS_KEY"`
	SecretKey      string `envconfig:"S3_SECRET_KEY"`
	PublicBaseURL  string `envconfig:"S3_PUBLIC_BASE_URL"`
	Folder         string `envconfig:"UPLOAD_FOLDER" default:"my_project"`
	MaxUploadBytes int64  `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`
}

// Enabled reports whether uploads are configured.
func (c StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string `envconfig:"EMAIL_HOST"`
	Port     int    `envconfig:"EMAIL_PORT" default:"587"`
	User     string `envconfig:"EMAIL_USER"`
	Password string `envconfig:"EMAIL_PASSWORD"`
	From     string `envconfig:"EMAIL_FROM"`
	Workers  int    `envconfig:"MAIL_WORKERS" default:"2"`
}

// Enabled reports whether an SMTP server is configured.
func (c MailConfig) Enabled() bool {
	return c.Host != ""
}

// Sender returns the From address, falling back to the SMTP user.
func (c MailConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.User
}

// RealtimeConfig holds settings for the event broadcast channel.
type RealtimeConfig struct {
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"storefront:events"`
	ClientBuffer int    `envconfig:"SSE_CLIENT_BUFFER" default:"32"`
}

// AppConfig is the top-level configuration structure for the application.
type AppConfig struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Storage  StorageConfig
	Mail     MailConfig
	Realtime RealtimeConfig
}

// Options changes what LoadConfig requires.
type Options struct {
	// InMemoryStore skips the DATABASE_URL requirement.
	InMemoryStore bool
}

// LoadConfig creates and returns an AppConfig by reading and validating environment variables.
// It collects all errors encountered during loading and returns a single error if any exist.
func LoadConfig(opts Options) (*AppConfig, error) {
	var errors []string
	cfg := &AppConfig{}

	sections := []struct {
		name   string
		target any
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"auth", &cfg.Auth},
		{"stripe", &cfg.Stripe},
		{"storage", &cfg.Storage},
		{"mail", &cfg.Mail},
		{"realtime", &cfg.Realtime},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", s.name, err))
		}
	}

	errors = append(errors, cfg.validate(opts)...)

	if len(errors) > 0 {
		return nil, fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}
	return cfg, nil
}

// LoadDatabaseConfig reads only the database section. The migrate command
// uses it so schema changes do not require the server's secrets.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("database: %w", err)
	}
	if cfg.URL == "" {
		return cfg, fmt.Errorf("missing required environment variable: DATABASE_URL")
	}
	return cfg, nil
}

// validate checks cross-field rules and clamps values that have safe bounds.
func (cfg *AppConfig) validate(opts Options) []string {
	var errors []string

	if cfg.Auth.JWTSecret == "" {
		errors = append(errors, "missing required environment variable: JWT_SECRET")
	} else if len(cfg.Auth.JWTSecret) < MinJWTSecretLength {
		errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least %d bytes", MinJWTSecretLength))
	}
	if cfg.Auth.TokenTTL <= 0 {
		errors = append(errors, fmt.Sprintf("JWT_TOKEN_TTL must be positive, got %s", cfg.Auth.TokenTTL))
	}
	cfg.Auth.BcryptCost = ClampBcryptCost(cfg.Auth.BcryptCost)

	if !opts.InMemoryStore && cfg.Database.URL == "" {
		errors = append(errors, "missing required environment variable: DATABASE_URL")
	}
	// Clamp the pool size between 2 and 100
	if cfg.Database.MaxConns < 2 {
		cfg.Database.MaxConns = 2
	}
	if cfg.Database.MaxConns > 100 {
		cfg.Database.MaxConns = 100
	}

	if cfg.Server.LogFormat != "text" && cfg.Server.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", cfg.Server.LogFormat))
	}
	if cfg.Server.AuthRateLimit <= 0 {
		errors = append(errors, "AUTH_RATE_LIMIT must be positive")
	}

	if len(cfg.Stripe.DefaultCurrency) != 3 {
		errors = append(errors, fmt.Sprintf("STRIPE_DEFAULT_CURRENCY must be a 3-letter code, got %q", cfg.Stripe.DefaultCurrency))
	}
	cfg.Stripe.DefaultCurrency = strings.ToLower(cfg.Stripe.DefaultCurrency)

	if cfg.Storage.Enabled() && cfg.Storage.MaxUploadBytes <= 0 {
		errors = append(errors, "UPLOAD_MAX_BYTES must be positive")
	}
	if cfg.Mail.Enabled() && cfg.Mail.Sender() == "" {
		errors = append(errors, "EMAIL_FROM or EMAIL_USER is required when EMAIL_HOST is set")
	}
	if cfg.Mail.Workers < 1 {
		cfg.Mail.Workers = 1
	}
	if cfg.Realtime.ClientBuffer < 1 {
		cfg.Realtime.ClientBuffer = 1
	}

	return errors
}

// ClampBcryptCost keeps the work factor inside what bcrypt accepts.
// Zero means "use the library default".
func ClampBcryptCost(cost int) int {
	switch {
	case cost == 0:
		return bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		return bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		return bcrypt.MaxCost
	default:
		return cost
	}
}
