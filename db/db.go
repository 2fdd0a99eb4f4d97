// Package db provides database connectivity and schema migrations for the storefront.
// It owns the pgx connection pool handed to the stores and the embedded SQL
// migrations applied at startup or through the `migrate` command.
package db

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	// Registers the pgx5:// database driver.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/storefront-go/apperror"
	"github.com/user/storefront-go/config"
)

const (
	maxConnIdleTime = 10 * time.Minute
	maxConnLifetime = 30 * time.Minute
	connectTimeout  = 10 * time.Second
	pingTimeout     = 5 * time.Second
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewPool creates the application connection pool and verifies it with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, pcfg)
	if err != nil {
		return nil, apperror.NewStoreUnavailableError("failed to create connection pool", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, apperror.NewStoreUnavailableError("failed to connect to the database", err)
	}

	return pool, nil
}

func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg.URL == "" {
		return nil, apperror.NewConfigError("DATABASE_URL is empty", nil)
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		// The DSN may carry a password, so it stays out of the message.
		return nil, apperror.NewConfigError("invalid DATABASE_URL", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	pcfg.MaxConnIdleTime = maxConnIdleTime
	pcfg.MaxConnLifetime = maxConnLifetime
	return pcfg, nil
}

// RunMigrations applies every pending migration.
func RunMigrations(dsn string, logger *slog.Logger) error {
	return withMigrator(dsn, logger, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return apperror.NewMigrationError("failed to run migrations", err)
		}
		return nil
	})
}

// RollbackMigrations reverts the most recent migration.
func RollbackMigrations(dsn string, logger *slog.Logger) error {
	return withMigrator(dsn, logger, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return apperror.NewMigrationError("failed to roll back migration", err)
		}
		return nil
	})
}

// MigrationVersion reports the applied schema version; zero means none.
func MigrationVersion(dsn string, logger *slog.Logger) (version uint, dirty bool, err error) {
	err = withMigrator(dsn, logger, func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		if verr != nil {
			return apperror.NewMigrationError("failed to read migration version", verr)
		}
		return nil
	})
	return version, dirty, err
}

func withMigrator(dsn string, logger *slog.Logger, fn func(*migrate.Migrate) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return apperror.NewMigrationError("failed to open embedded migrations", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, MigrateURL(dsn))
	if err != nil {
		_ = source.Close()
		return apperror.NewMigrationError("failed to create migrator", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("error closing migration source", slog.Any("error", srcErr))
		}
		if dbErr != nil {
			logger.Warn("error closing migration database", slog.Any("error", dbErr))
		}
	}()

	return fn(m)
}

// MigrateURL rewrites a postgres:// DSN to the pgx5:// scheme the
// migration driver registers under.
func MigrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return dsn
}
