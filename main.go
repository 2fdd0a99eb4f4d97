// Command storefront runs the storefront API server and its schema migrations.
//
// @title Storefront API
// @version 1.0
// @description Authentication, payments, uploads and live notifications for the storefront.
// @contact.name API Support
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/user/storefront-go/config"
	"github.com/user/storefront-go/db"
	"github.com/user/storefront-go/logging"
)

func main() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", slog.Any("error", err))
	}

	app := &cli.App{
		Name:  "storefront",
		Usage: "storefront API server",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP server",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "in-memory",
						Usage:   "keep users in memory instead of PostgreSQL",
						EnvVars: []string{"IN_MEMORY_STORE"},
					},
				},
				Action: func(c *cli.Context) error {
					return serve(c.Context, c.Bool("in-memory"))
				},
			},
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply all pending migrations",
						Action: func(c *cli.Context) error {
							return migrate(db.RunMigrations, "migrations applied")
						},
					},
					{
						Name:  "down",
						Usage: "roll back the latest migration",
						Action: func(c *cli.Context) error {
							return migrate(db.RollbackMigrations, "migration rolled back")
						},
					},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func migrate(run func(dsn string, logger *slog.Logger) error, done string) error {
	logger := logging.New(os.Getenv("LOG_FORMAT"), os.Stdout)

	cfg, err := config.LoadDatabaseConfig()
	if err != nil {
		return err
	}
	if err := run(cfg.URL, logger); err != nil {
		return err
	}

	version, dirty, err := db.MigrationVersion(cfg.URL, logger)
	if err != nil {
		return err
	}
	logger.Info(done, slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}
