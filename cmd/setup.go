package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/modpilot/internal/backend"
	"github.com/modpilot/internal/config"
	"github.com/modpilot/internal/database"
	"github.com/modpilot/internal/history"
	"github.com/modpilot/internal/logging"
)

// loadConfig loads and validates the configuration named by the global
// --config flag and configures logging from it
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.General.LogLevel
	if c.Bool("verbose") {
		level = "debug"
	}
	if err := logging.Setup(level, cfg.General.LogPretty); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newBackendClient(cfg *config.Config) (*backend.Client, error) {
	client, err := backend.NewClient(cfg.BackendConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, nil
}

// openHistory returns the Postgres history when a database is configured and
// an in-memory one otherwise. The returned func releases the connection.
func openHistory(ctx context.Context, cfg *config.Config) (history.Store, func(), error) {
	if cfg.Database.URL == "" {
		return history.NewMemoryStore(0), func() {}, nil
	}

	db, err := database.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	log.Info().Msg("Submission history stored in Postgres")
	return history.NewPostgresStore(db), func() { db.Close() }, nil
}
