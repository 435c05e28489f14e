package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/modpilot/internal/api"
	"github.com/modpilot/internal/gitlab"
	"github.com/modpilot/internal/pending"
	"github.com/modpilot/internal/search"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the pending changes API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	hist, closeHistory, err := openHistory(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open submission history: %w", err)
	}
	defer closeHistory()

	cache := search.NewProjectCache()
	store := pending.NewStore(pending.WithNameResolver(cache))

	deps := api.Deps{
		Store:       store,
		Coordinator: pending.NewCoordinator(store, client, pending.WithOutcomeRecorder(hist)),
		Searcher:    client,
		Cache:       cache,
		History:     hist,
	}

	if cfg.GitLabEnabled() {
		directory, err := gitlab.New(cfg.GitLab)
		if err != nil {
			return fmt.Errorf("failed to create gitlab directory: %w", err)
		}
		deps.GitLab = directory
	} else {
		log.Info().Msg("GitLab not configured, branch listing disabled")
	}

	fmt.Printf("Starting modpilot API server on port %d...\n", port)
	return api.NewServer(port, deps).Start()
}
