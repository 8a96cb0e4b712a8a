package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/model-catalog/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the model and hardware catalog API",
		Long: `Starts the read-only catalog API. Models and hardware are read from
Postgres, or from an empty in-memory store when database.backend=memory.`,
		Args: cobra.NoArgs,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := appInstance.CatalogStore(ctx)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped by the container
	}

	logger := appInstance.Logger().Named("api")
	srv := api.NewServer(store, cfg, logger)
	return runHTTPServer(ctx, cfg.Server.Port, srv.Handler(), logger)
}
