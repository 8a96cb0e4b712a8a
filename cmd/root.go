package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/app"
	"github.com/JakeFAU/model-catalog/internal/config"
	"github.com/JakeFAU/model-catalog/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp builds the application container. It's a variable so tests can
// swap in a container without touching real logging sinks.
var newApp = func(cfgPath string) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.New(cfg, logger), nil
}

// newRootCmd returns the root command and a func that closes whatever
// application container the command opened.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile string
		opened  *app.App
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Model catalog services: query API, audio server and hub loader.",
		Long: `catalog serves the model and hardware catalog over HTTP, streams a local
audio file, and loads model metadata from the model hub into the catalog.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opened = appInstance
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAudioCmd())
	cmd.AddCommand(newLoadCmd())

	closeApp := func() {
		if opened != nil {
			opened.Close()
		}
	}
	return cmd, closeApp
}

// run executes root and closes the application container whether or not
// the command failed. PersistentPostRun is skipped when RunE errors.
func run(ctx context.Context, root *cobra.Command, closeApp func()) error {
	defer closeApp()
	return root.ExecuteContext(ctx) //nolint:wrapcheck // cobra errors are already descriptive
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. Errors raised before the logger exists
// go to stderr.
func Execute() {
	root, closeApp := newRootCmd()
	if err := run(context.Background(), root, closeApp); err != nil {
		if logger := zap.L(); logger.Core().Enabled(zap.FatalLevel) {
			logger.Fatal("Command execution failed", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		os.Exit(1)
	}
}
