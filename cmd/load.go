package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/clock/system"
	"github.com/JakeFAU/model-catalog/internal/config"
	"github.com/JakeFAU/model-catalog/internal/hub"
	"github.com/JakeFAU/model-catalog/internal/id/uuid"
	"github.com/JakeFAU/model-catalog/internal/loader"
)

type loadFlags struct {
	file   string
	output string
}

func newLoadCmd() *cobra.Command {
	flags := &loadFlags{}
	cmd := &cobra.Command{
		Use:   "load [model-url...]",
		Short: "Loads model metadata from the model hub into the catalog",
		Long: `Fetches metadata and README text for each target model, writes a CSV
report, and upserts every fetched model into the catalog. Targets come from
the arguments, from --file (one per line), or from loader.targets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadCommand(cmd, args, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "file listing one model URL or ID per line")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "CSV report path (overrides loader.output)")
	return cmd
}

func runLoadCommand(cmd *cobra.Command, args []string, flags *loadFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	if flags.output != "" {
		cfg.Loader.Output = flags.output
	}
	if err := cfg.ValidateLoad(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	targets, err := resolveTargets(args, flags.file, cfg.Loader)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no targets to load")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := appInstance.Logger()
	store, err := appInstance.CatalogStore(ctx)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped by the container
	}
	blobs, err := appInstance.BlobStore(ctx)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped by the container
	}
	pub, err := appInstance.Publisher(ctx)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped by the container
	}

	fetcher, err := hub.New(hub.Config{
		APIBaseURL:        cfg.Hub.APIBaseURL,
		RawBaseURL:        cfg.Hub.RawBaseURL,
		Token:             cfg.Hub.Token,
		UserAgent:         cfg.Hub.UserAgent,
		Timeout:           cfg.HubTimeout(),
		RequestsPerSecond: cfg.Hub.RequestsPerSecond,
		Burst:             cfg.Hub.Burst,
		MaxAttempts:       cfg.Hub.MaxAttempts,
	}, logger.Named("hub"))
	if err != nil {
		return fmt.Errorf("init hub client: %w", err)
	}

	ld, err := loader.New(loader.Deps{
		Fetcher:   fetcher,
		Store:     store,
		Blobs:     blobs,
		Publisher: pub,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Logger:    logger.Named("loader"),
	}, loader.Options{
		Topic:             cfg.PubSub.TopicName,
		ReportPrefix:      cfg.Storage.Prefix,
		ReportContentType: cfg.Storage.ContentType,
		ReadmeMaxChars:    cfg.Loader.ReadmeMaxChars,
	})
	if err != nil {
		return fmt.Errorf("init loader: %w", err)
	}

	out, err := os.Create(cfg.Loader.Output)
	if err != nil {
		return fmt.Errorf("create report %s: %w", cfg.Loader.Output, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			logger.Warn("Failed to close report", zap.String("path", cfg.Loader.Output), zap.Error(cerr))
		}
	}()

	sum, err := ld.Run(ctx, targets, out)
	if err != nil {
		return fmt.Errorf("run loader: %w", err)
	}
	logger.Info("Load command finished",
		zap.String("run_id", sum.RunID),
		zap.String("output", cfg.Loader.Output),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
	)
	return nil
}

// resolveTargets prefers arguments, then --file, then configured targets.
func resolveTargets(args []string, file string, cfg config.LoaderConfig) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open targets file: %w", err)
		}
		defer f.Close() //nolint:errcheck // read-only
		return loader.ReadTargets(f)
	}
	return cfg.Targets, nil
}
