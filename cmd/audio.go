package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/model-catalog/internal/audio"
)

func newAudioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audio",
		Short: "Serves the configured audio file",
		Long: `Starts the audio server. GET /audio returns the whole file with range
support; GET /stream_audio sends it as a chunked stream.`,
		Args: cobra.NoArgs,
		RunE: runAudioCommand,
	}
}

func runAudioCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	if err := cfg.ValidateAudio(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := appInstance.Logger().Named("audio")
	srv, err := audio.NewServer(audio.Config{
		Path:        cfg.Audio.Path,
		ContentType: cfg.Audio.ContentType,
		ChunkSize:   cfg.Audio.ChunkSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("init audio server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runHTTPServer(ctx, cfg.Audio.Port, srv.Handler(), logger)
}
