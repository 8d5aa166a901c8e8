package cmd

import (
	"context"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"video-pipeline/config"
	server2 "video-pipeline/server"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "video-pipeline",
		Short:         "HLS transcoding pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(worker(config))
	rootCmd.AddCommand(standalone(config))
	rootCmd.AddCommand(ingest(config))
	rootCmd.AddCommand(deleteVideo(config))
	rootCmd.AddCommand(migrate(config))
	return rootCmd
}

// withApp builds the application for one command run and closes it after.
func withApp(cfg *config.Config, run func(ctx context.Context, app *server2.App) error) error {
	ctx, cancel := server2.NewContext(cfg)
	defer cancel()

	app, err := server2.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close application")
		}
	}()

	return run(ctx, app)
}
