package cmd

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"video-pipeline/config"
	server2 "video-pipeline/server"
	"video-pipeline/service"
)

func ingest(config *config.Config) *cobra.Command {
	var req service.IngestRequest
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "store an upload and create its video record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.File = args[0]
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				video, err := app.Videos.Ingest(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), video.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "video title")
	cmd.Flags().StringVar(&req.Description, "description", "", "video description")
	cmd.Flags().StringVar(&req.Category, "category", "", "video category")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func deleteVideo(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "delete a video record and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid video id %q: %w", args[0], err)
			}
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				return app.Videos.Delete(ctx, id)
			})
		},
	}
}

func migrate(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				if err := app.Repo.Migrate(ctx); err != nil {
					return err
				}
				zerolog.Ctx(ctx).Info().Msg("schema migrated")
				return nil
			})
		},
	}
}
