package cmd

import (
	"github.com/spf13/cobra"
	"video-pipeline/config"
	server2 "video-pipeline/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the media gateway http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(config, server2.RunHttp)
		},
	}
}

func worker(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "start the outbox relay and transcode workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(config, server2.RunWorker)
		},
	}
}

func standalone(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "standalone",
		Short: "run the http server and the workers in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(config, server2.RunStandalone)
		},
	}
}
