package main

import (
	"github.com/spf13/cobra"

	"dbxagent/internal/server"
)

func newServeCommand(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the supervisor over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctn, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer closeContainer(ctn)

			cfg := ctn.Config.Server
			if addr != "" {
				cfg.Addr = addr
			}
			opts := []server.Option{
				server.WithGatherer(ctn.Registry),
				server.WithLogger(ctn.Logger),
			}
			if ctn.Genie != nil {
				opts = append(opts, server.WithGenie(ctn.Genie))
			}
			srv, err := server.New(server.Config{
				Addr:            cfg.Addr,
				AllowedOrigins:  cfg.AllowedOrigins,
				ShutdownTimeout: cfg.ShutdownTimeout,
				MaxBodyBytes:    cfg.MaxBodyBytes,
				GenieMaxRows:    ctn.Config.Genie.MaxRows,
			}, ctn.Supervisor, opts...)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
