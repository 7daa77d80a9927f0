package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	srv "github.com/mohammad-safakhou/mascot/internal/server"
)

func serveCMD(load loadFunc) *cobra.Command {
	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if serveAddr == "" {
				serveAddr = os.Getenv("PORT")
				if serveAddr != "" {
					serveAddr = ":" + serveAddr
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, cfg, serveAddr, logger)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address or $PORT)")
	return serve
}
