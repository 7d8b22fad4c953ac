package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sanonone/edgelite/internal/server"
)

var (
	httpAddr  string
	authToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("http-addr") {
			cfg.Server.HTTPAddr = httpAddr
		}
		if cmd.Flags().Changed("auth-token") {
			cfg.Server.AuthToken = authToken
		}

		eng, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := eng.Close(); err != nil {
				slog.Error("Engine close failed", "error", err)
			}
		}()

		srv, err := server.NewServer(eng, cfg.Server.HTTPAddr, cfg.Server.AuthToken, cfg.Server.SessionTTL)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Run)
		g.Go(func() error {
			<-gctx.Done()
			srv.Shutdown()
			return nil
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", "", "listen address of the HTTP API, e.g. :9091 (overrides config)")
	serveCmd.Flags().StringVar(&authToken, "auth-token", "", "bearer token required by the API (overrides config)")
}
