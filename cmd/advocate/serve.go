package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/sweetpotato0/ai-advocate/middleware/limiter"
	"github.com/sweetpotato0/ai-advocate/server"
)

func registerer(enabled bool) prometheus.Registerer {
	if !enabled {
		return nil
	}
	return prometheus.DefaultRegisterer
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx := cmd.Context()
			c, cleanup, err := a.start(ctx, true)
			if err != nil {
				return err
			}
			defer cleanup()

			gin.SetMode(a.cfg.Server.Mode)
			srv, err := server.New(c.coordinator, c.store,
				server.WithHealthCheck(c.store),
				server.WithRateLimiter(limiter.NewRateLimiter(a.cfg.Server.RateLimit, a.cfg.Server.Burst)),
				server.WithServiceName(a.cfg.Telemetry.ServiceName),
			)
			if err != nil {
				return err
			}
			return srv.Run(ctx, a.cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}
