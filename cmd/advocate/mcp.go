package main

import (
	"github.com/spf13/cobra"
	"github.com/sweetpotato0/ai-advocate/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ranker and the advocate as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cleanup, err := a.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := []mcp.Option{mcp.WithAdvocate(c.coordinator, c.store)}
			if c.ranker != nil {
				opts = append(opts, mcp.WithRanker(c.ranker))
			}
			srv, err := mcp.NewServer(mcp.ServerInfo{Name: a.cfg.Telemetry.ServiceName, Version: version}, opts...)
			if err != nil {
				return err
			}
			a.logger.Info("serving MCP over stdio")
			return srv.Run(cmd.Context())
		},
	}
}
