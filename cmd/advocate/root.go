package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/sweetpotato0/ai-advocate/config"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
	"github.com/sweetpotato0/ai-advocate/pkg/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	configPath string
	envFiles   []string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "advocate",
		Short:         "An AI legal advocate that gathers the facts of a legal problem and researches the law",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(
		newServeCmd(a),
		newChatCmd(a),
		newRankCmd(a),
		newMCPCmd(a),
	)
	return root
}

// load reads configuration and installs the process logger. Logs go to
// stderr so stdout stays free for chat output and the MCP stdio transport.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath, a.envFiles...)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	logging.SetLogger(a.logger)
	return nil
}

func (a *app) initTelemetry(ctx context.Context) (telemetry.ShutdownFunc, error) {
	return telemetry.Init(ctx, telemetry.Config{
		ServiceName:    a.cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    a.cfg.Telemetry.Environment,
		Disable:        a.cfg.Telemetry.Disable,
		Endpoint:       a.cfg.Telemetry.Endpoint,
		SampleRatio:    a.cfg.Telemetry.SampleRatio,
		Logger:         logging.WithComponent("telemetry"),
	})
}

// start validates configuration, starts tracing and wires the pipeline.
// The returned cleanup must be called once the command finishes.
func (a *app) start(ctx context.Context, withMetrics bool) (*components, func(), error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logConfig(a.logger, a.cfg)

	shutdown, err := a.initTelemetry(ctx)
	if err != nil {
		return nil, nil, err
	}

	reg := registerer(withMetrics)
	c, err := build(ctx, a.cfg, reg)
	if err != nil {
		shutdown(context.Background())
		return nil, nil, err
	}
	cleanup := func() {
		if err := c.Close(); err != nil {
			a.logger.Warn("failed to close clients", "error", err)
		}
		if err := shutdown(context.Background()); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
	return c, cleanup, nil
}
