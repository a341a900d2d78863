package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/templatemail/internal/config"
	"github.com/teemow/templatemail/internal/instrumentation"
	"github.com/teemow/templatemail/internal/logging"
	"github.com/teemow/templatemail/internal/server"
)

// app bundles what a command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	sc       *server.ServerContext
}

type appOptions struct {
	// instrument enables the OpenTelemetry provider. One-shot commands run
	// without it; audit logging stays on either way.
	instrument bool

	// overrides applies command specific flags to the loaded configuration.
	overrides func(*config.Config)

	// serverOptions are passed through to server.NewServerContext.
	serverOptions []server.Option
}

// newLogger writes to stderr so stdout stays free for command output and
// the MCP stdio transport.
func newLogger(w io.Writer) *slog.Logger {
	level := "info"
	if debugMode {
		level = "debug"
	}
	return logging.New(w, logging.Options{Level: level, JSON: logJSON})
}

// loadConfig reads .env and the environment, then applies global flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("templates-dir") {
		cfg.TemplatesDir = templatesDir
	}
	return cfg, nil
}

func newApp(ctx context.Context, cmd *cobra.Command, opts appOptions) (*app, error) {
	logger := newLogger(os.Stderr)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.overrides != nil {
		opts.overrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if !opts.instrument {
		instrConfig.Enabled = false
	}
	if err := instrConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(provider.Metrics()),
		server.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)),
	}
	serverOpts = append(serverOpts, opts.serverOptions...)

	sc, err := server.NewServerContext(ctx, cfg, serverOpts...)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}

	return &app{cfg: cfg, logger: logger, provider: provider, sc: sc}, nil
}

// close releases the server context and flushes telemetry.
func (a *app) close(ctx context.Context) {
	if err := a.sc.Shutdown(); err != nil {
		a.logger.Warn("error during server context shutdown", logging.Err(err))
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn("error during instrumentation shutdown", logging.Err(err))
	}
}
