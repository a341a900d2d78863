package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/templatemail/internal/config"
	"github.com/teemow/templatemail/internal/logging"
	"github.com/teemow/templatemail/internal/server"
)

// serveOptions holds the serve flags.
type serveOptions struct {
	httpAddr       string
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		Long: `Start the local web UI for browsing, editing and sending templates.

The UI lists the .html files in the templates folder, previews the selected
template, applies AI edits with Gemini and sends the shown HTML through the
workflow webhook or Gmail.

Configuration is read from a .env file and the environment:
  GEMINI_API_KEY            required for AI edits
  TEMPLATES_DIR             templates folder (default: Templates)
  WEBHOOK_URL               workflow endpoint for the webhook channel
  GMAIL_CREDENTIALS_FILE    OAuth client file (default: credentials.json)
  GMAIL_ALWAYS_REAUTHORIZE  ask for consent on every authentication (default: true)

Flags override the environment only when set explicitly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", config.DefaultHTTPAddr, "Web UI address. Can also use HTTP_ADDR env var.")
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", false, "Enable the Prometheus metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// applyServeFlags copies explicitly set flags over the environment values.
func applyServeFlags(cmd *cobra.Command, opts serveOptions, cfg *config.Config) {
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTPAddr = opts.httpAddr
	}
	if cmd.Flags().Changed("metrics-enabled") {
		cfg.MetricsEnabled = opts.metricsEnabled
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(shutdownCtx, cmd, appOptions{
		instrument: true,
		overrides: func(cfg *config.Config) {
			applyServeFlags(cmd, opts, cfg)
		},
	})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if a.cfg.SessionSecret == config.DefaultSessionSecret {
		a.logger.Warn("SESSION_SECRET is not set, using the built-in development secret")
	}

	web, err := server.NewWebServer(a.sc, server.WebServerConfig{
		Addr:          a.cfg.HTTPAddr,
		SessionSecret: a.cfg.SessionSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	errs := make(chan error, 2)
	go func() {
		errs <- web.Start()
	}()

	var metricsServer *server.MetricsServer
	if a.cfg.MetricsEnabled {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    a.cfg.MetricsAddr,
			InstrumentationProvider: a.provider,
		})
		if err != nil {
			a.logger.Warn("metrics server disabled", logging.Err(err))
		} else {
			go func() {
				errs <- metricsServer.Start()
			}()
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "templatemail UI running at http://%s\n", a.cfg.HTTPAddr)

	var serveErr error
	select {
	case <-shutdownCtx.Done():
		a.logger.Info("shutdown signal received")
	case serveErr = <-errs:
		if serveErr != nil {
			a.logger.Error("server stopped unexpectedly", logging.Err(serveErr))
		}
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	var shutdownErrs []error
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			shutdownErrs = append(shutdownErrs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := web.Shutdown(ctx); err != nil {
		shutdownErrs = append(shutdownErrs, fmt.Errorf("web server: %w", err))
	}

	if serveErr != nil {
		return serveErr
	}
	if len(shutdownErrs) > 0 {
		return errors.Join(shutdownErrs...)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "templatemail stopped")
	return nil
}
