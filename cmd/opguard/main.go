// Command opguard serves the resilience envelope over HTTP and runs one-off
// health checks against its configured dependencies.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/opguard/auth"
	"github.com/jonwraymond/opguard/config"
	"github.com/jonwraymond/opguard/httpapi"
	"github.com/jonwraymond/opguard/observe"
)

// errUnhealthy makes the health command exit non-zero.
var errUnhealthy = errors.New("one or more health checks failed")

type rootOptions struct {
	configPath string
	envFiles   []string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.LoadWithOptions(config.Options{Path: o.configPath, EnvFiles: o.envFiles})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "opguard",
		Short:        "Resilient operation envelope",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("OPGUARD_CONFIG"), "YAML config file")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(healthCmd(opts))
	root.AddCommand(configCmd(opts))
	return root
}

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}

	if a.limiter != nil {
		a.limiter.StartSweeper(ctx, cfg.RateLimit.SweepInterval)
	}

	router := httpapi.NewRouter(httpapi.Config{
		Executor:    a.executor,
		Checker:     a.checker,
		Gatherer:    a.registry,
		Keys:        keyStore(cfg),
		RequireAuth: len(cfg.APIKeys) > 0,
		Auditor:     a.auditor,
		Logger:      a.logger,

		TrustClientHeader: cfg.Server.TrustClientHeader,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "server listening", observe.Field{Key: "addr", Value: cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.logger.Info(shutdownCtx, "shutting down")

	return errors.Join(serveErr, srv.Shutdown(shutdownCtx), a.close(shutdownCtx))
}

// keyStore returns nil when no keys are configured, leaving /v1 open.
func keyStore(cfg *config.Config) auth.KeyStore {
	if len(cfg.APIKeys) == 0 {
		return nil
	}
	return cfg.KeyStore()
}

func healthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run every health check once and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			// One-off runs keep audit events and telemetry in process.
			cfg.Audit.Sinks = []string{"memory"}
			cfg.Telemetry.TracingExporter = "none"
			cfg.Telemetry.MetricsExporter = "none"

			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.close(context.WithoutCancel(cmd.Context())) }()

			report := a.checker.RunChecks(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Healthy() {
				return fmt.Errorf("%w: %s", errUnhealthy, report)
			}
			return nil
		},
	}
}

func configCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redact(*cfg))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

const redacted = "[REDACTED]"

// redact hides connection strings, which usually embed credentials.
func redact(cfg config.Config) config.Config {
	for _, s := range []*string{&cfg.Redis.URL, &cfg.Postgres.DSN, &cfg.MySQL.DSN} {
		if *s != "" {
			*s = redacted
		}
	}
	return cfg
}
