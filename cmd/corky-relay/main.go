package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/corky-relay/config"
	"github.com/VanDung-dev/corky-relay/engine"
	"github.com/VanDung-dev/corky-relay/logging"
	"github.com/VanDung-dev/corky-relay/relay"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "corky-relay"
)

// options holds command-line overrides. Empty values leave the config alone.
type options struct {
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	metricsAddr string
	showVersion bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   Name,
		Short: "ZeroMQ pub/sub proxy and request/reply broker",
		Long: `corky-relay runs two relay planes side by side:

  proxy   XSUB/XPUB forwarder for publishers and subscribers
  broker  direct client-to-client ROUTER plus a client ROUTER / worker DEALER pair

Each plane restarts after a failure. SIGINT or SIGTERM stops both.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", Name, Version)
				return nil
			}
			return run(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to TOML config (default ~/.corky/config.toml)")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file with CORKY_* variables")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address")
	cmd.Flags().BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	return cmd
}

// resolveConfig layers defaults, the config file, the environment and
// flags, in that order. A missing config file is reported in notice but is
// not an error.
func resolveConfig(opts options, lookup func(string) (string, bool)) (cfg *config.Config, notice error, err error) {
	cfg, err = config.Load(opts.configPath)
	if errors.Is(err, config.ErrNotFound) {
		notice, err = err, nil
	}
	if err != nil {
		return nil, nil, err
	}

	cfg.ApplyEnv(lookup)

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Address = opts.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, notice, nil
}

func run(ctx context.Context, opts options, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	cfg, notice, err := resolveConfig(opts, os.LookupEnv)
	if err != nil {
		return err
	}

	logger := logging.Setup(logOut, cfg.Logging.Level, cfg.Logging.Format)
	if notice != nil {
		logger.Warn("config file not found, using defaults", logging.Err(notice))
	}
	logger.Info("starting", slog.String("name", Name), slog.String("version", Version))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Address != "" {
		srv := relay.NewMetricsServer(cfg.Metrics.Address, prometheus.DefaultGatherer)
		srv.StartAsync(func(err error) {
			logger.Error("metrics server failed", logging.Err(err))
		})
		defer srv.Stop()
		logger.Info("metrics server listening", slog.String("address", cfg.Metrics.Address))
	}

	return engine.Start(ctx, cfg, logger, relay.DefaultMetrics)
}
