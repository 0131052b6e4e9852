package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onlyscans/scanproxy/internal/api"
	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/logging"
	"github.com/onlyscans/scanproxy/internal/metrics"
	"github.com/onlyscans/scanproxy/internal/reddit"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the proxy server",
	Long: `Start the scanproxy HTTP server.

The server exposes the aggregated subreddit feed, single-subreddit and
ticker search passthroughs, and the insider-trades endpoint.

Example:
  scanproxy serve --config config.yaml --port 10000

Fan-out strategy and retry settings are reloaded when the config file changes.`,
	RunE: runServe,
}

var serveFlags struct {
	Host       string
	Port       int
	Timeout    time.Duration
	TLS        bool
	TLSCert    string
	TLSKey     string
	TLSVersion string
}

const (
	janitorInterval = time.Minute
	visitorIdle     = 10 * time.Minute
)

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("SHUTDOWN_TIMEOUT", 0), "Shutdown timeout (overrides config)")
	serveCmd.Flags().BoolVar(&serveFlags.TLS, "tls", false, "Enable TLS/HTTPS")
	serveCmd.Flags().StringVar(&serveFlags.TLSCert, "cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSKey, "key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSVersion, "tls-version", "", "Minimum TLS version (1.2 or 1.3)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig(globalFlags.Config)
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	if cfg.Server.TLS.Enabled {
		if err := validateTLSConfig(cfg.Server.TLS); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	logger := newLogger(cfg, cmd.OutOrStdout())
	m := metrics.NewMetrics("scanproxy")

	comps, err := buildComponents(cfg, logger, m)
	if err != nil {
		return err
	}

	if cfg.Reddit.ClientID == "" || cfg.Reddit.ClientSecret == "" {
		logger.Warn("Reddit credentials are not set; Reddit endpoints will fail",
			"env_client_id", config.EnvClientID, "env_client_secret", config.EnvClientSecret)
	}

	server := api.NewServer(cfg.Server, cfg.API, comps.reddit, comps.insider,
		api.WithLogger(logger),
		api.WithMetrics(m),
		api.WithCloser(comps),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if limiter := server.RateLimiter(); limiter != nil {
		go limiter.RunJanitor(ctx, janitorInterval, visitorIdle)
	}

	startConfigWatch(ctx, loader, comps.reddit, logger)

	logger.Info("scanproxy starting",
		"version", Version,
		"addr", cfg.Server.Addr(),
		"tls", cfg.Server.TLS.Enabled,
		"strategy", cfg.Reddit.FanOut.Strategy,
		"insider_mode", cfg.Insider.Mode,
		"client_id", logging.MaskSecret(cfg.Reddit.ClientID),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	sigCh := api.SetupSignalHandler()
	select {
	case err := <-errCh:
		_ = comps.Close()
		if err != nil {
			return err
		}
		return nil
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	}

	timeout := serveFlags.Timeout
	if timeout <= 0 {
		timeout = cfg.Server.ShutdownTimeout
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func applyServeFlags(cfg *config.Config) {
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.TLS {
		cfg.Server.TLS.Enabled = true
	}
	if serveFlags.TLSCert != "" {
		cfg.Server.TLS.CertFile = serveFlags.TLSCert
	}
	if serveFlags.TLSKey != "" {
		cfg.Server.TLS.KeyFile = serveFlags.TLSKey
	}
	if serveFlags.TLSVersion != "" {
		cfg.Server.TLS.MinVersion = serveFlags.TLSVersion
	}
}

// startConfigWatch pushes fan-out policy changes from the config file into
// the running Reddit client. It is a no-op when no config file exists.
func startConfigWatch(ctx context.Context, loader *config.Loader, rc *reddit.Client, logger *logging.Logger) {
	if _, err := os.Stat(loader.Path()); err != nil {
		return
	}

	loader.SetOnChange(func(newCfg *config.Config) {
		policy := reddit.PolicyFromConfig(newCfg.Reddit)
		rc.SetPolicy(policy)
		logger.Info("configuration reloaded",
			"strategy", policy.Strategy,
			"pacing_delay", policy.PacingDelay.String(),
			"retry", policy.RetryEnabled,
		)
	})

	if err := loader.Watch(ctx, func(err error) {
		logger.Warn("config reload failed", "error", err)
	}); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}
}

// validateTLSConfig validates TLS configuration
func validateTLSConfig(tls config.TLSConfig) error {
	if tls.CertFile == "" {
		return fmt.Errorf("TLS certificate file is required when TLS is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("TLS key file is required when TLS is enabled")
	}
	if _, err := os.Stat(tls.CertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file does not exist: %s", tls.CertFile)
	}
	if _, err := os.Stat(tls.KeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file does not exist: %s", tls.KeyFile)
	}
	if tls.MinVersion != "" && tls.MinVersion != "1.2" && tls.MinVersion != "1.3" {
		return fmt.Errorf("TLS min_version must be either \"1.2\" or \"1.3\", got: %s", tls.MinVersion)
	}
	return nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return fallback
}
