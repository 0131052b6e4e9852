package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/insider"
	"github.com/onlyscans/scanproxy/internal/logging"
	"github.com/onlyscans/scanproxy/internal/metrics"
	"github.com/onlyscans/scanproxy/internal/reddit"
	"github.com/onlyscans/scanproxy/internal/store"
	"github.com/onlyscans/scanproxy/internal/token"
	"github.com/onlyscans/scanproxy/internal/transport"
)

// components is everything the proxy needs to serve requests.
type components struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
	tokens  *token.Cache
	reddit  *reddit.Client
	insider insider.Provider
	closers []io.Closer
}

func loadConfig(path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(path)
	cfg, err := loader.LoadOrDefault()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, loader, nil
}

func newLogger(cfg *config.Config, out io.Writer) *logging.Logger {
	level := logging.ParseLevel(cfg.Server.LogLevel)
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	if out == nil {
		out = os.Stdout
	}
	return logging.NewLogger(logging.WithOutput(out), logging.WithLevel(level))
}

// buildComponents wires the token cache, Reddit client and insider provider.
func buildComponents(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*components, error) {
	redditHTTP := transport.NewClient(transport.Options{
		Timeout:   cfg.Reddit.Timeout,
		UserAgent: cfg.Reddit.UserAgent,
		UseUTLS:   cfg.Transport.UTLS,
	})

	tokens := token.NewCache(token.Options{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		TokenURL:     cfg.Reddit.TokenURL,
		Margin:       cfg.Reddit.TokenMargin,
		HTTPClient:   redditHTTP,
		Logger:       logger,
		Metrics:      m,
	})

	redditClient := reddit.NewClient(reddit.Options{
		BaseURL:    cfg.Reddit.APIBaseURL,
		UserAgent:  cfg.Reddit.UserAgent,
		Sort:       cfg.Reddit.Listing.Sort,
		TimeFilter: cfg.Reddit.Listing.TimeFilter,
		Limit:      cfg.Reddit.Listing.Limit,
		Timeout:    cfg.Reddit.Timeout,
		HTTPClient: redditHTTP,
		Tokens:     tokens,
		Policy:     reddit.PolicyFromConfig(cfg.Reddit),
		Logger:     logger,
		Metrics:    m,
	})

	c := &components{
		logger:  logger,
		metrics: m,
		tokens:  tokens,
		reddit:  redditClient,
	}

	if cfg.Insider.Mode != config.InsiderModeLive {
		c.insider = insider.MockProvider{}
		return c, nil
	}

	var snapshots insider.SnapshotStore
	if cfg.Insider.SnapshotPath != "" {
		db, err := store.NewSQLiteStore(cfg.Insider.SnapshotPath, store.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		snapshots = db
		c.closers = append(c.closers, db)
	}

	c.insider = insider.NewLiveProvider(insider.LiveOptions{
		FeedURL:   cfg.Insider.FeedURL,
		FormType:  cfg.Insider.FormType,
		UserAgent: cfg.Insider.UserAgent,
		Timeout:   cfg.Insider.Timeout,
		HTTPClient: transport.NewClient(transport.Options{
			Timeout:   cfg.Insider.Timeout,
			UserAgent: cfg.Insider.UserAgent,
			UseUTLS:   cfg.Transport.UTLS,
		}),
		Snapshots: snapshots,
		Logger:    logger,
		Metrics:   m,
	})
	return c, nil
}

func (c *components) Close() error {
	var first error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
