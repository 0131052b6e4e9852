package config

import (
	"fmt"
	"regexp"
	"time"
)

// Fan-out strategies.
const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"
)

// Insider data modes.
const (
	InsiderModeMock = "mock"
	InsiderModeLive = "live"
)

var subredditNameRe = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// Config represents the complete application configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Reddit    RedditConfig    `yaml:"reddit"`
	Insider   InsiderConfig   `yaml:"insider"`
	Transport TransportConfig `yaml:"transport"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains inbound API configuration.
type APIConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

// RateLimitConfig caps inbound requests per client IP.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// RedditConfig configures the OAuth token exchange and the listing endpoints.
type RedditConfig struct {
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	UserAgent         string        `yaml:"user_agent"`
	TokenURL          string        `yaml:"token_url"`
	APIBaseURL        string        `yaml:"api_base_url"`
	TokenMargin       time.Duration `yaml:"token_margin"`
	Timeout           time.Duration `yaml:"timeout"`
	DefaultSubreddits []string      `yaml:"default_subreddits"`
	Listing           ListingConfig `yaml:"listing"`
	FanOut            FanOutConfig  `yaml:"fanout"`
	Retry             RetryConfig   `yaml:"retry"`
}

// ListingConfig shapes the per-subreddit listing URL.
type ListingConfig struct {
	Sort       string `yaml:"sort"`
	TimeFilter string `yaml:"time"`
	Limit      int    `yaml:"limit"`
}

// FanOutConfig selects how multi-subreddit requests are issued.
type FanOutConfig struct {
	Strategy       string        `yaml:"strategy"`
	PacingDelay    time.Duration `yaml:"pacing_delay"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// RetryConfig controls the retry applied to upstream 429 responses.
type RetryConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Cooldown   time.Duration `yaml:"cooldown"`
	MaxRetries int           `yaml:"max_retries"`
}

// InsiderConfig configures the insider-trades endpoint.
type InsiderConfig struct {
	Mode         string        `yaml:"mode"`
	FeedURL      string        `yaml:"feed_url"`
	FormType     string        `yaml:"form_type"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	SnapshotPath string        `yaml:"snapshot_path"`
}

// TransportConfig configures the outbound HTTP transport.
type TransportConfig struct {
	// UTLS dials upstream TLS with a browser ClientHello fingerprint.
	UTLS bool `yaml:"utls"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        10000,
			ShutdownTimeout: 30 * time.Second,
			LogLevel:        "info",
		},
		API: APIConfig{
			RateLimit: RateLimitConfig{
				Enabled:  true,
				Requests: 100,
				Window:   15 * time.Minute,
			},
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET"},
			},
		},
		Reddit: RedditConfig{
			UserAgent:         "OnlyScans SEC Monitor (support@onlyscans.com)",
			TokenURL:          "https://www.reddit.com/api/v1/access_token",
			APIBaseURL:        "https://oauth.reddit.com",
			TokenMargin:       2 * time.Minute,
			Timeout:           15 * time.Second,
			DefaultSubreddits: []string{"pennystocks", "Shortsqueeze", "SqueezePlays"},
			Listing: ListingConfig{
				Sort:       "top",
				TimeFilter: "day",
				Limit:      25,
			},
			FanOut: FanOutConfig{
				Strategy:       StrategyParallel,
				PacingDelay:    time.Second,
				MaxConcurrency: 8,
			},
			Retry: RetryConfig{
				Enabled:    true,
				Cooldown:   3 * time.Second,
				MaxRetries: 1,
			},
		},
		Insider: InsiderConfig{
			Mode:         InsiderModeMock,
			FeedURL:      "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=4&count=40&output=atom",
			FormType:     "4",
			UserAgent:    "OnlyScans SEC Monitor support@onlyscans.com",
			Timeout:      20 * time.Second,
			SnapshotPath: "./data/insider.db",
		},
	}
}

// Validate validates the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = "1"
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.Reddit.Validate(); err != nil {
		return fmt.Errorf("reddit: %w", err)
	}

	if err := c.Insider.Validate(); err != nil {
		return fmt.Errorf("insider: %w", err)
	}

	return nil
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
		if s.TLS.MinVersion != "" && s.TLS.MinVersion != "1.2" && s.TLS.MinVersion != "1.3" {
			return fmt.Errorf("tls min_version must be either \"1.2\" or \"1.3\"")
		}
		if s.TLS.MinVersion == "" {
			s.TLS.MinVersion = "1.3"
		}
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.RateLimit.Requests <= 0 {
		a.RateLimit.Requests = 100
	}
	if a.RateLimit.Window <= 0 {
		a.RateLimit.Window = 15 * time.Minute
	}
	if a.RateLimit.Burst <= 0 {
		a.RateLimit.Burst = a.RateLimit.Requests
	}
	if len(a.CORS.Origins) == 0 {
		a.CORS.Origins = []string{"*"}
	}
	if len(a.CORS.Methods) == 0 {
		a.CORS.Methods = []string{"GET"}
	}
	return nil
}

// Validate validates Reddit configuration.
func (r *RedditConfig) Validate() error {
	if r.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	if r.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if r.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	if r.TokenMargin < 0 {
		return fmt.Errorf("token_margin cannot be negative")
	}
	if r.Timeout <= 0 {
		r.Timeout = 15 * time.Second
	}
	if len(r.DefaultSubreddits) == 0 {
		return fmt.Errorf("default_subreddits must not be empty")
	}
	for _, sub := range r.DefaultSubreddits {
		if !ValidSubreddit(sub) {
			return fmt.Errorf("invalid subreddit name %q", sub)
		}
	}

	switch r.Listing.Sort {
	case "":
		r.Listing.Sort = "top"
	case "hot", "new", "top", "rising", "controversial":
	default:
		return fmt.Errorf("listing sort must be one of: hot, new, top, rising, controversial")
	}
	switch r.Listing.TimeFilter {
	case "":
		r.Listing.TimeFilter = "day"
	case "hour", "day", "week", "month", "year", "all":
	default:
		return fmt.Errorf("listing time must be one of: hour, day, week, month, year, all")
	}
	if r.Listing.Limit <= 0 {
		r.Listing.Limit = 25
	}
	if r.Listing.Limit > 100 {
		return fmt.Errorf("listing limit cannot exceed 100")
	}

	switch r.FanOut.Strategy {
	case "":
		r.FanOut.Strategy = StrategyParallel
	case StrategyParallel, StrategySequential:
	default:
		return fmt.Errorf("fanout strategy must be one of: parallel, sequential")
	}
	if r.FanOut.PacingDelay < 0 {
		return fmt.Errorf("fanout pacing_delay cannot be negative")
	}
	if r.FanOut.MaxConcurrency <= 0 {
		r.FanOut.MaxConcurrency = 8
	}

	if r.Retry.Cooldown < 0 {
		return fmt.Errorf("retry cooldown cannot be negative")
	}
	if r.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max_retries cannot be negative")
	}
	return nil
}

// Validate validates insider configuration.
func (i *InsiderConfig) Validate() error {
	switch i.Mode {
	case "":
		i.Mode = InsiderModeMock
	case InsiderModeMock, InsiderModeLive:
	default:
		return fmt.Errorf("mode must be one of: mock, live")
	}
	if i.Mode == InsiderModeLive {
		if i.FeedURL == "" {
			return fmt.Errorf("feed_url is required in live mode")
		}
		if i.UserAgent == "" {
			return fmt.Errorf("user_agent is required in live mode")
		}
	}
	if i.FormType == "" {
		i.FormType = "4"
	}
	if i.Timeout <= 0 {
		i.Timeout = 20 * time.Second
	}
	return nil
}

// ValidSubreddit reports whether name is a syntactically valid subreddit.
func ValidSubreddit(name string) bool {
	return subredditNameRe.MatchString(name)
}
