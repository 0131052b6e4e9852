// Package reddit fetches subreddit listings and ticker searches from the
// Reddit OAuth API on behalf of browser clients.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/onlyscans/scanproxy/internal/config"
	apperrors "github.com/onlyscans/scanproxy/internal/errors"
	"github.com/onlyscans/scanproxy/internal/logging"
	"github.com/onlyscans/scanproxy/internal/metrics"
	"github.com/onlyscans/scanproxy/internal/token"
	"github.com/onlyscans/scanproxy/pkg/headers"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 8 << 20

// Listing is the simplified response shape returned to clients.
type Listing struct {
	Data ListingData `json:"data"`
}

// ListingData holds the child records, passed through unmodified.
type ListingData struct {
	Children []json.RawMessage `json:"children"`
}

// EmptyListing returns a listing with a non-nil, empty children array.
func EmptyListing() Listing {
	return Listing{Data: ListingData{Children: []json.RawMessage{}}}
}

// TokenSource supplies bearer credentials.
type TokenSource interface {
	Token(ctx context.Context) (token.Credential, error)
}

// Policy is the part of the client configuration that can change at runtime.
type Policy struct {
	Strategy          string
	PacingDelay       time.Duration
	MaxConcurrency    int
	RetryEnabled      bool
	Cooldown          time.Duration
	MaxRetries        int
	DefaultSubreddits []string
}

// PolicyFromConfig extracts the reloadable policy from Reddit configuration.
func PolicyFromConfig(cfg config.RedditConfig) Policy {
	return Policy{
		Strategy:          cfg.FanOut.Strategy,
		PacingDelay:       cfg.FanOut.PacingDelay,
		MaxConcurrency:    cfg.FanOut.MaxConcurrency,
		RetryEnabled:      cfg.Retry.Enabled,
		Cooldown:          cfg.Retry.Cooldown,
		MaxRetries:        cfg.Retry.MaxRetries,
		DefaultSubreddits: append([]string(nil), cfg.DefaultSubreddits...),
	}
}

func (p Policy) retries() int {
	if !p.RetryEnabled {
		return 0
	}
	return p.MaxRetries
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	UserAgent  string
	Sort       string
	TimeFilter string
	Limit      int
	Timeout    time.Duration
	HTTPClient *http.Client
	Tokens     TokenSource
	Policy     Policy
	Logger     *logging.Logger
	Metrics    *metrics.Metrics

	// Sleep waits between paced items and before retries. Defaults to a
	// context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client talks to the Reddit OAuth API.
type Client struct {
	baseURL    string
	userAgent  string
	sort       string
	timeFilter string
	limit      int
	timeout    time.Duration
	http       *http.Client
	tokens     TokenSource
	logger     *logging.Logger
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	policy Policy
}

// NewClient creates a Reddit client.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Sort == "" {
		opts.Sort = "top"
	}
	if opts.TimeFilter == "" {
		opts.TimeFilter = "day"
	}
	if opts.Limit <= 0 {
		opts.Limit = 25
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		sort:       opts.Sort,
		timeFilter: opts.TimeFilter,
		limit:      opts.Limit,
		timeout:    opts.Timeout,
		http:       opts.HTTPClient,
		tokens:     opts.Tokens,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		sleep:      opts.Sleep,
		policy:     opts.Policy,
	}
}

// SetPolicy replaces the runtime policy. In-flight requests keep the old one.
func (c *Client) SetPolicy(p Policy) {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
}

// Policy returns the current runtime policy.
func (c *Client) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// DefaultSubreddits returns the configured list used when a request names none.
func (c *Client) DefaultSubreddits() []string {
	p := c.Policy()
	return append([]string(nil), p.DefaultSubreddits...)
}

// Subreddit fetches one subreddit listing and returns the upstream payload verbatim.
func (c *Client) Subreddit(ctx context.Context, sub string) (json.RawMessage, error) {
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.fetch(ctx, "subreddit", c.listingURL(sub), cred, c.Policy())
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode /r/%s: invalid JSON", sub)
	}
	return body, nil
}

// Search runs a cashtag search for q. The query is validated before any
// outbound call, including the token exchange.
func (c *Client) Search(ctx context.Context, q string) (json.RawMessage, error) {
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.fetch(ctx, "search", c.searchURL(q), cred, c.Policy())
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode search %q: invalid JSON", q)
	}
	return body, nil
}

func (c *Client) listingURL(sub string) string {
	return fmt.Sprintf("%s/r/%s/%s?t=%s&limit=%d",
		c.baseURL, url.PathEscape(sub), c.sort, url.QueryEscape(c.timeFilter), c.limit)
}

func (c *Client) searchURL(q string) string {
	return fmt.Sprintf("%s/search.json?q=%%24%s&sort=top&limit=25&restrict_sr=false",
		c.baseURL, strings.ReplaceAll(url.QueryEscape(q), "+", "%20"))
}

// fetch performs one GET, retrying on 429 as the policy allows.
func (c *Client) fetch(ctx context.Context, endpoint, target string, cred token.Credential, policy Policy) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		status, body, header, err := c.do(ctx, endpoint, target, cred)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests && attempt < policy.retries() {
			c.metrics.RecordUpstreamRetry(endpoint)
			fields := []interface{}{"endpoint", endpoint, "url", target, "cooldown", policy.Cooldown.String()}
			if ra, ok := headers.ParseRetryAfter(header, time.Now()); ok {
				fields = append(fields, "retry_after", ra.String())
			}
			c.logger.WarnWithContext(ctx, "upstream rate limited, retrying", fields...)
			if err := c.sleep(ctx, policy.Cooldown); err != nil {
				return nil, err
			}
			continue
		}

		if status < 200 || status > 299 {
			return nil, &apperrors.ErrUpstreamStatus{Resource: endpoint, StatusCode: status}
		}
		return body, nil
	}
}

func (c *Client) do(ctx context.Context, endpoint, target string, cred token.Credential) (int, []byte, http.Header, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Value)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(endpoint, "error", time.Since(start).Seconds())
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.RecordUpstream(endpoint, fmt.Sprintf("%d", resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return 0, nil, nil, err
	}

	if info, ok := headers.ParseRateLimit(resp.Header); ok {
		c.metrics.SetUpstreamRateLimit(info.Used, info.Remaining, info.Reset.Seconds())
		if info.Exhausted() {
			c.logger.WarnWithContext(ctx, "upstream rate limit exhausted", "reset", info.Reset.String())
		}
	}

	return resp.StatusCode, body, resp.Header, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
