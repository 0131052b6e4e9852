// Package token caches the Reddit application-only OAuth credential.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "github.com/onlyscans/scanproxy/internal/errors"
	"github.com/onlyscans/scanproxy/internal/logging"
	"github.com/onlyscans/scanproxy/internal/metrics"
)

// DefaultMargin is subtracted from the advertised lifetime so a token is
// never presented in the last moments of its validity.
const DefaultMargin = 120 * time.Second

// Credential is a bearer token and the instant after which it must not be reused.
type Credential struct {
	Value  string
	Expiry time.Time
}

// Valid reports whether the credential may be used at now.
func (c Credential) Valid(now time.Time) bool {
	return c.Value != "" && now.Before(c.Expiry)
}

// Options configures a Cache.
type Options struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Margin       time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Cache holds at most one credential. Concurrent callers that find it
// expired may each perform an exchange; the last to finish wins.
type Cache struct {
	cfg        clientcredentials.Config
	margin     time.Duration
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu      sync.Mutex
	current Credential
}

// NewCache creates a token cache.
func NewCache(opts Options) *Cache {
	if opts.Margin <= 0 {
		opts.Margin = DefaultMargin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Cache{
		cfg: clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		margin:     opts.Margin,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

// Token returns the cached credential or performs a fresh exchange.
// On failure the cache is left untouched and *errors.ErrTokenUnavailable is returned.
func (c *Cache) Token(ctx context.Context) (Credential, error) {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	if cur.Valid(c.now()) {
		return cur, nil
	}

	cred, err := c.exchange(ctx)
	if err != nil {
		c.metrics.RecordTokenRefresh("error")
		c.logger.ErrorWithContext(ctx, "token exchange failed", "error", err)
		return Credential{}, err
	}

	c.mu.Lock()
	c.current = cred
	c.mu.Unlock()

	c.metrics.RecordTokenRefresh("success")
	c.logger.InfoWithContext(ctx, "token refreshed",
		"token", logging.MaskSecret(cred.Value),
		"expires_at", cred.Expiry.Format(time.RFC3339),
	)
	return cred, nil
}

// Invalidate drops the cached credential.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = Credential{}
	c.mu.Unlock()
}

// Cached returns the stored credential without refreshing it.
func (c *Cache) Cached() Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Cache) exchange(ctx context.Context) (Credential, error) {
	issued := c.now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.cfg.Token(ctx)
	if err != nil {
		unavailable := &apperrors.ErrTokenUnavailable{Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			unavailable.StatusCode = retrieveErr.Response.StatusCode
		}
		return Credential{}, unavailable
	}
	if tok.AccessToken == "" {
		return Credential{}, &apperrors.ErrTokenUnavailable{Err: errors.New("response carried no access_token")}
	}

	lifetime, ok := expiresIn(tok)
	if !ok {
		if tok.Expiry.IsZero() {
			return Credential{}, &apperrors.ErrTokenUnavailable{Err: errors.New("response carried no expires_in")}
		}
		lifetime = tok.Expiry.Sub(issued)
	}

	return Credential{
		Value:  tok.AccessToken,
		Expiry: issued.Add(lifetime - c.margin),
	}, nil
}

// expiresIn reads the raw lifetime so expiry is computed against the
// injected clock rather than the wall clock oauth2 uses.
func expiresIn(tok *oauth2.Token) (time.Duration, bool) {
	var secs float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		secs = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		secs = f
	default:
		return 0, false
	}
	if secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
