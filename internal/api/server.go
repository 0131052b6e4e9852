package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/errors"
	"github.com/onlyscans/scanproxy/internal/insider"
	"github.com/onlyscans/scanproxy/internal/logging"
	"github.com/onlyscans/scanproxy/internal/metrics"
	"github.com/onlyscans/scanproxy/internal/reddit"
)

// RedditService is the subset of the Reddit client used by the handlers.
type RedditService interface {
	FanOut(ctx context.Context, subs []string) (reddit.Listing, error)
	Subreddit(ctx context.Context, sub string) (json.RawMessage, error)
	Search(ctx context.Context, q string) (json.RawMessage, error)
	DefaultSubreddits() []string
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	reddit      RedditService
	insider     insider.Provider
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	mu          sync.Mutex
	httpServer  *http.Server
	tlsConfig   config.TLSConfig
	closers     []io.Closer
	started     time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCloser registers a resource closed during Shutdown.
func WithCloser(c io.Closer) Option {
	return func(s *Server) {
		if c != nil {
			s.closers = append(s.closers, c)
		}
	}
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// RateLimiter returns the inbound limiter, or nil when rate limiting is disabled.
func (s *Server) RateLimiter() *IPRateLimiter {
	return s.rateLimiter
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, rc RedditService, ip insider.Provider, opts ...Option) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		router:    gin.New(),
		config:    cfg,
		apiConfig: apiCfg,
		reddit:    rc,
		insider:   ip,
		logger:    logging.NewLogger(),
		tlsConfig: cfg.TLS,
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.metrics == nil {
		server.metrics = metrics.NewMetrics("scanproxy")
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(loggingMiddleware(server.logger))
	server.router.Use(corsMiddleware(apiCfg.CORS))

	if apiCfg.RateLimit.Enabled {
		server.rateLimiter = NewIPRateLimiter(apiCfg.RateLimit.Requests, apiCfg.RateLimit.Window, apiCfg.RateLimit.Burst)
		server.router.Use(rateLimitMiddleware(server.rateLimiter, server.metrics))
	}

	server.router.Use(metrics.Middleware(server.metrics, server.logger))

	server.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	server.router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/health", s.handleHealth)

	redditGroup := s.router.Group("/reddit")
	{
		redditGroup.GET("", s.handleFanOut)
		redditGroup.GET("/trending", s.handleFanOut)
		redditGroup.GET("/search", s.handleSearch)
		redditGroup.GET("/:sub", s.handleSubreddit)
	}

	s.router.GET("/api/insider-trades", s.handleInsiderTrades)
}

// Run starts the HTTP or HTTPS server based on TLS configuration
func (s *Server) Run() error {
	addr := s.config.Addr()

	if s.tlsConfig.Enabled {
		return s.RunTLS()
	}

	s.mu.Lock()
	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// RunTLS starts the HTTPS server with TLS configuration
func (s *Server) RunTLS() error {
	addr := s.config.Addr()

	s.logger.Info("starting HTTPS server", "addr", addr, "cert_file", s.tlsConfig.CertFile, "min_version", s.tlsConfig.MinVersion)

	srv, err := NewHTTPSServerWithConfig(addr, s.tlsConfig.CertFile, s.tlsConfig.KeyFile, s.tlsConfig.MinVersion, s.router)
	if err != nil {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	if err := srv.ListenAndServeTLS("", ""); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// StartWithServer starts the server with a pre-configured http.Server
func (s *Server) StartWithServer(srv *http.Server) error {
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	s.logger.Info("starting HTTP server", "addr", srv.Addr)
	return srv.ListenAndServe()
}

// Shutdown stops accepting connections, waits for in-flight requests and
// closes registered resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var errList []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
			errList = append(errList, &errors.ErrServerShutdown{Err: err})
		}
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range s.closers {
		wg.Add(1)
		go func(c io.Closer) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				mu.Lock()
				errList = append(errList, fmt.Errorf("close: %w", err))
				mu.Unlock()
			}
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if len(errList) > 0 {
		return fmt.Errorf("shutdown errors: %w", stderrors.Join(errList...))
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}
