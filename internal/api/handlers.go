package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onlyscans/scanproxy/internal/errors"
	"github.com/onlyscans/scanproxy/internal/reddit"
)

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"insider_mode":   s.insider.Mode(),
	})
}

// handleFanOut merges listings for ?subs=a,b,c or the configured defaults.
// A non-empty subs value that names nothing (",") yields an empty listing.
func (s *Server) handleFanOut(c *gin.Context) {
	subs := s.reddit.DefaultSubreddits()
	if raw := c.Query("subs"); raw != "" {
		subs = reddit.ParseSubreddits(raw)
	}

	listing, err := s.reddit.FanOut(c.Request.Context(), subs)
	if err != nil {
		s.respondError(c, err, "Failed to fetch subreddits")
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (s *Server) handleSubreddit(c *gin.Context) {
	sub := c.Param("sub")

	body, err := s.reddit.Subreddit(c.Request.Context(), sub)
	if err != nil {
		s.respondError(c, err, fmt.Sprintf("Failed to fetch /r/%s", sub))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *Server) handleSearch(c *gin.Context) {
	body, err := s.reddit.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.respondError(c, err, "Reddit search failed")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *Server) handleInsiderTrades(c *gin.Context) {
	trades, err := s.insider.Trades(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "Failed to fetch insider trades")
		return
	}
	c.JSON(http.StatusOK, trades)
}

// respondError maps domain errors to status codes. Anything unrecognised is
// a 500 carrying fallback as the message.
func (s *Server) respondError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)

	status := http.StatusInternalServerError
	message := fallback
	errorType := "internal"

	var (
		tokenErr    *errors.ErrTokenUnavailable
		queryErr    *errors.ErrInvalidQuery
		upstreamErr *errors.ErrUpstreamStatus
	)
	switch {
	case stderrors.As(err, &tokenErr):
		message = "Reddit token unavailable"
		errorType = "token"
	case stderrors.As(err, &queryErr):
		status = http.StatusBadRequest
		message = "Invalid ticker query"
		errorType = "invalid_query"
	case stderrors.As(err, &upstreamErr):
		status = upstreamErr.StatusCode
		message = fmt.Sprintf("Reddit API error: %d", upstreamErr.StatusCode)
		errorType = "upstream"
	}

	s.metrics.RecordError(errorType, c.FullPath(), c.Request.Method)
	c.JSON(status, gin.H{"error": message})
}
