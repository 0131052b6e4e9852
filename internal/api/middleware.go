package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/logging"
)

// loggingMiddleware attaches a correlation id to the request context and
// logs each completed request.
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(logging.CorrelationIDHeader)
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(logging.CorrelationIDHeader, correlationID)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

// corsMiddleware answers preflight requests and sets CORS headers for the
// configured origins and methods.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowAll := false
	origins := make(map[string]struct{}, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = struct{}{}
	}

	methods := append([]string(nil), cfg.Methods...)
	hasOptions := false
	for _, m := range methods {
		if strings.EqualFold(m, http.MethodOptions) {
			hasOptions = true
		}
	}
	if !hasOptions {
		methods = append(methods, http.MethodOptions)
	}
	allowMethods := strings.Join(methods, ",")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := origins[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
				c.Header("Access-Control-Allow-Headers", reqHeaders)
				c.Header("Vary", "Access-Control-Request-Headers")
			}
			c.Header("Content-Length", "0")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
