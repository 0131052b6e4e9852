// Package headers parses rate-limit information out of upstream response headers.
package headers

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Reddit rate-limit headers.
const (
	HeaderUsed       = "X-Ratelimit-Used"
	HeaderRemaining  = "X-Ratelimit-Remaining"
	HeaderReset      = "X-Ratelimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// RateLimitInfo is the upstream's view of the current rate-limit window.
type RateLimitInfo struct {
	Used      float64
	Remaining float64
	Reset     time.Duration
}

// Exhausted reports whether the window has no requests left.
func (r RateLimitInfo) Exhausted() bool {
	return r.Remaining <= 0
}

// ParseRateLimit extracts the X-Ratelimit-* headers. The second result is
// false when none of them are present.
//
// Reddit sends remaining as a float ("598.0") and reset as whole seconds.
func ParseRateLimit(h http.Header) (RateLimitInfo, bool) {
	used, hasUsed := parseFloatHeader(h, HeaderUsed)
	remaining, hasRemaining := parseFloatHeader(h, HeaderRemaining)
	reset, hasReset := parseSecondsHeader(h, HeaderReset)

	if !hasUsed && !hasRemaining && !hasReset {
		return RateLimitInfo{}, false
	}

	return RateLimitInfo{
		Used:      used,
		Remaining: remaining,
		Reset:     reset,
	}, true
}

// ParseRetryAfter reads Retry-After as either delta-seconds or an HTTP date.
func ParseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	val := strings.TrimSpace(h.Get(HeaderRetryAfter))
	if val == "" {
		return 0, false
	}

	if d, ok := parseSeconds(val); ok {
		return d, true
	}

	when, err := http.ParseTime(val)
	if err != nil {
		return 0, false
	}
	d := when.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func parseFloatHeader(h http.Header, key string) (float64, bool) {
	val := strings.TrimSpace(h.Get(key))
	if val == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseSecondsHeader(h http.Header, key string) (time.Duration, bool) {
	val := strings.TrimSpace(h.Get(key))
	if val == "" {
		return 0, false
	}
	return parseSeconds(val)
}

// parseSeconds accepts "60", "60.5" and Go duration strings like "60s".
func parseSeconds(val string) (time.Duration, bool) {
	if strings.HasSuffix(val, "s") {
		d, err := time.ParseDuration(val)
		if err != nil || d < 0 {
			return 0, false
		}
		return d, true
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}
