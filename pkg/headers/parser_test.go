package headers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRateLimit(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUsed, "12")
	h.Set(HeaderRemaining, "588.0")
	h.Set(HeaderReset, "240")

	info, ok := ParseRateLimit(h)
	require.True(t, ok)
	assert.Equal(t, 12.0, info.Used)
	assert.Equal(t, 588.0, info.Remaining)
	assert.Equal(t, 240*time.Second, info.Reset)
	assert.False(t, info.Exhausted())
}

func TestParseRateLimit_Missing(t *testing.T) {
	_, ok := ParseRateLimit(http.Header{})
	assert.False(t, ok)
}

func TestParseRateLimit_Exhausted(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderRemaining, "0.0")
	h.Set(HeaderReset, "garbage")

	info, ok := ParseRateLimit(h)
	require.True(t, ok)
	assert.True(t, info.Exhausted())
	assert.Zero(t, info.Reset)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 4, 24, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{name: "seconds", value: "3", want: 3 * time.Second, ok: true},
		{name: "fractional", value: "1.5", want: 1500 * time.Millisecond, ok: true},
		{name: "duration", value: "2s", want: 2 * time.Second, ok: true},
		{name: "http date", value: "Thu, 24 Apr 2025 12:00:10 GMT", want: 10 * time.Second, ok: true},
		{name: "date in past", value: "Thu, 24 Apr 2025 11:00:00 GMT", want: 0, ok: true},
		{name: "negative", value: "-1", ok: false},
		{name: "garbage", value: "soon", ok: false},
		{name: "empty", value: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set(HeaderRetryAfter, tt.value)
			}
			got, ok := ParseRetryAfter(h, now)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
