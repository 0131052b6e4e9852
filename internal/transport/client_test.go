package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_SetsUserAgent(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Options{Timeout: 5 * time.Second, UserAgent: "scanproxy-test/1.0"})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "scanproxy-test/1.0", gotUA)
	assert.NotEmpty(t, gotAccept)
}

func TestNewClient_KeepsExplicitUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient(Options{UserAgent: "default-agent"})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "explicit-agent")

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "explicit-agent", gotUA)
	assert.Equal(t, "explicit-agent", req.Header.Get("User-Agent"))
}

func TestUserAgentTransport_DoesNotMutateRequest(t *testing.T) {
	rt := &UserAgentTransport{
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, "ua", r.Header.Get("User-Agent"))
			return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
		}),
		UserAgent: "ua",
	}

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, req.Header.Get("User-Agent"))
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	client := NewClient(Options{})
	assert.Equal(t, 20*time.Second, client.Timeout)
}

func TestChromeSpec_HTTP11Only(t *testing.T) {
	spec, err := chromeSpec()
	require.NoError(t, err)
	assert.NotEmpty(t, spec.Extensions)
}

func TestUserAgentTransport_NilRequest(t *testing.T) {
	rt := &UserAgentTransport{}
	_, err := rt.RoundTrip(nil)
	assert.Error(t, err)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
