package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlyscans/scanproxy/internal/api"
	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/metrics"
)

type fakeUpstream struct {
	*httptest.Server
	tokenCalls atomic.Int32
	listings   atomic.Int32
	lastQuery  atomic.Value
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v1/access_token":
			f.tokenCalls.Add(1)
			_, _ = w.Write([]byte(`{"access_token":"flow-token-123","token_type":"bearer","expires_in":3600}`))
		case r.Header.Get("Authorization") != "Bearer flow-token-123":
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/search.json":
			f.lastQuery.Store(r.URL.RawQuery)
			_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"s1"}}]}}`))
		case strings.HasPrefix(r.URL.Path, "/r/private/"):
			w.WriteHeader(http.StatusForbidden)
		case strings.HasPrefix(r.URL.Path, "/r/"):
			f.listings.Add(1)
			sub := strings.Split(strings.TrimPrefix(r.URL.Path, "/r/"), "/")[0]
			fmt.Fprintf(w, `{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"subreddit":%q}}]}}`, sub)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func newFlowServer(t *testing.T, upstream *fakeUpstream) *api.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clearEnv(t)

	cfg := config.Default()
	cfg.Reddit.ClientID = "id"
	cfg.Reddit.ClientSecret = "secret"
	cfg.Reddit.TokenURL = upstream.URL + "/api/v1/access_token"
	cfg.Reddit.APIBaseURL = upstream.URL
	cfg.Reddit.FanOut.PacingDelay = time.Millisecond
	cfg.API.RateLimit.Enabled = false

	logger := newLogger(cfg, &bytes.Buffer{})
	m := metrics.NewMetrics("flow")
	comps, err := buildComponents(cfg, logger, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = comps.Close() })

	return api.NewServer(cfg.Server, cfg.API, comps.reddit, comps.insider,
		api.WithLogger(logger), api.WithMetrics(m), api.WithCloser(comps))
}

func get(t *testing.T, s *api.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router().ServeHTTP(w, req)
	return w
}

func TestFlow_FanOutMergesDefaultSubreddits(t *testing.T) {
	upstream := newFakeUpstream(t)
	server := newFlowServer(t, upstream)

	w := get(t, server, "/reddit")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Children []struct {
				Data struct {
					Subreddit string `json:"subreddit"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	var subs []string
	for _, c := range body.Data.Children {
		subs = append(subs, c.Data.Subreddit)
	}
	assert.Equal(t, []string{"pennystocks", "Shortsqueeze", "SqueezePlays"}, subs)

	w = get(t, server, "/reddit/trending")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, int32(1), upstream.tokenCalls.Load(), "token should be reused across requests")
	assert.Equal(t, int32(6), upstream.listings.Load())
}

func TestFlow_FanOutSkipsFailedSubreddit(t *testing.T) {
	upstream := newFakeUpstream(t)
	server := newFlowServer(t, upstream)

	w := get(t, server, "/reddit?subs=stocks,private")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subreddit":"stocks"`)
	assert.NotContains(t, w.Body.String(), "private")
}

func TestFlow_SubredditPassthrough(t *testing.T) {
	upstream := newFakeUpstream(t)
	server := newFlowServer(t, upstream)

	w := get(t, server, "/reddit/wallstreetbets")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"Listing"`)
	assert.Contains(t, w.Body.String(), `"subreddit":"wallstreetbets"`)

	w = get(t, server, "/reddit/private")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Reddit API error: 403")
}

func TestFlow_Search(t *testing.T) {
	upstream := newFakeUpstream(t)
	server := newFlowServer(t, upstream)

	w := get(t, server, "/reddit/search?q=GME")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"s1"`)
	assert.Contains(t, upstream.lastQuery.Load().(string), "q=%24GME")

	w = get(t, server, "/reddit/search?q=TOOLONGTICKER")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid ticker query")
}

func TestFlow_InsiderTradesMock(t *testing.T) {
	upstream := newFakeUpstream(t)
	server := newFlowServer(t, upstream)

	w := get(t, server, "/api/insider-trades")
	require.Equal(t, http.StatusOK, w.Code)

	var trades []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
	assert.NotEmpty(t, trades)
	assert.Equal(t, int32(0), upstream.tokenCalls.Load())
}
