package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/adeilh/animeproxy/fetch"
	"github.com/adeilh/animeproxy/httpx"
	"github.com/adeilh/animeproxy/jikan"
)

const base = "https://upstream.test/v4"

type recordingFetcher struct {
	mu   sync.Mutex
	urls []string
	body json.RawMessage
	err  error
}

func (r *recordingFetcher) GetWithRetry(_ context.Context, url string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	if r.err != nil {
		return nil, r.err
	}
	return r.body, nil
}

func (r *recordingFetcher) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

func newTestServer(t *testing.T, f Fetcher, opts ...Option) (*httpx.TestServer, *memory.Handler) {
	t.Helper()
	logs := memory.New()
	logger := &log.Logger{Handler: logs, Level: log.DebugLevel}

	server := httpx.NewServer(httpx.WithLogger(logger))
	server.RegisterRoutes(NewHandler(f, jikan.NewEndpoints(base), append([]Option{WithLogger(logger)}, opts...)...).Register)

	ts := httpx.NewTestServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, logs
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRoutesBuildUpstreamURLs(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/anime/trending", base + "/top/anime?filter=airing&limit=25"},
		{"/api/anime/popular", base + "/top/anime?filter=bypopularity&limit=25"},
		{"/api/anime/airing", base + "/seasons/now?limit=25"},
		{"/api/anime/upcoming", base + "/seasons/upcoming?limit=25"},
		{"/api/anime/top", base + "/top/anime?filter=bypopularity&page=1&limit=25"},
		{"/api/anime/top?filter=favorite&page=2", base + "/top/anime?filter=favorite&page=2&limit=25"},
		{"/api/anime/search?q=naruto", base + "/anime?q=naruto&page=1&limit=24&sfw=true"},
		{"/api/anime/search?q=one%20piece&page=3", base + "/anime?q=one+piece&page=3&limit=24&sfw=true"},
		{"/api/anime/browse", base + "/anime?page=1&limit=20&sfw=true"},
		{
			"/api/anime/browse?genres=1,2&type=movie&status=complete&order_by=score&page=2",
			base + "/anime?page=2&limit=20&sfw=true&genres=1%2C2&type=movie&status=complete&order_by=score&sort=desc",
		},
		{"/api/anime/21", base + "/anime/21/full"},
		{"/api/anime/21/characters", base + "/anime/21/characters"},
		{"/api/anime/21/episodes", base + "/anime/21/episodes?page=1"},
		{"/api/anime/21/episodes?page=4", base + "/anime/21/episodes?page=4"},
		{"/api/genres", base + "/genres/anime"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := &recordingFetcher{body: json.RawMessage(`{"data":[]}`)}
			ts, _ := newTestServer(t, f)

			status, body := get(t, ts.BaseURL()+tt.path)
			assert.Equal(t, http.StatusOK, status)
			assert.JSONEq(t, `{"data":[]}`, body)
			assert.Equal(t, []string{tt.want}, f.calls())
		})
	}
}

func TestSearchShortQueryShortCircuits(t *testing.T) {
	for _, path := range []string{"/api/anime/search", "/api/anime/search?q=a", "/api/anime/search?q=%E6%97%A5"} {
		f := &recordingFetcher{}
		ts, _ := newTestServer(t, f)

		status, body := get(t, ts.BaseURL()+path)
		assert.Equal(t, http.StatusOK, status, path)
		assert.JSONEq(t, `{"data":[],"pagination":{"last_visible_page":0,"has_next_page":false}}`, body, path)
		assert.Empty(t, f.calls(), path)
	}

	// two runes, even when multi-byte, go upstream
	f := &recordingFetcher{body: json.RawMessage(`{}`)}
	ts, _ := newTestServer(t, f)
	status, _ := get(t, ts.BaseURL()+"/api/anime/search?q=%E6%97%A5%E6%9C%AC")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, f.calls(), 1)
}

func TestErrorsBecome500Envelope(t *testing.T) {
	f := &recordingFetcher{err: &fetch.UpstreamError{URL: base + "/anime/1/full", Status: http.StatusTooManyRequests}}
	ts, logs := newTestServer(t, f)

	status, body := get(t, ts.BaseURL()+"/api/anime/1")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "upstream: GET "+base+"/anime/1/full: status 429", gjson.Get(body, "error").String())

	var found bool
	for _, e := range logs.Entries {
		if e.Message == "fetch failed" {
			found = true
			assert.Equal(t, log.ErrorLevel, e.Level)
			assert.Equal(t, base+"/anime/1/full", e.Fields.Get("url"))
		}
	}
	assert.True(t, found, "handler should log the failure")
}

func TestInvalidAnimeIDRejected(t *testing.T) {
	f := &recordingFetcher{body: json.RawMessage(`{}`)}
	ts, _ := newTestServer(t, f)

	for _, path := range []string{"/api/anime/abc", "/api/anime/1x/characters", "/api/anime/-1/episodes"} {
		status, body := get(t, ts.BaseURL()+path)
		assert.Equal(t, http.StatusBadRequest, status, path)
		assert.Equal(t, "invalid anime id", gjson.Get(body, "error").String(), path)
	}
	assert.Empty(t, f.calls())
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, &recordingFetcher{})

	status, body := get(t, ts.BaseURL()+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", gjson.Get(body, "status").String())

	resp, err := http.Head(ts.BaseURL() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsMountedOnlyWhenConfigured(t *testing.T) {
	ts, _ := newTestServer(t, &recordingFetcher{})
	status, _ := get(t, ts.BaseURL()+"/metrics")
	assert.Equal(t, http.StatusNotFound, status)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "animeproxy_cache_hits_total 0\n")
	})
	ts, _ = newTestServer(t, &recordingFetcher{}, WithMetrics(metrics))
	status, body := get(t, ts.BaseURL()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "animeproxy_cache_hits_total")
}

// A real fetcher against a fake upstream: the second request is a cache hit
// and a 429 is retried before succeeding.
func TestRelayThroughFetcher(t *testing.T) {
	var hits atomic.Int32
	upstream := httpx.NewServer(httpx.WithLogger(&log.Logger{Handler: memory.New(), Level: log.InfoLevel}))
	upstream.RegisterRoutes(func(a *httpx.App) {
		a.GET("/v4/anime/:id/full", func(c httpx.Context) error {
			if hits.Add(1) == 1 {
				return c.JSONBlob(httpx.StatusTooManyRequests, []byte(`{"status":429}`))
			}
			return c.JSONBlob(httpx.StatusOK, []byte(`{"data":{"mal_id":`+c.Param("id")+`,"title":"Cowboy Bebop"}}`))
		})
	})
	up := httpx.NewTestServer(upstream.Handler())
	defer up.Close()

	var (
		mu    sync.Mutex
		slept []time.Duration
	)
	fetcher := fetch.New(nil, httpx.NewClient(),
		fetch.WithSleep(func(_ context.Context, d time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			slept = append(slept, d)
			return nil
		}),
	)

	server := httpx.NewServer(httpx.WithLogger(&log.Logger{Handler: memory.New(), Level: log.InfoLevel}))
	server.RegisterRoutes(NewHandler(fetcher, jikan.NewEndpoints(up.BaseURL()+"/v4")).Register)
	ts := httpx.NewTestServer(server.Handler())
	defer ts.Close()

	for i := 0; i < 2; i++ {
		status, body := get(t, ts.BaseURL()+"/api/anime/1")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, int64(1), gjson.Get(body, "data.mal_id").Int())
		assert.Equal(t, "Cowboy Bebop", gjson.Get(body, "data.title").String())
	}
	assert.Equal(t, int32(2), hits.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{time.Second}, slept)
}
