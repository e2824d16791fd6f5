package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/adeilh/animeproxy/httpx"
	"github.com/adeilh/animeproxy/internal/config"
)

type upstream struct {
	*httpx.TestServer
	calls atomic.Int32
	hdr   atomic.Value
}

func newUpstream(t *testing.T, status func(n int32) int) *upstream {
	t.Helper()
	u := &upstream{}
	srv := httpx.NewServer(httpx.WithLogger(&log.Logger{Handler: memory.New(), Level: log.InfoLevel}))
	srv.RegisterRoutes(func(a *httpx.App) {
		a.GET("/v4/anime/:id/full", func(c httpx.Context) error {
			n := u.calls.Add(1)
			u.hdr.Store(c.Request().Header.Clone())
			code := status(n)
			if code != httpx.StatusOK {
				return c.JSONBlob(code, []byte(`{"status":`+strconv.Itoa(code)+`}`))
			}
			return c.JSONBlob(httpx.StatusOK, []byte(`{"data":{"mal_id":`+c.Param("id")+`}}`))
		})
	})
	u.TestServer = httpx.NewTestServer(srv.Handler())
	t.Cleanup(u.Close)
	return u
}

func testConfig(upstreamURL string) config.Config {
	cfg := config.Default()
	cfg.Upstream.BaseURL = upstreamURL + "/v4"
	cfg.Upstream.RateLimit = 0
	cfg.Upstream.Backoff = config.Duration(time.Millisecond)
	return cfg
}

func build(t *testing.T, cfg config.Config) (*App, *httpx.TestServer, *memory.Handler) {
	t.Helper()
	logs := memory.New()
	a, err := Build(cfg,
		WithLogger(&log.Logger{Handler: logs, Level: log.DebugLevel}),
		WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ts := httpx.NewTestServer(a.Server.Handler())
	t.Cleanup(ts.Close)
	return a, ts, logs
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

func TestBuildServesCachedResponses(t *testing.T) {
	up := newUpstream(t, func(int32) int { return httpx.StatusOK })
	_, ts, _ := build(t, testConfig(up.BaseURL()))

	for i := 0; i < 3; i++ {
		status, body := get(t, ts.BaseURL()+"/api/anime/1")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, int64(1), gjson.Get(body, "data.mal_id").Int())
	}
	assert.Equal(t, int32(1), up.calls.Load())
	hdr := up.hdr.Load().(http.Header)
	assert.NotContains(t, hdr.Get("User-Agent"), "animeproxy")
	assert.Empty(t, hdr.Get("X-Client"))

	_, metrics := get(t, ts.BaseURL()+"/metrics")
	assert.Contains(t, metrics, "animeproxy_cache_hits_total 2")
	assert.Contains(t, metrics, "animeproxy_cache_misses_total 1")
	assert.Contains(t, metrics, `animeproxy_upstream_requests_total{status="200"} 1`)
}

func TestBuildSendsConfiguredHeaders(t *testing.T) {
	up := newUpstream(t, func(int32) int { return httpx.StatusOK })
	cfg := testConfig(up.BaseURL())
	cfg.Upstream.UserAgent = "animeproxy/test"
	cfg.Upstream.Headers = map[string]string{"X-Client": "web"}
	_, ts, _ := build(t, cfg)

	status, _ := get(t, ts.BaseURL()+"/api/anime/1")
	require.Equal(t, http.StatusOK, status)
	hdr := up.hdr.Load().(http.Header)
	assert.Equal(t, "animeproxy/test", hdr.Get("User-Agent"))
	assert.Equal(t, "web", hdr.Get("X-Client"))
}

func TestBuildRetriesRateLimited(t *testing.T) {
	up := newUpstream(t, func(n int32) int {
		if n < 3 {
			return httpx.StatusTooManyRequests
		}
		return httpx.StatusOK
	})
	_, ts, logs := build(t, testConfig(up.BaseURL()))

	status, _ := get(t, ts.BaseURL()+"/api/anime/5")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(3), up.calls.Load())

	var retries int
	for _, e := range logs.Entries {
		if e.Message == "retrying after backoff" {
			retries++
		}
	}
	assert.Equal(t, 2, retries)

	_, metrics := get(t, ts.BaseURL()+"/metrics")
	assert.Contains(t, metrics, "animeproxy_upstream_retries_total 2")
}

func TestBuildExhaustedRetriesReturn500(t *testing.T) {
	up := newUpstream(t, func(int32) int { return httpx.StatusTooManyRequests })
	_, ts, _ := build(t, testConfig(up.BaseURL()))

	status, body := get(t, ts.BaseURL()+"/api/anime/9")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, gjson.Get(body, "error").String(), "status 429")
	assert.Equal(t, int32(3), up.calls.Load())
}

func TestBuildCacheDisabled(t *testing.T) {
	up := newUpstream(t, func(int32) int { return httpx.StatusOK })
	cfg := testConfig(up.BaseURL())
	cfg.Cache.Enabled = false
	_, ts, logs := build(t, cfg)

	get(t, ts.BaseURL()+"/api/anime/1")
	get(t, ts.BaseURL()+"/api/anime/1")
	assert.Equal(t, int32(2), up.calls.Load())
	require.NotEmpty(t, logs.Entries)
	assert.Equal(t, "response cache disabled", logs.Entries[0].Message)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Upstream.MaxAttempts = 0
	_, err := Build(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.Server.Address = addr
	a, err := Build(cfg, WithLogger(&log.Logger{Handler: memory.New(), Level: log.InfoLevel}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
