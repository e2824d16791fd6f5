// Package fetch reads JSON documents from a rate-limited upstream API through
// a read-through cache keyed by the exact request URL, retrying 429 responses
// with linear backoff.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/adeilh/animeproxy/cache"
	"github.com/adeilh/animeproxy/cache/memory"
)

// Transport performs a plain GET against an absolute URL. A non-nil error
// means no status was obtained.
type Transport interface {
	Fetch(ctx context.Context, url string) (status int, body []byte, err error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, url string) (int, []byte, error)

func (fn TransportFunc) Fetch(ctx context.Context, url string) (int, []byte, error) {
	return fn(ctx, url)
}

// Fetcher owns a cache store and the transport used to fill it.
type Fetcher struct {
	store     cache.Store
	transport Transport
	opts      Options
	group     singleflight.Group
}

// New builds a Fetcher. A nil store gets an unbounded in-memory store.
func New(store cache.Store, transport Transport, opts ...Option) *Fetcher {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if store == nil {
		store = memory.NewStore(memory.Options{})
	}
	return &Fetcher{store: store, transport: transport, opts: cfg}
}

// Get returns the body for url, served from the cache when an entry younger
// than the TTL exists and fetched upstream otherwise. Only successful, valid
// JSON bodies are cached.
func (f *Fetcher) Get(ctx context.Context, url string) (json.RawMessage, error) {
	if body, ok := f.cached(ctx, url); ok {
		f.opts.Observer.CacheHit(url)
		return body, nil
	}
	f.opts.Observer.CacheMiss(url)

	if !f.opts.Coalesce {
		return f.load(ctx, url)
	}

	// The shared load outlives any single caller; the transport timeout
	// bounds it. Each caller still stops waiting when its own ctx is done.
	flightCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(url, func() (any, error) {
		// A caller that missed just before the previous flight stored its
		// result would otherwise start a second request.
		if body, ok := f.cached(flightCtx, url); ok {
			return body, nil
		}
		return f.load(flightCtx, url)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

// GetWithRetry calls Get up to MaxAttempts times. Only upstream 429 responses
// are retried, waiting BaseDelay*(n) before attempt n+1. Any other error, and
// the last 429 once attempts are exhausted, is returned as is.
func (f *Fetcher) GetWithRetry(ctx context.Context, url string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < f.opts.MaxAttempts; attempt++ {
		body, err := f.Get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRateLimited(err) || attempt == f.opts.MaxAttempts-1 {
			return nil, err
		}

		delay := f.opts.BaseDelay * time.Duration(attempt+1)
		f.opts.Observer.Retry(url, attempt+1, delay)
		if err := f.opts.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// GetJSON fetches url with retry and decodes the body into T.
func GetJSON[T any](ctx context.Context, f *Fetcher, url string) (T, error) {
	var out T
	body, err := f.GetWithRetry(ctx, url)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, &DecodeError{URL: url, Err: err}
	}
	return out, nil
}

func (f *Fetcher) cached(ctx context.Context, url string) (json.RawMessage, bool) {
	body, err := f.store.Get(ctx, url)
	if err != nil {
		// Store failures other than a miss degrade to a miss.
		return nil, false
	}
	return body, true
}

func (f *Fetcher) load(ctx context.Context, url string) (json.RawMessage, error) {
	if f.transport == nil {
		return nil, &NetworkError{URL: url, Err: errors.New("no transport configured")}
	}

	start := time.Now()
	status, body, err := f.transport.Fetch(ctx, url)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	f.opts.Observer.Upstream(url, status, time.Since(start))

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &UpstreamError{URL: url, Status: status}
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &DecodeError{URL: url, Err: err}
	}

	// A failed write still returns the fresh body to the caller.
	_ = f.store.Set(ctx, url, raw, f.opts.TTL)
	return raw, nil
}
