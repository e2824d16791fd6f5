// Package app assembles the proxy from configuration.
package app

import (
	"context"

	"github.com/apex/log"

	"github.com/adeilh/animeproxy/api"
	"github.com/adeilh/animeproxy/cache"
	"github.com/adeilh/animeproxy/cache/memory"
	"github.com/adeilh/animeproxy/fetch"
	"github.com/adeilh/animeproxy/httpx"
	"github.com/adeilh/animeproxy/internal/config"
	ilog "github.com/adeilh/animeproxy/internal/log"
	"github.com/adeilh/animeproxy/internal/metrics"
	"github.com/adeilh/animeproxy/jikan"
)

type App struct {
	Config    config.Config
	Endpoints jikan.Endpoints
	Fetcher   *fetch.Fetcher
	Jikan     *jikan.Client
	Metrics   *metrics.Collector
	Server    *httpx.Server

	logger  log.Interface
	closers []func()
}

type Option func(*options)

type options struct {
	logger log.Interface
	sleep  fetch.SleepFunc
}

func WithLogger(logger log.Interface) Option {
	return func(o *options) { o.logger = logger }
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn fetch.SleepFunc) Option {
	return func(o *options) { o.sleep = fn }
}

// Build wires store, transport, fetcher, handlers and server from cfg.
func Build(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: log.Log}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	a := &App{
		Config:    cfg,
		Endpoints: jikan.NewEndpoints(cfg.Upstream.BaseURL),
		Metrics:   metrics.NewCollector(),
		logger:    o.logger,
	}

	var store cache.Store = cache.Noop{}
	if cfg.Cache.Enabled {
		mem := memory.NewStore(memory.Options{Capacity: cfg.Cache.Capacity, Sweep: cfg.Cache.Sweep})
		a.closers = append(a.closers, mem.Close)
		store = mem
	} else {
		o.logger.Warn("response cache disabled")
	}

	client := httpx.NewClient(
		httpx.WithClientTimeout(cfg.Upstream.Timeout.Std()),
		httpx.WithHeaders(upstreamHeaders(cfg.Upstream)),
		httpx.WithRateLimit(cfg.Upstream.RateLimit, cfg.Upstream.Burst),
	)

	fetchOpts := []fetch.Option{
		fetch.WithTTL(cfg.Cache.TTL.Std()),
		fetch.WithMaxAttempts(cfg.Upstream.MaxAttempts),
		fetch.WithBaseDelay(cfg.Upstream.Backoff.Std()),
		fetch.WithCoalescing(cfg.Upstream.Coalesce),
		fetch.WithObserver(fetch.Observers(ilog.NewFetchObserver(o.logger), a.Metrics)),
	}
	if o.sleep != nil {
		fetchOpts = append(fetchOpts, fetch.WithSleep(o.sleep))
	}
	a.Fetcher = fetch.New(store, client, fetchOpts...)
	a.Jikan = jikan.NewClient(a.Fetcher, a.Endpoints)

	serverOpts := []httpx.ServerOption{
		httpx.WithAddress(cfg.Server.Address),
		httpx.WithTimeouts(cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std()),
		httpx.WithShutdownTimeout(cfg.Server.ShutdownTimeout.Std()),
		httpx.WithLogger(o.logger),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := httpx.DefaultCORSConfig
		cors.AllowOrigins = cfg.Server.CORSOrigins
		serverOpts = append(serverOpts, httpx.WithCORS(&cors))
	}
	a.Server = httpx.NewServer(serverOpts...)
	a.Server.RegisterRoutes(api.NewHandler(a.Fetcher, a.Endpoints,
		api.WithLogger(o.logger),
		api.WithMetrics(a.Metrics.Handler()),
	).Register)

	return a, nil
}

func upstreamHeaders(u config.Upstream) map[string]string {
	headers := make(map[string]string, len(u.Headers)+1)
	for k, v := range u.Headers {
		headers[k] = v
	}
	if u.UserAgent != "" {
		headers["User-Agent"] = u.UserAgent
	}
	return headers
}

// Run serves until ctx is cancelled and releases the cache afterwards.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	a.logger.WithField("addr", a.Server.Address()).
		WithField("upstream", a.Endpoints.BaseURL()).
		Info("animeproxy listening")
	return a.Server.Start(ctx)
}

func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
}
