// Package api serves the /api routes by relaying cached upstream documents.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/apex/log"

	"github.com/adeilh/animeproxy/httpx"
	"github.com/adeilh/animeproxy/jikan"
)

// Fetcher is the part of *fetch.Fetcher the handlers need.
type Fetcher interface {
	GetWithRetry(ctx context.Context, url string) (json.RawMessage, error)
}

type Handler struct {
	fetcher   Fetcher
	endpoints jikan.Endpoints
	logger    log.Interface
	metrics   http.Handler
}

type Option func(*Handler)

func WithLogger(logger log.Interface) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(hd *Handler) { hd.metrics = h }
}

func NewHandler(fetcher Fetcher, endpoints jikan.Endpoints, opts ...Option) *Handler {
	h := &Handler{fetcher: fetcher, endpoints: endpoints, logger: log.Log}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register installs every route on a. It has the httpx.RouteRegistrar shape.
func (h *Handler) Register(a *httpx.App) {
	a.GET("/healthz", h.health)
	a.HEAD("/healthz", h.health)
	if h.metrics != nil {
		a.GET("/metrics", httpx.WrapHandler(h.metrics))
	}

	a.Group("/api").
		GET("/genres", h.genres).
		Routes(
			httpx.Route{Method: "GET", Path: "/anime/trending", Handler: h.trending},
			httpx.Route{Method: "GET", Path: "/anime/popular", Handler: h.popular},
			httpx.Route{Method: "GET", Path: "/anime/airing", Handler: h.airing},
			httpx.Route{Method: "GET", Path: "/anime/upcoming", Handler: h.upcoming},
			httpx.Route{Method: "GET", Path: "/anime/top", Handler: h.top},
			httpx.Route{Method: "GET", Path: "/anime/search", Handler: h.search},
			httpx.Route{Method: "GET", Path: "/anime/browse", Handler: h.browse},
			httpx.Route{Method: "GET", Path: "/anime/:id", Handler: h.anime},
			httpx.Route{Method: "GET", Path: "/anime/:id/characters", Handler: h.characters},
			httpx.Route{Method: "GET", Path: "/anime/:id/episodes", Handler: h.episodes},
		)
}

func (h *Handler) health(c httpx.Context) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(httpx.StatusOK)
	}
	return c.JSON(httpx.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) trending(c httpx.Context) error { return h.relay(c, h.endpoints.Trending()) }
func (h *Handler) popular(c httpx.Context) error  { return h.relay(c, h.endpoints.Popular()) }
func (h *Handler) airing(c httpx.Context) error   { return h.relay(c, h.endpoints.Airing()) }
func (h *Handler) upcoming(c httpx.Context) error { return h.relay(c, h.endpoints.Upcoming()) }
func (h *Handler) genres(c httpx.Context) error   { return h.relay(c, h.endpoints.Genres()) }

func (h *Handler) top(c httpx.Context) error {
	return h.relay(c, h.endpoints.Top(c.QueryParam("filter"), c.QueryParam("page")))
}

func (h *Handler) search(c httpx.Context) error {
	query := c.QueryParam("q")
	if jikan.ShortQuery(query) {
		return c.JSON(httpx.StatusOK, jikan.EmptySearch())
	}
	return h.relay(c, h.endpoints.Search(query, c.QueryParam("page")))
}

func (h *Handler) browse(c httpx.Context) error {
	return h.relay(c, h.endpoints.Browse(jikan.BrowseQuery{
		Genres:  c.QueryParam("genres"),
		Type:    c.QueryParam("type"),
		Status:  c.QueryParam("status"),
		OrderBy: c.QueryParam("order_by"),
		Page:    c.QueryParam("page"),
	}))
}

func (h *Handler) anime(c httpx.Context) error {
	id, err := animeID(c)
	if err != nil {
		return err
	}
	return h.relay(c, h.endpoints.Anime(id))
}

func (h *Handler) characters(c httpx.Context) error {
	id, err := animeID(c)
	if err != nil {
		return err
	}
	return h.relay(c, h.endpoints.Characters(id))
}

func (h *Handler) episodes(c httpx.Context) error {
	id, err := animeID(c)
	if err != nil {
		return err
	}
	return h.relay(c, h.endpoints.Episodes(id, c.QueryParam("page")))
}

func animeID(c httpx.Context) (string, error) {
	id := c.Param("id")
	if !jikan.ValidID(id) {
		return "", httpx.HTTPError(httpx.StatusBadRequest, "invalid anime id")
	}
	return id, nil
}

// relay writes the upstream body unchanged, or a 500 carrying the error text.
func (h *Handler) relay(c httpx.Context, url string) error {
	body, err := h.fetcher.GetWithRetry(c.Request().Context(), url)
	if err != nil {
		h.logger.WithError(err).WithField("url", url).Error("fetch failed")
		return c.JSON(httpx.StatusInternalError, map[string]string{"error": err.Error()})
	}
	return c.JSONBlob(httpx.StatusOK, body)
}
