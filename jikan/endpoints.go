// Package jikan builds request URLs for the Jikan v4 API and models the
// payloads it returns.
package jikan

import (
	"net/url"
	"strings"
)

const DefaultBaseURL = "https://api.jikan.moe/v4"

const (
	listLimit   = "25"
	searchLimit = "24"
	browseLimit = "20"

	defaultTopFilter = "bypopularity"
	defaultPage      = "1"
)

// Endpoints turns logical requests into absolute upstream URLs. The URL is
// also the cache key, so parameter order is fixed for each endpoint.
type Endpoints struct {
	base string
}

// NewEndpoints returns Endpoints rooted at base; empty means DefaultBaseURL.
func NewEndpoints(base string) Endpoints {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return Endpoints{base: base}
}

func (e Endpoints) BaseURL() string { return e.base }

func (e Endpoints) Trending() string {
	return e.base + "/top/anime?filter=airing&limit=" + listLimit
}

func (e Endpoints) Popular() string {
	return e.base + "/top/anime?filter=bypopularity&limit=" + listLimit
}

func (e Endpoints) Airing() string {
	return e.base + "/seasons/now?limit=" + listLimit
}

func (e Endpoints) Upcoming() string {
	return e.base + "/seasons/upcoming?limit=" + listLimit
}

// Top lists top anime by filter; empty filter and page take their defaults.
func (e Endpoints) Top(filter, page string) string {
	return e.base + "/top/anime?filter=" + q(or(filter, defaultTopFilter)) +
		"&page=" + q(or(page, defaultPage)) + "&limit=" + listLimit
}

// Search queries anime titles. Callers decide whether a query is long enough.
func (e Endpoints) Search(query, page string) string {
	return e.base + "/anime?q=" + q(query) + "&page=" + q(or(page, defaultPage)) +
		"&limit=" + searchLimit + "&sfw=true"
}

// BrowseQuery holds the optional browse filters.
type BrowseQuery struct {
	Genres  string
	Type    string
	Status  string
	OrderBy string
	Page    string
}

func (e Endpoints) Browse(bq BrowseQuery) string {
	var b strings.Builder
	b.WriteString(e.base)
	b.WriteString("/anime?page=")
	b.WriteString(q(or(bq.Page, defaultPage)))
	b.WriteString("&limit=" + browseLimit + "&sfw=true")
	if bq.Genres != "" {
		b.WriteString("&genres=" + q(bq.Genres))
	}
	if bq.Type != "" {
		b.WriteString("&type=" + q(bq.Type))
	}
	if bq.Status != "" {
		b.WriteString("&status=" + q(bq.Status))
	}
	if bq.OrderBy != "" {
		b.WriteString("&order_by=" + q(bq.OrderBy) + "&sort=desc")
	}
	return b.String()
}

// ValidID reports whether id is a MAL id: a non-empty run of ASCII digits.
// Anything else, "." and ".." included, must not reach the path builders.
func ValidID(id string) bool {
	if id == "" || len(id) > 12 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

func (e Endpoints) Anime(id string) string {
	return e.base + "/anime/" + url.PathEscape(id) + "/full"
}

func (e Endpoints) Characters(id string) string {
	return e.base + "/anime/" + url.PathEscape(id) + "/characters"
}

func (e Endpoints) Episodes(id, page string) string {
	return e.base + "/anime/" + url.PathEscape(id) + "/episodes?page=" + q(or(page, defaultPage))
}

func (e Endpoints) Genres() string {
	return e.base + "/genres/anime"
}

// Resolve turns a path relative to the base URL ("/anime/1/full") into an
// absolute URL; absolute inputs are returned unchanged.
func (e Endpoints) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return e.base + "/" + strings.TrimLeft(path, "/")
}

func q(s string) string { return url.QueryEscape(s) }

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
