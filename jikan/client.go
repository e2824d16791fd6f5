package jikan

import (
	"context"
	"unicode/utf8"

	"github.com/adeilh/animeproxy/fetch"
)

// MinQueryLen is the shortest search term sent upstream, counted in runes.
const MinQueryLen = 2

// ShortQuery reports whether query is too short to search for.
func ShortQuery(query string) bool {
	return utf8.RuneCountInString(query) < MinQueryLen
}

// Client decodes upstream documents into the payload types. Every call goes
// through the fetcher, so it shares the cache and retry policy of the proxy.
type Client struct {
	fetcher   *fetch.Fetcher
	endpoints Endpoints
}

func NewClient(f *fetch.Fetcher, e Endpoints) *Client {
	return &Client{fetcher: f, endpoints: e}
}

func (c *Client) Anime(ctx context.Context, id string) (Anime, error) {
	resp, err := fetch.GetJSON[AnimeDetailResponse](ctx, c.fetcher, c.endpoints.Anime(id))
	return resp.Data, err
}

func (c *Client) Characters(ctx context.Context, id string) ([]Character, error) {
	resp, err := fetch.GetJSON[CharacterResponse](ctx, c.fetcher, c.endpoints.Characters(id))
	return resp.Data, err
}

func (c *Client) Episodes(ctx context.Context, id, page string) (EpisodeResponse, error) {
	return fetch.GetJSON[EpisodeResponse](ctx, c.fetcher, c.endpoints.Episodes(id, page))
}

func (c *Client) Genres(ctx context.Context) ([]Genre, error) {
	resp, err := fetch.GetJSON[GenreResponse](ctx, c.fetcher, c.endpoints.Genres())
	return resp.Data, err
}

// Search returns EmptySearch without a request when query is too short.
func (c *Client) Search(ctx context.Context, query, page string) (AnimeResponse, error) {
	if ShortQuery(query) {
		return EmptySearch(), nil
	}
	return fetch.GetJSON[AnimeResponse](ctx, c.fetcher, c.endpoints.Search(query, page))
}

func (c *Client) Top(ctx context.Context, filter, page string) (AnimeResponse, error) {
	return fetch.GetJSON[AnimeResponse](ctx, c.fetcher, c.endpoints.Top(filter, page))
}
