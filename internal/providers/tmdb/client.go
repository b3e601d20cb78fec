// Package tmdb forwards movie and TV lookups to the metadata service and
// hands its JSON back untouched.
package tmdb

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/secrets"
	"github.com/wakakowasake/favthing/internal/upstream"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultLanguage = "ko-KR"
)

type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

type Client struct {
	baseURL  string
	language string
	secrets  secrets.Store
	upstream *upstream.Client
}

type Config struct {
	BaseURL  string
	Language string
	Secrets  secrets.Store
	Upstream *upstream.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		secrets:  cfg.Secrets,
		upstream: cfg.Upstream,
	}
}

func (c *Client) SearchMovies(ctx context.Context, query string, page int) (json.RawMessage, error) {
	return c.search(ctx, MediaMovie, query, page)
}

func (c *Client) SearchTV(ctx context.Context, query string, page int) (json.RawMessage, error) {
	return c.search(ctx, MediaTV, query, page)
}

// search treats page 0 as the first page; negative pages are rejected.
func (c *Client) search(ctx context.Context, media MediaType, query string, page int) (json.RawMessage, error) {
	if page < 0 {
		return nil, domain.InvalidRequest("page must be a positive integer")
	}
	if page == 0 {
		page = 1
	}
	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"api_key":  {apiKey},
		"query":    {query},
		"page":     {strconv.Itoa(page)},
		"language": {c.language},
	}
	return c.upstream.FetchRaw(ctx, upstream.Request{
		URL:      c.baseURL + "/search/" + string(media) + "?" + params.Encode(),
		CacheKey: "search:" + string(media) + ":" + c.language + ":" + strconv.Itoa(page) + ":" + query,
	})
}

// TVDetail fetches one series with its credits appended.
func (c *Client) TVDetail(ctx context.Context, id int64) (json.RawMessage, error) {
	if id <= 0 {
		return nil, domain.InvalidRequest("TV ID must be a positive integer")
	}
	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"api_key":            {apiKey},
		"language":           {c.language},
		"append_to_response": {"credits"},
	}
	seriesID := strconv.FormatInt(id, 10)
	return c.upstream.FetchRaw(ctx, upstream.Request{
		URL:      c.baseURL + "/tv/" + seriesID + "?" + params.Encode(),
		CacheKey: "tv:" + c.language + ":" + seriesID,
	})
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	return secrets.Require(ctx, c.secrets, secrets.TMDBAPIKey, "TMDB API key not configured")
}
