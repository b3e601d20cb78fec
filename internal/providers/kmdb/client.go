package kmdb

import (
	"context"
	"net/url"
	"strings"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/secrets"
	"github.com/wakakowasake/favthing/internal/upstream"
)

const (
	defaultBaseURL = "http://api.koreafilm.or.kr/openapi-data2/wisenut/search_api/search_json2.jsp"
	collectionName = "kmdb_new2"
	listCount      = "20"
)

type Config struct {
	BaseURL  string
	Secrets  secrets.Store
	Upstream *upstream.Client
}

type Client struct {
	baseURL  string
	secrets  secrets.Store
	upstream *upstream.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		secrets:  cfg.Secrets,
		upstream: cfg.Upstream,
	}
}

// SearchMovies queries the film database and normalizes every record.
func (c *Client) SearchMovies(ctx context.Context, query string) (domain.MovieSearchResult, error) {
	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return domain.MovieSearchResult{}, err
	}

	params := url.Values{
		"collection": {collectionName},
		"query":      {query},
		"detail":     {"Y"},
		"listCount":  {listCount},
		"ServiceKey": {apiKey},
	}
	var response searchResponse
	err = c.upstream.FetchJSON(ctx, upstream.Request{
		URL:      c.baseURL + "?" + params.Encode(),
		CacheKey: "movie:" + query,
	}, &response)
	if err != nil {
		return domain.MovieSearchResult{}, err
	}
	return normalizeResponse(response), nil
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	return secrets.Require(ctx, c.secrets, secrets.KMDBAPIKey, "KMDB API key not configured")
}
