package naver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/secrets"
	"github.com/wakakowasake/favthing/internal/upstream"
)

const (
	defaultBaseURL = "https://openapi.naver.com/v1/search/book.json"
	defaultDisplay = 20
	defaultStart   = 1
	maxDisplay     = 100
	maxStart       = 1000
	missingMessage = "Naver API credentials not configured"
)

type Client struct {
	baseURL  string
	secrets  secrets.Store
	upstream *upstream.Client
}

type Config struct {
	BaseURL  string
	Secrets  secrets.Store
	Upstream *upstream.Client
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

// SearchBooks sends the query with the client id/secret headers and returns
// the book service's JSON as-is.
func (c *Client) SearchBooks(ctx context.Context, query domain.BookQuery) (json.RawMessage, error) {
	if query.Display < 0 || query.Display > maxDisplay {
		return nil, domain.InvalidRequest("display must be between 1 and 100")
	}
	if query.Start < 0 || query.Start > maxStart {
		return nil, domain.InvalidRequest("start must be between 1 and 1000")
	}
	clientID, err := secrets.Require(ctx, c.secrets, secrets.NaverClientID, missingMessage)
	if err != nil {
		return nil, err
	}
	clientSecret, err := secrets.Require(ctx, c.secrets, secrets.NaverClientSecret, missingMessage)
	if err != nil {
		return nil, err
	}

	display := query.Display
	if display <= 0 {
		display = defaultDisplay
	}
	start := query.Start
	if start <= 0 {
		start = defaultStart
	}
	params := url.Values{
		"query":   {query.Query},
		"display": {strconv.Itoa(display)},
		"start":   {strconv.Itoa(start)},
		"sort":    {upstreamSort(query.Sort)},
	}
	header := http.Header{}
	header.Set("X-Naver-Client-Id", clientID)
	header.Set("X-Naver-Client-Secret", clientSecret)

	encoded := params.Encode()
	return c.upstream.FetchRaw(ctx, upstream.Request{
		URL:      c.baseURL + "?" + encoded,
		Header:   header,
		CacheKey: "book:" + encoded,
	})
}

func upstreamSort(sort domain.BookSort) string {
	if sort == domain.BookSortDate {
		return "date"
	}
	return "sim"
}
