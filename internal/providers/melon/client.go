// Package melon scrapes the chart service's song search page.
package melon

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/upstream"
)

const (
	defaultBaseURL = "https://www.melon.com/search/song/index.htm"
	browserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

type Client struct {
	baseURL  string
	upstream *upstream.Client
	retry    upstream.RetryConfig
	logger   *slog.Logger
}

type Config struct {
	BaseURL  string
	Upstream *upstream.Client
	// Retry defaults to three attempts with a one second base delay.
	Retry  upstream.RetryConfig
	Logger *slog.Logger
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = upstream.DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  baseURL,
		upstream: cfg.Upstream,
		retry:    retry,
		logger:   logger,
	}
}

// SearchSongs returns the songs listed on the search page in page order.
// Transient failures are retried; the last error is returned as-is.
func (c *Client) SearchSongs(ctx context.Context, query string) ([]domain.Song, error) {
	params := url.Values{
		"q":           {query},
		"section":     {"all"},
		"searchGnbYn": {"Y"},
	}
	pageURL := c.baseURL + "?" + params.Encode()
	header := http.Header{}
	header.Set("User-Agent", browserAgent)
	header.Set("Accept", "text/html,application/xhtml+xml")
	header.Set("Accept-Language", "ko-KR,ko;q=0.9")

	retry := c.retry
	retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger.Debug("song search attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	var songs []domain.Song
	err := upstream.RetryWithBackoff(ctx, retry, func() error {
		body, err := c.upstream.Fetch(ctx, upstream.Request{
			URL:      pageURL,
			Header:   header,
			CacheKey: "song:" + query,
		})
		if err != nil {
			return err
		}
		parsed, err := ParseSearchPage(body)
		if err != nil {
			return &domain.UpstreamError{Upstream: c.upstream.Name(), Err: err}
		}
		songs = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return songs, nil
}
