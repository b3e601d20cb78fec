// Package upstream is the shared outbound path for every third-party API:
// one GET with a deadline, status and body checks, error wrapping into
// domain.UpstreamError, diagnostics, and an optional response cache.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/metrics"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "favthing-search/1.0"
	maxBodyBytes     = 4 << 20
	maxErrorBody     = 512
)

type Config struct {
	// Name labels errors, logs and metrics, e.g. "KMDB".
	Name       string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Monitor    *Monitor
	Cache      Cache
	CacheTTL   time.Duration
	Logger     *slog.Logger
}

type Client struct {
	name      string
	timeout   time.Duration
	userAgent string
	http      *http.Client
	monitor   *Monitor
	cache     Cache
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// Request describes one outbound GET. CacheKey identifies the request
// without its credentials; leave it empty to bypass the cache.
type Request struct {
	URL      string
	Header   http.Header
	CacheKey string
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := strings.TrimSpace(cfg.Name)
	cfg.Monitor.Register(name)
	return &Client{
		name:      name,
		timeout:   timeout,
		userAgent: userAgent,
		http:      httpClient,
		monitor:   cfg.Monitor,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		logger:    logger,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Fetch performs the request and returns the body of a 2xx response.
// Every failure comes back as *domain.UpstreamError.
func (c *Client) Fetch(ctx context.Context, request Request) ([]byte, error) {
	if body, ok := c.cacheLookup(ctx, request.CacheKey); ok {
		return body, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startedAt := time.Now()
	body, err := c.do(callCtx, request)
	latency := time.Since(startedAt)
	c.monitor.Record(c.name, err, latency)

	if err != nil {
		c.logger.Warn("upstream request failed",
			slog.String("upstream", c.name),
			slog.String("url", redactURL(request.URL)),
			slog.Int64("durationMs", latency.Milliseconds()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	c.logger.Debug("upstream request completed",
		slog.String("upstream", c.name),
		slog.String("url", redactURL(request.URL)),
		slog.Int64("durationMs", latency.Milliseconds()),
		slog.Int("bytes", len(body)),
	)
	c.cacheStore(ctx, request.CacheKey, body)
	return body, nil
}

// FetchJSON decodes a successful response into dest.
func (c *Client) FetchJSON(ctx context.Context, request Request, dest any) error {
	body, err := c.Fetch(ctx, request)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &domain.UpstreamError{Upstream: c.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// FetchRaw returns the response body untouched after checking it is JSON.
func (c *Client) FetchRaw(ctx context.Context, request Request) (json.RawMessage, error) {
	body, err := c.Fetch(ctx, request)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &domain.UpstreamError{Upstream: c.name, Err: fmt.Errorf("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, request Request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		return nil, &domain.UpstreamError{Upstream: c.name, Err: fmt.Errorf("build request: %w", err)}
	}
	for key, values := range request.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Upstream: c.name, Err: stripURLError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.UpstreamError{
			Upstream: c.name,
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.UpstreamError{Upstream: c.name, Err: fmt.Errorf("read response: %w", err)}
	}
	return body, nil
}

func (c *Client) cacheLookup(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil || c.cacheTTL <= 0 || key == "" {
		return nil, false
	}
	body, ok, err := c.cache.Get(ctx, c.cacheKey(key))
	if err != nil {
		c.logger.Warn("upstream cache read failed", slog.String("upstream", c.name), slog.String("error", err.Error()))
		return nil, false
	}
	label := strings.ToLower(c.name)
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues(label).Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.WithLabelValues(label).Inc()
	return body, true
}

func (c *Client) cacheStore(ctx context.Context, key string, body []byte) {
	if c.cache == nil || c.cacheTTL <= 0 || key == "" {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(key), body, c.cacheTTL); err != nil {
		c.logger.Warn("upstream cache write failed", slog.String("upstream", c.name), slog.String("error", err.Error()))
	}
}

func (c *Client) cacheKey(key string) string {
	return strings.ToLower(c.name) + ":" + key
}

// stripURLError drops the request URL from transport errors; it may carry
// a credential in its query string.
func stripURLError(err error) error {
	if urlErr, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	parsed.RawQuery = ""
	parsed.User = nil
	return parsed.String()
}
