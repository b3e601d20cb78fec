// Package lastfm looks up album artwork in the music catalogue by track,
// by album and by artist.
package lastfm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/secrets"
	"github.com/wakakowasake/favthing/internal/upstream"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// errNotFound is the catalogue's "no such track/album/artist" code. It means
// an empty answer, not a failed call.
const errNotFound = 6

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

// APIKey returns the configured key, or "" when enrichment is disabled.
func (c *Client) APIKey(ctx context.Context) (string, error) {
	if c.secrets == nil {
		return "", nil
	}
	return c.secrets.Get(ctx, secrets.LastFMAPIKey)
}

// TrackArt returns the largest album image of the album the track is on.
func (c *Client) TrackArt(ctx context.Context, apiKey, artist, track string) (string, error) {
	var response trackInfoResponse
	if err := c.call(ctx, apiKey, "track.getinfo", url.Values{"artist": {artist}, "track": {track}}, &response); err != nil {
		return "", err
	}
	if response.Track == nil || response.Track.Album == nil {
		return "", nil
	}
	return largest(response.Track.Album.Image), nil
}

// AlbumArt returns the largest image of the best album.search match.
func (c *Client) AlbumArt(ctx context.Context, apiKey, album string) (string, error) {
	var response albumSearchResponse
	if err := c.call(ctx, apiKey, "album.search", url.Values{"album": {album}}, &response); err != nil {
		return "", err
	}
	if response.Results == nil || len(response.Results.AlbumMatches.Album) == 0 {
		return "", nil
	}
	return largest(response.Results.AlbumMatches.Album[0].Image), nil
}

// ArtistArt returns the largest artist image.
func (c *Client) ArtistArt(ctx context.Context, apiKey, artist string) (string, error) {
	var response artistInfoResponse
	if err := c.call(ctx, apiKey, "artist.getinfo", url.Values{"artist": {artist}}, &response); err != nil {
		return "", err
	}
	if response.Artist == nil {
		return "", nil
	}
	return largest(response.Artist.Image), nil
}

func (c *Client) call(ctx context.Context, apiKey, method string, params url.Values, dest apiResponse) error {
	params.Set("method", method)
	params.Set("api_key", apiKey)
	params.Set("format", "json")

	cacheParams := url.Values{}
	for key, values := range params {
		if key != "api_key" {
			cacheParams[key] = values
		}
	}
	err := c.upstream.FetchJSON(ctx, upstream.Request{
		URL:      c.baseURL + "?" + params.Encode(),
		CacheKey: cacheParams.Encode(),
	}, dest)
	if err != nil {
		return err
	}
	if code, message := dest.apiError(); code != 0 && code != errNotFound {
		return &domain.UpstreamError{
			Upstream: c.upstream.Name(),
			Err:      fmt.Errorf("%s: error %d: %s", method, code, message),
		}
	}
	return nil
}
