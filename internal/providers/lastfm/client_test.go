package lastfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/secrets"
	"github.com/wakakowasake/favthing/internal/upstream"
)

func newStub(t *testing.T, handler func(method string, w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "fm-key", r.URL.Query().Get("api_key"))
		handler(r.URL.Query().Get("method"), w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:  srv.URL,
		Upstream: upstream.New(upstream.Config{Name: "LastFM"}),
	})
}

func TestTrackArtTakesLastImage(t *testing.T) {
	client := newStub(t, func(method string, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track.getinfo", method)
		assert.Equal(t, "아이유", r.URL.Query().Get("artist"))
		assert.Equal(t, "좋은 날", r.URL.Query().Get("track"))
		_, _ = w.Write([]byte(`{"track":{"album":{"image":[
			{"#text":"http://img/s.png","size":"small"},
			{"#text":"http://img/m.png","size":"medium"},
			{"#text":"http://img/xl.png","size":"extralarge"}]}}}`))
	})

	art, err := client.TrackArt(context.Background(), "fm-key", "아이유", "좋은 날")
	require.NoError(t, err)
	assert.Equal(t, "http://img/xl.png", art)
}

func TestTrackArtWithoutAlbum(t *testing.T) {
	client := newStub(t, func(method string, w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"track":{"name":"x"}}`))
	})
	art, err := client.TrackArt(context.Background(), "fm-key", "a", "b")
	require.NoError(t, err)
	assert.Empty(t, art)
}

func TestAlbumArtUsesFirstMatch(t *testing.T) {
	client := newStub(t, func(method string, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "album.search", method)
		assert.Equal(t, "Real", r.URL.Query().Get("album"))
		_, _ = w.Write([]byte(`{"results":{"albummatches":{"album":[
			{"name":"Real","image":[{"#text":"http://a/1.png"},{"#text":"http://a/2.png"}]},
			{"name":"Other","image":[{"#text":"http://b/1.png"}]}]}}}`))
	})
	art, err := client.AlbumArt(context.Background(), "fm-key", "Real")
	require.NoError(t, err)
	assert.Equal(t, "http://a/2.png", art)
}

func TestArtistArtEmptyImageList(t *testing.T) {
	client := newStub(t, func(method string, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "artist.getinfo", method)
		_, _ = w.Write([]byte(`{"artist":{"name":"x","image":[]}}`))
	})
	art, err := client.ArtistArt(context.Background(), "fm-key", "x")
	require.NoError(t, err)
	assert.Empty(t, art)
}

func TestNotFoundIsEmptyAnswer(t *testing.T) {
	client := newStub(t, func(method string, w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":6,"message":"Track not found"}`))
	})
	art, err := client.TrackArt(context.Background(), "fm-key", "a", "b")
	require.NoError(t, err)
	assert.Empty(t, art)
}

func TestErrorEnvelopeIsUpstreamError(t *testing.T) {
	client := newStub(t, func(method string, w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":29,"message":"Rate limit exceeded"}`))
	})
	_, err := client.ArtistArt(context.Background(), "fm-key", "a")
	var upstreamErr *domain.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Contains(t, err.Error(), "Rate limit exceeded")
	assert.NotContains(t, err.Error(), "fm-key")
}

func TestAPIKeyResolution(t *testing.T) {
	client := NewClient(Config{Secrets: secrets.NewEnvStoreFrom(map[string]string{"VITE_LASTFM_API_KEY": "legacy"})})
	key, err := client.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "legacy", key)

	key, err = NewClient(Config{}).APIKey(context.Background())
	require.NoError(t, err)
	assert.Empty(t, key)
}
