package kmdb

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

func TestSearchMoviesSendsFixedParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "kmdb_new2", q.Get("collection"))
		assert.Equal(t, "기생충", q.Get("query"))
		assert.Equal(t, "Y", q.Get("detail"))
		assert.Equal(t, "20", q.Get("listCount"))
		assert.Equal(t, "kmdb-key", q.Get("ServiceKey"))
		_, _ = w.Write([]byte(`{"Data":[{"TotalCount":1,"Result":[{"title":"!HS기생충!HE","posters":"http://a|http://b"}]}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:  srv.URL,
		Secrets:  secrets.NewEnvStoreFrom(map[string]string{secrets.KMDBAPIKey: "kmdb-key"}),
		Upstream: upstream.New(upstream.Config{Name: "KMDB"}),
	})
	result, err := client.SearchMovies(context.Background(), "기생충")
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "기생충", result.Results[0].Title)
	assert.Equal(t, "http://a", result.Results[0].PosterPath)
}

func TestSearchMoviesWithoutKeyNeverCallsUpstream(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:  srv.URL,
		Secrets:  secrets.NewEnvStoreFrom(nil),
		Upstream: upstream.New(upstream.Config{Name: "KMDB"}),
	})
	_, err := client.SearchMovies(context.Background(), "괴물")

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "KMDB API key not configured", cfgErr.Error())
	assert.False(t, called)
}

func TestSearchMoviesIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Data":[{"TotalCount":2,"Result":[{"movieSeq":"1","title":"A"},{"movieSeq":"2","title":"B"}]}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:  srv.URL,
		Secrets:  secrets.NewEnvStoreFrom(map[string]string{secrets.KMDBAPIKey: "k"}),
		Upstream: upstream.New(upstream.Config{Name: "KMDB"}),
	})
	first, err := client.SearchMovies(context.Background(), "a")
	require.NoError(t, err)
	second, err := client.SearchMovies(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
