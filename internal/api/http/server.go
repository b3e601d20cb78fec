package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/unicode/norm"

	"github.com/wakakowasake/favthing/internal/domain"
)

type MovieSearcher interface {
	SearchMovies(ctx context.Context, query string) (domain.MovieSearchResult, error)
}

type MetadataService interface {
	SearchMovies(ctx context.Context, query string, page int) (json.RawMessage, error)
	SearchTV(ctx context.Context, query string, page int) (json.RawMessage, error)
	TVDetail(ctx context.Context, id int64) (json.RawMessage, error)
}

type SongService interface {
	Search(ctx context.Context, query string) ([]domain.SongResult, error)
}

type BookSearcher interface {
	SearchBooks(ctx context.Context, query domain.BookQuery) (json.RawMessage, error)
}

type UpstreamDiagnostics interface {
	Diagnostics() []domain.UpstreamDiagnostics
}

type Server struct {
	films      MovieSearcher
	metadata   MetadataService
	songs      SongService
	books      BookSearcher
	upstreams  UpstreamDiagnostics
	logger     *slog.Logger
	production bool
	rateLimit  rateLimitConfig
	userAgent  string

	// validateImageURL guards the image proxy; nil means validateProxyURL.
	validateImageURL func(context.Context, *url.URL) error
}

type rateLimitConfig struct {
	enabled bool
	rps     float64
	burst   int
}

const (
	maxQueryLength  = 500
	maxBookDisplay  = 100
	maxBookStart    = 1000
	defaultDisplay  = 20
	genericFailure  = "Upstream request failed"
	serviceName     = "favthing-search"
	missingQuery    = "Query parameter is required"
	missingQueryMsg = "Please provide a search query"
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithFilms(films MovieSearcher) ServerOption {
	return func(s *Server) {
		s.films = films
	}
}

func WithMetadata(metadata MetadataService) ServerOption {
	return func(s *Server) {
		s.metadata = metadata
	}
}

func WithSongs(songs SongService) ServerOption {
	return func(s *Server) {
		s.songs = songs
	}
}

func WithBooks(books BookSearcher) ServerOption {
	return func(s *Server) {
		s.books = books
	}
}

func WithUpstreamDiagnostics(upstreams UpstreamDiagnostics) ServerOption {
	return func(s *Server) {
		s.upstreams = upstreams
	}
}

// WithProductionErrors replaces upstream error details with a generic message.
func WithProductionErrors(enabled bool) ServerOption {
	return func(s *Server) {
		s.production = enabled
	}
}

// WithRateLimit sets the global token bucket. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = rateLimitConfig{enabled: rps > 0, rps: rps, burst: burst}
	}
}

func WithUserAgent(userAgent string) ServerOption {
	return func(s *Server) {
		s.userAgent = strings.TrimSpace(userAgent)
	}
}

func NewServer(options ...ServerOption) *Server {
	server := &Server{
		logger:    slog.Default(),
		rateLimit: rateLimitConfig{enabled: true, rps: 50, burst: 100},
		userAgent: "favthing-search/1.0",
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/upstreams/health", s.handleUpstreamsHealth)
	mux.HandleFunc("/image", s.handleImageProxy)
	mux.HandleFunc("/kmdb/search/movie", s.handleFilmSearch)
	mux.HandleFunc("/tmdb/search/movie", s.handleMetadataMovieSearch)
	mux.HandleFunc("/tmdb/search/tv", s.handleMetadataTVSearch)
	mux.HandleFunc("/tmdb/tv", s.handleTVDetail)
	mux.HandleFunc("/tmdb/tv/{$}", s.handleTVDetail)
	mux.HandleFunc("/tmdb/tv/{tvId}", s.handleTVDetail)
	mux.HandleFunc("/melona/search/song", s.handleSongSearch)
	mux.HandleFunc("/naver/search/book", s.handleBookSearch)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), serviceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	var handler http.Handler = metricsMiddleware(traced)
	if s.rateLimit.enabled {
		handler = rateLimitMiddleware(s.rateLimit.rps, s.rateLimit.burst, handler)
	}
	return recoveryMiddleware(s.logger, requestIDMiddleware(corsMiddleware(handler)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleUpstreamsHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	items := []domain.UpstreamDiagnostics{}
	if s.upstreams != nil {
		items = s.upstreams.Diagnostics()
	}
	writeJSON(w, http.StatusOK, map[string]any{"upstreams": items})
}

func (s *Server) handleFilmSearch(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	query, ok := requireQuery(w, r)
	if !ok {
		return
	}
	if s.films == nil {
		writeError(w, http.StatusInternalServerError, "KMDB API key not configured", "")
		return
	}

	result, err := s.films.SearchMovies(r.Context(), query)
	if err != nil {
		s.writeFailure(w, r, "kmdb", query, "Failed to search movies", err)
		return
	}
	if result.Results == nil {
		result.Results = []domain.Movie{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetadataMovieSearch(w http.ResponseWriter, r *http.Request) {
	s.handleMetadataSearch(w, r, "Failed to search movies", func(ctx context.Context, query string, page int) (json.RawMessage, error) {
		return s.metadata.SearchMovies(ctx, query, page)
	})
}

func (s *Server) handleMetadataTVSearch(w http.ResponseWriter, r *http.Request) {
	s.handleMetadataSearch(w, r, "Failed to search series", func(ctx context.Context, query string, page int) (json.RawMessage, error) {
		return s.metadata.SearchTV(ctx, query, page)
	})
}

func (s *Server) handleMetadataSearch(w http.ResponseWriter, r *http.Request, failure string, search func(context.Context, string, int) (json.RawMessage, error)) {
	if !allowGet(w, r) {
		return
	}
	query, ok := requireQuery(w, r)
	if !ok {
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page parameter", "page must be a positive integer")
		return
	}
	if s.metadata == nil {
		writeError(w, http.StatusInternalServerError, "TMDB API key not configured", "")
		return
	}

	body, err := search(r.Context(), query, page)
	if err != nil {
		s.writeFailure(w, r, "tmdb", query, failure, err)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

func (s *Server) handleTVDetail(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	raw := strings.TrimSpace(r.PathValue("tvId"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "TV ID is required", "Please provide a TV series ID")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid TV ID", "TV ID must be a positive integer")
		return
	}
	if s.metadata == nil {
		writeError(w, http.StatusInternalServerError, "TMDB API key not configured", "")
		return
	}

	body, err := s.metadata.TVDetail(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, "tmdb", raw, "Failed to get series details", err)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

func (s *Server) handleSongSearch(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	query, ok := requireQuery(w, r)
	if !ok {
		return
	}
	if s.songs == nil {
		writeError(w, http.StatusInternalServerError, "Failed to search songs", "song search is not configured")
		return
	}

	songs, err := s.songs.Search(r.Context(), query)
	if err != nil {
		s.writeFailure(w, r, "melon", query, "Failed to search songs", err)
		return
	}
	if songs == nil {
		songs = []domain.SongResult{}
	}
	enriched := 0
	for _, song := range songs {
		if song.AlbumImg != nil {
			enriched++
		}
	}
	s.logger.Debug("song search completed",
		slog.String("query", truncate(query, 80)),
		slog.Int("songs", len(songs)),
		slog.Int("enriched", enriched),
	)
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleBookSearch(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	query, ok := requireQuery(w, r)
	if !ok {
		return
	}
	display, err := parsePositiveInt(r, "display", defaultDisplay)
	if err != nil || display > maxBookDisplay {
		writeError(w, http.StatusBadRequest, "Invalid display parameter", "display must be between 1 and 100")
		return
	}
	start, err := parsePositiveInt(r, "start", 1)
	if err != nil || start > maxBookStart {
		writeError(w, http.StatusBadRequest, "Invalid start parameter", "start must be between 1 and 1000")
		return
	}
	sort, ok := domain.NormalizeBookSort(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("sort"))))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid sort parameter", "sort must be one of relevance, sim, date")
		return
	}
	if s.books == nil {
		writeError(w, http.StatusInternalServerError, "Naver API credentials not configured", "")
		return
	}

	body, err := s.books.SearchBooks(r.Context(), domain.BookQuery{
		Query:   query,
		Display: display,
		Start:   start,
		Sort:    sort,
	})
	if err != nil {
		s.writeFailure(w, r, "naver", query, "Failed to search books", err)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// writeFailure maps a provider error onto the response contract: caller
// mistakes are 400, missing secrets are 500 with the secret message only,
// everything else is 500 with the endpoint's failure label.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, upstream, query, failure string, err error) {
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	case errors.As(err, &cfgErr):
		s.logger.Error("upstream credentials missing",
			slog.String("upstream", upstream),
			slog.String("secret", cfgErr.Secret),
		)
		writeError(w, http.StatusInternalServerError, cfgErr.Error(), "")
		return
	}

	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	s.logger.Log(r.Context(), level, "upstream request failed",
		slog.String("upstream", upstream),
		slog.String("query", truncate(query, 80)),
		slog.String("error", err.Error()),
	)
	message := err.Error()
	if s.production {
		message = genericFailure
	}
	writeError(w, http.StatusInternalServerError, failure, message)
}

// requireQuery reads the query parameter, NFC-normalizes it and answers 400
// itself when it is missing or too long.
func requireQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := strings.TrimSpace(norm.NFC.String(r.URL.Query().Get("query")))
	if query == "" {
		writeError(w, http.StatusBadRequest, missingQuery, missingQueryMsg)
		return "", false
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "Query parameter is too long", "query must be at most 500 bytes")
		return "", false
	}
	return query, true
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, OPTIONS")
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeRawJSON sends an upstream body byte for byte.
func writeRawJSON(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]string{"error": code}
	if message != "" {
		payload["message"] = message
	}
	writeJSON(w, status, payload)
}
