// Package music runs song search: the song list from the chart service,
// then album art from the music catalogue for each song.
package music

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/metrics"
)

const (
	defaultConcurrency = 4
	defaultBudget      = 25 * time.Second
)

// Enrichment outcomes, also used as metric labels.
const (
	outcomeNone    = "none"
	outcomeFailed  = "failed"
	outcomeStopped = "stopped"
)

type SongSearcher interface {
	SearchSongs(ctx context.Context, query string) ([]domain.Song, error)
}

type Service struct {
	songs       SongSearcher
	art         ArtLookup
	tiers       []ArtTier
	concurrency int64
	budget      time.Duration
	logger      *slog.Logger
}

type Config struct {
	Songs SongSearcher
	Art   ArtLookup
	// Tiers overrides DefaultTiers(Art).
	Tiers []ArtTier
	// Concurrency caps in-flight songs being enriched. Defaults to 4.
	Concurrency int
	// Budget bounds the whole enrichment stage. Songs still waiting when it
	// runs out are returned without album art. Defaults to 25s.
	Budget time.Duration
	Logger *slog.Logger
}

func NewService(cfg Config) *Service {
	tiers := cfg.Tiers
	if tiers == nil && cfg.Art != nil {
		tiers = DefaultTiers(cfg.Art)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		songs:       cfg.Songs,
		art:         cfg.Art,
		tiers:       tiers,
		concurrency: int64(concurrency),
		budget:      budget,
		logger:      logger,
	}
}

// Search returns the songs in chart-service order. Album art is attached
// only when the catalogue key is configured; a song whose lookups all
// failed is returned without the albumImg field.
func (s *Service) Search(ctx context.Context, query string) ([]domain.SongResult, error) {
	songs, err := s.songs.SearchSongs(ctx, query)
	if err != nil {
		return nil, err
	}

	apiKey := s.apiKey(ctx)
	if apiKey == "" || len(s.tiers) == 0 {
		s.logger.Debug("album art lookup disabled", slog.Int("songs", len(songs)))
		return domain.PlainSongs(songs), nil
	}
	return s.enrichAll(ctx, apiKey, songs), nil
}

func (s *Service) apiKey(ctx context.Context) string {
	if s.art == nil {
		return ""
	}
	key, err := s.art.APIKey(ctx)
	if err != nil {
		s.logger.Warn("album art key unavailable", slog.String("error", err.Error()))
		return ""
	}
	return key
}

func (s *Service) enrichAll(parent context.Context, apiKey string, songs []domain.Song) []domain.SongResult {
	results := domain.PlainSongs(songs)
	ctx, cancel := context.WithTimeout(parent, s.budget)
	defer cancel()
	sem := semaphore.NewWeighted(s.concurrency)
	var wg sync.WaitGroup

	for i := range songs {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				metrics.EnrichmentTotal.WithLabelValues(outcomeStopped).Inc()
				return
			}
			defer sem.Release(1)

			if art, ok := s.enrich(ctx, apiKey, songs[index]); ok {
				results[index].AlbumImg = &art
			}
		}(i)
	}
	wg.Wait()

	if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("album art budget exhausted",
			slog.Duration("budget", s.budget),
			slog.Int("songs", len(songs)),
			slog.Int("enriched", countEnriched(results)),
		)
	}
	return results
}

func countEnriched(results []domain.SongResult) int {
	n := 0
	for _, result := range results {
		if result.AlbumImg != nil {
			n++
		}
	}
	return n
}

// enrich walks the tiers until one yields an image. ok is false when every
// tier that ran returned an error or ctx ended before the chain finished.
func (s *Service) enrich(ctx context.Context, apiKey string, song domain.Song) (art string, ok bool) {
	attempted, failed := 0, 0
	for _, tier := range s.tiers {
		if tier.Applies != nil && !tier.Applies(song) {
			continue
		}
		if ctx.Err() != nil {
			metrics.EnrichmentTotal.WithLabelValues(outcomeStopped).Inc()
			return "", false
		}
		attempted++
		url, err := tier.Lookup(ctx, apiKey, song)
		if err != nil {
			if ctx.Err() != nil {
				metrics.EnrichmentTotal.WithLabelValues(outcomeStopped).Inc()
				return "", false
			}
			failed++
			// The upstream client already logged the failed call.
			s.logger.Debug("album art lookup failed",
				slog.String("tier", tier.Name),
				slog.String("songId", song.SongID),
				slog.String("title", song.Title),
				slog.String("error", err.Error()),
			)
			continue
		}
		if url != "" {
			metrics.EnrichmentTotal.WithLabelValues(tier.Name).Inc()
			return url, true
		}
	}
	if attempted > 0 && failed == attempted {
		metrics.EnrichmentTotal.WithLabelValues(outcomeFailed).Inc()
		return "", false
	}
	metrics.EnrichmentTotal.WithLabelValues(outcomeNone).Inc()
	return "", true
}
