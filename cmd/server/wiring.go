package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "github.com/wakakowasake/favthing/internal/api/http"
	"github.com/wakakowasake/favthing/internal/app"
	"github.com/wakakowasake/favthing/internal/music"
	"github.com/wakakowasake/favthing/internal/providers/kmdb"
	"github.com/wakakowasake/favthing/internal/providers/lastfm"
	"github.com/wakakowasake/favthing/internal/providers/melon"
	"github.com/wakakowasake/favthing/internal/providers/naver"
	"github.com/wakakowasake/favthing/internal/providers/tmdb"
	"github.com/wakakowasake/favthing/internal/secrets"
	"github.com/wakakowasake/favthing/internal/upstream"
)

type dependencies struct {
	server  *apihttp.Server
	secrets secrets.Store
	redis   *redis.Client
	logger  *slog.Logger
}

func (d *dependencies) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
}

func (d *dependencies) logSecretStatus(ctx context.Context) {
	attrs := make([]any, 0, len(secrets.Names()))
	for name, configured := range secrets.Status(ctx, d.secrets) {
		attrs = append(attrs, slog.Bool(name, configured))
	}
	d.logger.Info("secrets resolved", attrs...)
}

func buildDependencies(ctx context.Context, cfg app.Config, logger *slog.Logger) (*dependencies, error) {
	redisClient := connectRedis(ctx, cfg.RedisURL, logger)
	store, err := buildSecretStore(cfg, redisClient)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	var cache upstream.Cache
	switch {
	case cfg.CacheTTL <= 0:
	case redisClient != nil:
		cache = upstream.NewRedisCache(redisClient)
	default:
		logger.Info("redis not configured, using in-memory upstream cache")
		cache = upstream.NewMemoryCache(0)
	}
	monitor := upstream.NewMonitor()
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	newUpstream := func(name string, timeout time.Duration) *upstream.Client {
		return upstream.New(upstream.Config{
			Name:       name,
			Timeout:    timeout,
			UserAgent:  cfg.UserAgent,
			HTTPClient: httpClient,
			Monitor:    monitor,
			Cache:      cache,
			CacheTTL:   cfg.CacheTTL,
			Logger:     logger,
		})
	}

	films := kmdb.NewClient(kmdb.Config{
		BaseURL:  cfg.KMDBBaseURL,
		Secrets:  store,
		Upstream: newUpstream("KMDB", cfg.UpstreamTimeout),
	})
	metadata := tmdb.NewClient(tmdb.Config{
		BaseURL:  cfg.TMDBBaseURL,
		Secrets:  store,
		Upstream: newUpstream("TMDB", cfg.UpstreamTimeout),
	})
	songs := music.NewService(music.Config{
		Songs: melon.NewClient(melon.Config{
			BaseURL:  cfg.MelonBaseURL,
			Upstream: newUpstream("Melon", cfg.MelonTimeout),
			Logger:   logger,
		}),
		Art: lastfm.NewClient(lastfm.Config{
			BaseURL:  cfg.LastFMBaseURL,
			Secrets:  store,
			Upstream: newUpstream("LastFM", cfg.UpstreamTimeout),
		}),
		Concurrency: cfg.EnrichConcurrency,
		Budget:      cfg.EnrichBudget,
		Logger:      logger,
	})
	books := naver.NewClient(naver.Config{
		BaseURL:  cfg.NaverBaseURL,
		Secrets:  store,
		Upstream: newUpstream("Naver", cfg.UpstreamTimeout),
	})

	options := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithFilms(films),
		apihttp.WithMetadata(metadata),
		apihttp.WithSongs(songs),
		apihttp.WithBooks(books),
		apihttp.WithUpstreamDiagnostics(monitor),
		apihttp.WithProductionErrors(cfg.Production()),
		apihttp.WithUserAgent(cfg.UserAgent),
	}
	if cfg.RateLimitEnabled {
		options = append(options, apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	} else {
		options = append(options, apihttp.WithRateLimit(0, 0))
	}

	return &dependencies{
		server:  apihttp.NewServer(options...),
		secrets: store,
		redis:   redisClient,
		logger:  logger,
	}, nil
}

// buildSecretStore layers the stores so that Redis overrides the file and
// the file overrides the environment.
func buildSecretStore(cfg app.Config, redisClient *redis.Client) (secrets.Store, error) {
	var chain secrets.Chain
	if redisClient != nil {
		chain = append(chain, secrets.NewRedisStore(redisClient, cfg.SecretsRedisKey))
	}
	if path := strings.TrimSpace(cfg.SecretsFile); path != "" {
		fileStore, err := secrets.LoadFile(path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, fileStore)
	}
	chain = append(chain, secrets.NewEnvStore())
	return chain, nil
}

func connectRedis(ctx context.Context, rawURL string, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(rawURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("redis disabled: invalid redis url", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis disabled: redis unavailable", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func requireRedis(ctx context.Context, cfg app.Config, logger *slog.Logger) (*redis.Client, error) {
	client := connectRedis(ctx, cfg.RedisURL, logger)
	if client == nil {
		return nil, errors.New("REDIS_URL must point at a reachable redis to store secrets")
	}
	return client, nil
}
