package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	Environment       string
	UserAgent         string
	UpstreamTimeout   time.Duration
	MelonTimeout      time.Duration
	EnrichConcurrency int
	EnrichBudget      time.Duration
	RateLimitEnabled  bool
	RateLimitRPS      float64
	RateLimitBurst    int
	SecretsFile       string
	RedisURL          string
	SecretsRedisKey   string
	CacheTTL          time.Duration
	KMDBBaseURL       string
	TMDBBaseURL       string
	MelonBaseURL      string
	LastFMBaseURL     string
	NaverBaseURL      string
	OTLPEndpoint      string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		Environment:       strings.ToLower(getEnv("APP_ENV", "development")),
		UserAgent:         getEnv("USER_AGENT", "favthing-search/1.0"),
		UpstreamTimeout:   time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 10)) * time.Second,
		MelonTimeout:      time.Duration(getEnvInt("MELON_TIMEOUT_SECONDS", 15)) * time.Second,
		EnrichConcurrency: getEnvInt("ENRICH_CONCURRENCY", 4),
		EnrichBudget:      time.Duration(getEnvInt("ENRICH_BUDGET_SECONDS", 25)) * time.Second,
		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:      float64(getEnvInt("RATE_LIMIT_RPS", 50)),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 100),
		SecretsFile:       getEnv("SECRETS_FILE", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		SecretsRedisKey:   getEnv("SECRETS_REDIS_KEY", "favthing:secrets:v1"),
		CacheTTL:          time.Duration(getEnvNonNegativeInt("UPSTREAM_CACHE_TTL_SECONDS", 0)) * time.Second,
		KMDBBaseURL:       getEnv("KMDB_BASE_URL", "http://api.koreafilm.or.kr/openapi-data2/wisenut/search_api/search_json2.jsp"),
		TMDBBaseURL:       getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		MelonBaseURL:      getEnv("MELON_BASE_URL", "https://www.melon.com/search/song/index.htm"),
		LastFMBaseURL:     getEnv("LASTFM_BASE_URL", "https://ws.audioscrobbler.com/2.0/"),
		NaverBaseURL:      getEnv("NAVER_BASE_URL", "https://openapi.naver.com/v1/search/book.json"),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// Production hides upstream error details from clients.
func (c Config) Production() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvNonNegativeInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
