package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wakakowasake/favthing/internal/app"
	"github.com/wakakowasake/favthing/internal/metrics"
	"github.com/wakakowasake/favthing/internal/telemetry"
)

const serviceName = "favthing-search"

var version = "dev"

type flags struct {
	addr        string
	logLevel    string
	logFormat   string
	secretsFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:   "searchproxy",
		Short: "Search proxy for films, series, songs and books",
		Long: `searchproxy answers search requests from the favthing web app by calling
the film database, the metadata service, the chart service with album art
enrichment, and the book service with server-held API keys.

Configuration comes from the environment; flags override it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f.apply(app.LoadConfig()))
		},
	}
	root.PersistentFlags().StringVar(&f.addr, "addr", "", "listen address (env HTTP_ADDR)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	root.PersistentFlags().StringVar(&f.logFormat, "log-format", "", "text or json (env LOG_FORMAT)")
	root.PersistentFlags().StringVar(&f.secretsFile, "secrets-file", "", "YAML file of API keys (env SECRETS_FILE)")
	root.AddCommand(newSecretsCmd(&f))
	return root
}

func (f flags) apply(cfg app.Config) app.Config {
	if v := strings.TrimSpace(f.addr); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(f.logLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(f.logFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := strings.TrimSpace(f.secretsFile); v != "" {
		cfg.SecretsFile = v
	}
	return cfg
}

func runServe(ctx context.Context, cfg app.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Version:     version,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("environment", cfg.Environment),
		slog.Duration("upstreamTimeout", cfg.UpstreamTimeout),
		slog.Duration("melonTimeout", cfg.MelonTimeout),
		slog.Int("enrichConcurrency", cfg.EnrichConcurrency),
		slog.Duration("enrichBudget", cfg.EnrichBudget),
		slog.Bool("hasSecretsFile", cfg.SecretsFile != ""),
		slog.Bool("hasRedis", cfg.RedisURL != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	deps.logSecretStatus(ctx)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           deps.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Song search: up to three melon attempts plus the enrichment budget.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("search proxy started", slog.String("addr", cfg.HTTPAddr), slog.String("version", version))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("search proxy stopped")
	return nil
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
