package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxgate/voxgate/internal/api"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/database"
	"github.com/voxgate/voxgate/internal/database/pgstore"
	"github.com/voxgate/voxgate/internal/gateway"
	"github.com/voxgate/voxgate/internal/metrics"
	"github.com/voxgate/voxgate/internal/speech"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting voxgate",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"postgres", cfg.UsePostgres(),
	)

	// Open the store and run migrations. Postgres when a DSN is configured,
	// the embedded SQLite database otherwise.
	var store database.Store
	if cfg.UsePostgres() {
		store, err = pgstore.New(cfg.DatabaseURL, cfg.DBMaxConns)
	} else {
		store, err = database.Open(cfg.DataDir)
	}
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	// The speech pipeline is optional: without an API key the gateway still
	// answers calls but every turn degrades to silence.
	var pipeline speech.Pipeline
	client, err := speech.NewOpenAIClient(speech.OpenAIConfig{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		TranscribeModel: cfg.TranscribeModel,
		ChatModel:       cfg.ChatModel,
		TTSModel:        cfg.TTSModel,
		TTSVoice:        cfg.TTSVoice,
		Temperature:     cfg.Temperature,
	}, logger)
	if err != nil {
		slog.Warn("speech pipeline not available, calls will receive no replies", "error", err)
	} else {
		pipeline = client
	}

	// Metrics: shared live counters plus a scrape-time collector backed by
	// the store.
	stats := &metrics.Stats{}
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(stats, store.CallLogs(), store.Tenants(), time.Now()))
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	media := gateway.NewHandler(gateway.HandlerConfig{
		FallbackPrompt:    cfg.FallbackPrompt,
		VADAggressiveness: cfg.VADAggressiveness,
		VADFrameMs:        cfg.VADFrameMs,
		SilenceFrames:     cfg.SilenceFrames,
	}, store, pipeline, stats, logger)

	handler := api.NewServer(store, jwtSecret, media, metricsHandler)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// No write timeout: media-stream connections stay open for the
		// duration of a call.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("voxgate stopped")
}
