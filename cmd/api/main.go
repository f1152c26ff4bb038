package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/docutag/enricher"
	"github.com/docutag/enricher/api"
	"github.com/docutag/enricher/auth"
	"github.com/docutag/enricher/config"
	"github.com/docutag/enricher/db"
	"github.com/docutag/enricher/enrich"
	"github.com/docutag/enricher/llm"
	"github.com/docutag/enricher/metrics"
	"github.com/docutag/enricher/search"
	"github.com/docutag/enricher/storage"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Command-line flags (override the config file and environment variables)
	configPath := flag.String("config", getEnv("ENRICHER_CONFIG", ""), "Path to a YAML config file")
	addr := flag.String("addr", "", "Listen address, e.g. :8080")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn or error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *disableCORS {
		cfg.Server.CORS = false
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger(os.Stdout)
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("enricher service initializing", "version", "1.0.0")

	if cfg.Tracing.Enabled {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		logger.Info("trace propagation enabled")
	}

	database, err := db.New(cfg.DB)
	if err != nil {
		logger.Error("failed to initialize database", "driver", cfg.DB.Driver, "error", err)
		os.Exit(1)
	}
	if status, err := database.MigrationStatus(); err == nil && len(status) > 0 {
		logger.Info("database ready", "driver", cfg.DB.Driver, "schema_version", status[len(status)-1].Version)
	}

	blobs, err := newBlobStore(context.Background(), cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	scraper := enricher.New(cfg.Scraper,
		enricher.WithLogger(logger),
		enricher.WithMetrics(m),
	)
	runner := enrich.NewRunner(database, scraper, llm.New(cfg.LLM, logger),
		enrich.WithLogger(logger),
		enrich.WithMetrics(m),
	)

	verifier, err := auth.NewVerifier(cfg.Auth, database)
	if err != nil {
		logger.Error("failed to initialize authentication", "error", err)
		os.Exit(1)
	}

	server, err := api.NewServer(api.Config{
		Addr:              cfg.Server.Addr,
		CORSEnabled:       cfg.Server.CORS,
		Tracing:           cfg.Tracing.Enabled,
		ScrapeLimit:       cfg.Enrich.ScrapeLimit,
		ScrapeDelay:       cfg.Enrich.ScrapeDelay,
		GenerateRateLimit: cfg.Enrich.GenerateRateLimit,
		GenerateDelay:     cfg.Enrich.GenerateDelay,
		MaxTokens:         cfg.Enrich.MaxTokens,
		DefaultModel:      cfg.Enrich.DefaultModel,
	}, api.Dependencies{
		DB:       database,
		Runner:   runner,
		Blobs:    blobs,
		Verifier: verifier,
		Search:   search.New(cfg.Search, search.WithLogger(logger)),
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in a goroutine
	go func() {
		logger.Info("enricher service starting",
			"addr", cfg.Server.Addr,
			"database_driver", cfg.DB.Driver,
			"storage_backend", cfg.Storage.Backend,
			"cors_enabled", cfg.Server.CORS,
			"tracing_enabled", cfg.Tracing.Enabled,
		)

		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newBlobStore opens the configured CSV blob backend
func newBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.Blob, error) {
	if cfg.Backend == storage.BackendS3 {
		return storage.NewS3Storage(ctx, cfg.S3)
	}
	return storage.New(storage.Config{BasePath: cfg.BasePath})
}
