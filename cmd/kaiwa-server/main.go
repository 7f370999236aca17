// Package main provides the HTTP server for kaiwa.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/kaiwa/internal/config"
	"github.com/raphaelgruber/kaiwa/internal/db"
	"github.com/raphaelgruber/kaiwa/internal/llm"
	"github.com/raphaelgruber/kaiwa/internal/metrics"
	"github.com/raphaelgruber/kaiwa/internal/relay"
	"github.com/raphaelgruber/kaiwa/internal/server"
)

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all conversations on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	// Missing credentials fail here, not on the first request
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting kaiwa-server", "port", cfg.ServerPort, "provider", cfg.LLMProvider, "model", cfg.LLMModel)

	mc := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	gateway, err := llm.NewGateway(ctx, cfg, mc)
	if err != nil {
		cancel()
		logger.Error("failed to create completion gateway", "error", err)
		os.Exit(1)
	}

	store, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, mc)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if err := store.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Wipe database if requested (via flag or env var)
	if *wipeDB || os.Getenv("KAIWA_WIPE_DB") == "true" {
		if err := store.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()

	srv := server.New(server.Options{
		Addr:         ":" + cfg.ServerPort,
		WriteTimeout: cfg.WriteTimeout,
		Store:        store,
		Chat:         relay.New(gateway, store, logger, mc),
		Metrics:      mc,
		Logger:       logger,
	})

	// Serve until interrupted
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
