package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/market-feed/internal/config"
	"github.com/rickgao/market-feed/internal/feed"
	"github.com/rickgao/market-feed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feed.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"instruments", len(cfg.Instruments),
		"sources", len(cfg.Sources),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Build the feed manager (config errors surface here, pre-network)
	manager, err := feed.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build feed", "error", err)
		os.Exit(1)
	}

	// Health + metrics server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(cfg, manager, logger),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Bootstrap and launch the streams
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	logger.Info("feedd running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Feed.StopTimeout)
	defer stopCancel()
	if err := manager.Stop(stopCtx); err != nil {
		logger.Warn("feed stop", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("feedd stopped")
}
