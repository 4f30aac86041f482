package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"api-backend/infrastructure/config"
	"api-backend/infrastructure/di"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize dependency container
	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize container: %w", err)
	}
	// Closes the repository, flushes telemetry and syncs the logger.
	defer cleanup()
	logger := container.Logger

	if cfg.File != "" {
		watcher, err := config.NewWatcher(cfg.File, container.Level, logger)
		if err != nil {
			logger.Warn("Config watcher disabled", zap.String("file", cfg.File), zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      container.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(cfg.Metrics.Path, container.Telemetry.MetricsHandler())
	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 2)
	serve := func(name string, s *http.Server) {
		logger.Info("Starting server",
			zap.String("server", name),
			zap.String("address", s.Addr),
			zap.String("environment", cfg.Environment),
		)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}
	go serve("api", srv)
	go serve("metrics", metricsSrv)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case runErr = <-serverErr:
		logger.Error("Server failed", zap.Error(runErr))
	}

	// Graceful shutdown
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	return runErr
}
