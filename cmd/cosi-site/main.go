package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/circonus-labs/cosi-server/internal/api"
	"github.com/circonus-labs/cosi-server/internal/config"
	"github.com/circonus-labs/cosi-server/internal/middleware"
	"github.com/circonus-labs/cosi-server/internal/packages"
	"github.com/circonus-labs/cosi-server/internal/templates"
)

func main() {
	// Initialize structured logger
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(logger, level); err != nil {
		logger.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, level *slog.LevelVar) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lvl, _ := config.ParseLevel(cfg.LogLevel)
	level.Set(lvl)

	logger.Info("starting cosi-site",
		"package_url", cfg.PackageURL,
		"package_lists", cfg.PackageLists,
		"template_dir", cfg.TemplateDir,
	)

	// Package lists must be fully loaded before the server starts;
	// the resolver is read-only from then on
	resolver := packages.New(packages.Config{
		DefaultURL: cfg.PackageURL,
		Logger:     logger,
	})
	for _, path := range cfg.PackageLists {
		if err := resolver.LoadFile(path); err != nil {
			switch {
			case errors.Is(err, packages.ErrArtifactNotFound):
				logger.Error("package list missing, run cosi-package-list to create it", "path", path)
			case errors.Is(err, packages.ErrArtifactInvalid):
				logger.Error("package list is corrupt, fix or rebuild it", "path", path)
			}
			return fmt.Errorf("failed to load package list: %w", err)
		}
	}
	middleware.PackageListsLoaded.Set(float64(len(cfg.PackageLists)))
	middleware.PackagesSupported.Set(float64(resolver.Count()))
	logger.Info("package lists loaded", "supported", resolver.Count())

	store, err := templates.New(templates.Config{
		Dir:       cfg.TemplateDir,
		CacheSize: cfg.TemplateCacheSize,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}

	// Initialize observability
	version, _, _ := api.BuildInfo()
	shutdownTracer, err := middleware.InitTracer(cfg.OTLPEndpoint, version)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	}

	// Initialize API router
	router := api.NewRouter(api.Config{
		Resolver:  resolver,
		Templates: store,
		Logger:    logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}
