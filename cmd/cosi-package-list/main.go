package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/circonus-labs/cosi-server/internal/config"
	"github.com/circonus-labs/cosi-server/internal/packagelist"
	"github.com/circonus-labs/cosi-server/internal/refresh"
)

var (
	listingURL string
	outputPath string
	timeout    time.Duration
	interval   time.Duration
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cosi-package-list",
		Short: "Build the COSI package list from the agent package repository",
		Long: "cosi-package-list reads the directory listing of the agent package repository " +
			"and writes the package list cosi-site uses to answer package requests. " +
			"The existing list is only replaced when the whole listing is understood.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBuild,
	}

	rootCmd.Flags().StringVarP(&listingURL, "url", "u", "", "Package repository listing URL (default from config)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Package list file to write (default from config)")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Listing fetch timeout (default from config)")
	rootCmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Rebuild on this interval instead of exiting after one build")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("package list build failed", "error", err)
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags override configuration
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.ListingURL = listingURL
	}
	if flags.Changed("output") {
		cfg.PackageListFile = outputPath
	}
	if flags.Changed("timeout") {
		cfg.FetchTimeout = timeout
	}
	if flags.Changed("interval") {
		cfg.RefreshInterval = interval
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	builder, err := packagelist.New(packagelist.Config{
		ListingURL: cfg.ListingURL,
		OutputPath: cfg.PackageListFile,
		Timeout:    cfg.FetchTimeout,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("building package list",
		"listing", cfg.ListingURL,
		"output", builder.OutputPath(),
		"interval", cfg.RefreshInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RefreshInterval <= 0 {
		_, err := builder.Run(ctx)
		return err
	}

	mgr := refresh.NewManager(refresh.Config{
		Builder:  builder,
		Interval: cfg.RefreshInterval,
		Logger:   logger,
	})
	mgr.Start(ctx)

	return nil
}
