package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/circonus-labs/cosi-server/internal/packagelist"
)

// Config holds all application configuration
type Config struct {
	// Package resolution
	PackageURL   string   `yaml:"package_url"`
	PackageLists []string `yaml:"package_lists"`

	// Templates
	TemplateDir       string `yaml:"template_dir"`
	TemplateCacheSize int    `yaml:"template_cache_size"`

	// Package list builder
	ListingURL      string        `yaml:"listing_url"`
	PackageListFile string        `yaml:"package_list_file"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Server settings
	Port int `yaml:"port"`

	// Observability
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	LogLevel     string `yaml:"log_level"`
}

const defaultPackageListFile = "content/packages/packages.json"

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		PackageURL:        "http://updates.circonus.net/node-agent/packages/",
		PackageLists:      []string{defaultPackageListFile},
		TemplateDir:       "content/templates",
		TemplateCacheSize: 100,
		ListingURL:        packagelist.DefaultListingURL,
		PackageListFile:   defaultPackageListFile,
		FetchTimeout:      30 * time.Second,
		Port:              8080,
		LogLevel:          "info",
	}
}

// Load reads configuration from an optional YAML file named by COSI_CONFIG
// and then from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("COSI_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) loadEnv() error {
	// Optional: Default package base URL
	if v := os.Getenv("COSI_PACKAGE_URL"); v != "" {
		c.PackageURL = v
	}

	// Optional: Package list files, loaded in order
	if v := os.Getenv("COSI_PACKAGE_LISTS"); v != "" {
		c.PackageLists = splitList(v)
	}

	// Optional: Template directory
	if v := os.Getenv("COSI_TEMPLATE_DIR"); v != "" {
		c.TemplateDir = v
	}

	// Optional: Template cache size
	if v := os.Getenv("COSI_TEMPLATE_CACHE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid COSI_TEMPLATE_CACHE_SIZE: %w", err)
		}
		c.TemplateCacheSize = size
	}

	// Optional: Directory listing the builder reads
	if v := os.Getenv("COSI_LISTING_URL"); v != "" {
		c.ListingURL = v
	}

	// Optional: Package list file the builder writes
	if v := os.Getenv("COSI_PACKAGE_LIST_FILE"); v != "" {
		c.PackageListFile = v
	}

	// Optional: Fetch timeout
	if v := os.Getenv("COSI_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid COSI_FETCH_TIMEOUT: %w", err)
		}
		c.FetchTimeout = d
	}

	// Optional: Refresh interval
	if v := os.Getenv("COSI_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid COSI_REFRESH_INTERVAL: %w", err)
		}
		c.RefreshInterval = d
	}

	// Optional: Port
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Port = port
	}

	// Optional: OTLP endpoint for tracing
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}

	// Optional: Log level
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	return nil
}

func (c *Config) validate() error {
	if c.PackageURL == "" {
		return fmt.Errorf("package url is required")
	}
	if len(c.PackageLists) == 0 {
		return fmt.Errorf("at least one package list is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("invalid fetch timeout %s", c.FetchTimeout)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("invalid refresh interval %s", c.RefreshInterval)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel converts a log level name to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
}

func splitList(v string) []string {
	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
