package packagelist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/circonus-labs/cosi-server/internal/domain"
)

// DefaultListingURL asks Apache mod_autoindex for a bare list sorted by
// modification time, newest first.
const DefaultListingURL = "http://updates.circonus.net/node-agent/packages/?C=M;O=D;F=0"

// ErrFetch means the directory listing could not be retrieved.
var ErrFetch = errors.New("failed to fetch package listing")

// Builder turns a remote directory listing into a package list file.
type Builder struct {
	listingURL string
	outputPath string
	client     *http.Client
	logger     *slog.Logger
}

// Config holds builder configuration
type Config struct {
	ListingURL string
	OutputPath string
	// Timeout bounds the listing fetch when Client is not set.
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Result describes a completed build.
type Result struct {
	Stats
	Distributions int
	Path          string
	Duration      time.Duration
}

// New creates a new builder
func New(cfg Config) (*Builder, error) {
	if cfg.OutputPath == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.ListingURL == "" {
		cfg.ListingURL = DefaultListingURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Builder{
		listingURL: cfg.ListingURL,
		outputPath: cfg.OutputPath,
		client:     cfg.Client,
		logger:     cfg.Logger,
	}, nil
}

// Run fetches the listing, parses it and replaces the package list file.
// The file is only written when the whole listing parsed successfully.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	b.logger.Info("fetching package listing", "url", b.listingURL)
	body, err := b.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	index, stats, err := Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if err := WriteFile(b.outputPath, index); err != nil {
		return nil, err
	}

	res := &Result{
		Stats:         stats,
		Distributions: len(index),
		Path:          b.outputPath,
		Duration:      time.Since(start),
	}

	b.logger.Info("package list written",
		"path", res.Path,
		"files", res.Files,
		"entries", res.Entries,
		"eol", res.EOL,
		"duplicates", res.Duplicates,
		"distributions", res.Distributions,
		"duration", res.Duration,
	)

	return res, nil
}

// Fetch retrieves the raw directory listing.
func (b *Builder) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetch, b.listingURL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetch, err)
	}

	return body, nil
}

// OutputPath returns the package list file the builder writes.
func (b *Builder) OutputPath() string {
	return b.outputPath
}

// WriteFile writes index as indented JSON, replacing path atomically.
func WriteFile(path string, index domain.PackageIndex) error {
	data, err := json.MarshalIndent(index, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding package list: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting file mode: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming file: %w", err)
	}

	return nil
}
