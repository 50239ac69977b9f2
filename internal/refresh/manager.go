package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/circonus-labs/cosi-server/internal/packagelist"
)

// Builder produces a package list
type Builder interface {
	Run(ctx context.Context) (*packagelist.Result, error)
}

// Manager reruns the package list builder on an interval
type Manager struct {
	builder    Builder
	interval   time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	building bool
}

// Config holds refresh manager configuration
type Config struct {
	Builder    Builder
	Interval   time.Duration
	MaxRetries int
	// Backoff is the wait before the first retry; it doubles up to 30s.
	Backoff time.Duration
	Logger  *slog.Logger
}

const maxBackoff = 30 * time.Second

// NewManager creates a new refresh manager
func NewManager(cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		builder:    cfg.Builder,
		interval:   cfg.Interval,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		logger:     cfg.Logger,
	}
}

// Start builds immediately and then on every interval until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("package list refresh started", "interval", m.interval)

	_ = m.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("package list refresh stopped")
			return

		case <-ticker.C:
			_ = m.RunOnce(ctx)
		}
	}
}

// ErrBusy is returned when a build is already in progress.
var ErrBusy = errors.New("package list build already in progress")

// RunOnce performs a single build, retrying fetch failures with
// exponential backoff. Builds never overlap.
func (m *Manager) RunOnce(ctx context.Context) error {
	m.mu.Lock()
	if m.building {
		m.mu.Unlock()
		m.logger.Debug("build already in progress")
		return ErrBusy
	}
	m.building = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.building = false
		m.mu.Unlock()
	}()

	start := time.Now()
	err := m.buildWithRetry(ctx)

	m.mu.Lock()
	m.lastErr = err
	if err == nil {
		m.lastRun = time.Now()
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("package list build failed",
			"error", err,
			"duration", time.Since(start),
		)
	}

	return err
}

func (m *Manager) buildWithRetry(ctx context.Context) error {
	var lastErr error
	backoff := m.backoff

	for attempt := 0; attempt < m.maxRetries; attempt++ {
		_, err := m.builder.Run(ctx)
		if err == nil {
			return nil
		}

		// a listing the parser rejects will not fix itself
		if !errors.Is(err, packagelist.ErrFetch) {
			return err
		}

		lastErr = err
		m.logger.Warn("build attempt failed",
			"attempt", attempt+1,
			"max_retries", m.maxRetries,
			"error", err,
			"next_backoff", backoff,
		)

		if attempt+1 == m.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return fmt.Errorf("build failed after %d attempts: %w", m.maxRetries, lastErr)
}

// LastRun returns the time of the last successful build
func (m *Manager) LastRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

// LastError returns the error of the last build, if any
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// IsBuilding returns whether a build is in progress
func (m *Manager) IsBuilding() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.building
}
