package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/circonus-labs/cosi-server/internal/domain"
)

// ErrNotFound means no template file exists for the requested id.
var ErrNotFound = errors.New("template not found")

// Store serves check, graph, dashboard, worksheet and ruleset templates
// from a directory, caching parsed files.
type Store struct {
	dir       string
	cache     *lru.Cache[string, json.RawMessage]
	cacheSize int
	logger    *slog.Logger

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Config holds template store configuration
type Config struct {
	Dir       string
	CacheSize int
	Logger    *slog.Logger
}

// New creates a new template store
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("template directory is required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cache, err := lru.New[string, json.RawMessage](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &Store{
		dir:       cfg.Dir,
		cache:     cache,
		cacheSize: cfg.CacheSize,
		logger:    cfg.Logger,
	}, nil
}

// Path returns the file holding a template.
func (s *Store) Path(ref domain.TemplateRef) string {
	return filepath.Join(s.dir, ref.Category+"-"+ref.Name+".json")
}

// Get returns a template and whether it came from the cache.
// The reference must already be validated.
func (s *Store) Get(ref domain.TemplateRef) (json.RawMessage, bool, error) {
	id := ref.Category + "-" + ref.Name

	if tmpl, ok := s.cache.Get(id); ok {
		s.cacheHits.Add(1)
		return tmpl, true, nil
	}
	s.cacheMisses.Add(1)

	content, err := os.ReadFile(s.Path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, false, fmt.Errorf("failed to read template %s: %w", id, err)
	}

	if !json.Valid(content) {
		return nil, false, fmt.Errorf("template %s is not valid JSON", id)
	}

	tmpl := json.RawMessage(content)
	s.cache.Add(id, tmpl)
	s.logger.Debug("template cached", "id", id)

	return tmpl, false, nil
}

// Purge drops all cached templates
func (s *Store) Purge() {
	s.cache.Purge()
	s.cacheHits.Store(0)
	s.cacheMisses.Store(0)
}

// CacheStats returns current cache statistics
func (s *Store) CacheStats() *domain.CacheStats {
	hits := s.cacheHits.Load()
	misses := s.cacheMisses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return &domain.CacheStats{
		Size:     s.cache.Len(),
		Capacity: s.cacheSize,
		HitRate:  hitRate,
	}
}
