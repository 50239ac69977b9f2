package templates

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/circonus-labs/cosi-server/internal/domain"
)

func newTestStore(t *testing.T, files map[string]string) *Store {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	s, err := New(Config{
		Dir:       dir,
		CacheSize: 2,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestStore_Get(t *testing.T) {
	s := newTestStore(t, map[string]string{
		"check-system.json": `{"type": "check", "id": "system"}`,
	})
	ref := domain.TemplateRef{Category: "check", Name: "system"}

	tmpl, cached, err := s.Get(ref)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cached {
		t.Error("first Get() should not be cached")
	}
	if string(tmpl) != `{"type": "check", "id": "system"}` {
		t.Errorf("Get() = %s", tmpl)
	}

	// served from cache even after the file is gone
	if err := os.Remove(s.Path(ref)); err != nil {
		t.Fatal(err)
	}
	if _, cached, err := s.Get(ref); err != nil || !cached {
		t.Errorf("second Get() cached = %v, err = %v", cached, err)
	}

	stats := s.CacheStats()
	if stats.Size != 1 || stats.Capacity != 2 || stats.HitRate != 0.5 {
		t.Errorf("CacheStats() = %+v", stats)
	}

	s.Purge()
	if _, _, err := s.Get(ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Purge() error = %v, want ErrNotFound", err)
	}
}

func TestStore_GetErrors(t *testing.T) {
	s := newTestStore(t, map[string]string{
		"graph-broken.json": `{"type": `,
	})

	_, _, err := s.Get(domain.TemplateRef{Category: "graph", Name: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	_, _, err = s.Get(domain.TemplateRef{Category: "graph", Name: "broken"})
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get(broken) error = %v, want invalid JSON error", err)
	}
	if s.CacheStats().Size != 0 {
		t.Error("failed reads should not be cached")
	}
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without directory should fail")
	}
}
