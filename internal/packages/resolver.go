package packages

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/circonus-labs/cosi-server/internal/domain"
)

// Delimiter separates the parts of a package reference.
const Delimiter = "%%"

// Key identifies a package by distribution, normalized version and architecture.
type Key struct {
	Dist string
	Vers string
	Arch string
}

// String returns the "<dist> <vers> <arch>" form of the key.
func (k Key) String() string {
	return k.Dist + " " + k.Vers + " " + k.Arch
}

// Resolver answers which package a host should install.
//
// A Resolver is populated with LoadFile/AddIndex during startup and is
// read-only afterwards. Lookups are safe for concurrent use once loading
// has completed; loading must not be interleaved with lookups.
type Resolver struct {
	defaultURL string
	logger     *slog.Logger

	supported map[Key]domain.PackageInfo
	order     []Key
	tree      map[string]map[string]map[string]struct{}

	files    []string
	loadedAt time.Time
}

// Config holds resolver configuration
type Config struct {
	// DefaultURL is the base URL used for packages without their own package_url.
	DefaultURL string
	Logger     *slog.Logger
}

// New creates an empty resolver
func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Resolver{
		defaultURL: cfg.DefaultURL,
		logger:     cfg.Logger,
		supported:  make(map[Key]domain.PackageInfo),
		tree:       make(map[string]map[string]map[string]struct{}),
	}
}

// LoadFile reads a package list file and merges it into the resolver.
// Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
// Entries are added in file order; entries already present, from an
// earlier load or earlier in the same file, are kept.
func (r *Resolver) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return fmt.Errorf("failed to read package list %s: %w", path, err)
	}

	var list []distVersions
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		list, err = decodeYAML(content)
	default:
		list, err = decodeJSON(content)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
	}

	added := r.addList(list)
	r.files = append(r.files, path)
	r.loadedAt = time.Now()

	r.logger.Info("package list loaded",
		"path", path,
		"added", added,
		"supported", len(r.order),
	)

	return nil
}

// AddIndex merges a package index into the resolver and returns the number
// of new entries. A map has no order, so distributions and versions are
// visited sorted; use LoadFile to keep the order of a file.
func (r *Resolver) AddIndex(index domain.PackageIndex) int {
	list := make([]distVersions, 0, len(index))
	for _, dist := range sortedKeys(index) {
		dv := distVersions{dist: dist}
		for _, vers := range sortedKeys(index[dist]) {
			dv.versions = append(dv.versions, versionEntries{vers: vers, entries: index[dist][vers]})
		}
		list = append(list, dv)
	}
	return r.addList(list)
}

func (r *Resolver) addList(list []distVersions) int {
	added := 0
	for _, dv := range list {
		for _, ve := range dv.versions {
			for _, entry := range ve.entries {
				if r.add(dv.dist, ve.vers, entry) {
					added++
				}
			}
		}
	}
	return added
}

func (r *Resolver) add(dist, vers string, entry domain.PackageEntry) bool {
	info := entry.Info()

	if entry.Arch == "" || !usable(dist, info) {
		r.logger.Warn("skipping unusable package list entry",
			"dist", dist,
			"vers", vers,
			"arch", entry.Arch,
		)
		return false
	}

	key := Key{Dist: dist, Vers: NormalizeVersion(dist, vers), Arch: entry.Arch}
	if _, ok := r.supported[key]; ok {
		r.logger.Debug("duplicate package list entry ignored", "key", key.String())
		return false
	}

	r.supported[key] = info
	r.order = append(r.order, key)

	versions, ok := r.tree[key.Dist]
	if !ok {
		versions = make(map[string]map[string]struct{})
		r.tree[key.Dist] = versions
	}
	arches, ok := versions[key.Vers]
	if !ok {
		arches = make(map[string]struct{})
		versions[key.Vers] = arches
	}
	arches[key.Arch] = struct{}{}

	return true
}

// usable reports whether info can produce a package reference for dist.
func usable(dist string, info domain.PackageInfo) bool {
	if isOmniOS(dist) {
		return info.HasPublisher()
	}
	return info.PackageFile != ""
}

func isOmniOS(dist string) bool {
	return strings.EqualFold(dist, "OmniOS")
}

// SupportedList returns every resolvable "<dist> <vers> <arch>" in load order.
func (r *Resolver) SupportedList() []string {
	list := make([]string, 0, len(r.order))
	for _, key := range r.order {
		list = append(list, key.String())
	}
	return list
}

// IsSupported reports whether Package would return a reference.
func (r *Resolver) IsSupported(dist, vers, arch string) bool {
	_, ok := r.Package(dist, vers, arch)
	return ok
}

// Package returns the package reference for a host.
//
// For OmniOS the reference is "<publisher_url>%%<publisher_name>%%<package_name>".
// For everything else it is "<base url>%%<package_file>", where the base url
// is the entry's package_url or the resolver default.
func (r *Resolver) Package(dist, vers, arch string) (string, bool) {
	info, ok := r.supported[Key{Dist: dist, Vers: NormalizeVersion(dist, vers), Arch: arch}]
	if !ok {
		return "", false
	}

	if isOmniOS(dist) {
		return strings.Join([]string{info.PublisherURL, info.PublisherName, info.PackageName}, Delimiter), true
	}

	if info.PackageFile == "" {
		return "", false
	}

	base := info.PackageURL
	if base == "" {
		base = r.defaultURL
	}

	return base + Delimiter + info.PackageFile, true
}

// HaveDistro reports whether any package exists for dist.
func (r *Resolver) HaveDistro(dist string) bool {
	_, ok := r.tree[dist]
	return ok
}

// HaveVersion reports whether any package exists for dist and vers.
func (r *Resolver) HaveVersion(dist, vers string) bool {
	if !r.HaveDistro(dist) {
		return false
	}
	_, ok := r.tree[dist][NormalizeVersion(dist, vers)]
	return ok
}

// HaveArchitecture reports whether a package exists for dist, vers and arch.
func (r *Resolver) HaveArchitecture(dist, vers, arch string) bool {
	if !r.HaveVersion(dist, vers) {
		return false
	}
	_, ok := r.tree[dist][NormalizeVersion(dist, vers)][arch]
	return ok
}

// Error explains why no package is available, naming only the least
// specific part that is unknown. It returns nil when a package exists.
func (r *Resolver) Error(dist, vers, arch string) *LookupError {
	switch {
	case r.IsSupported(dist, vers, arch):
		return nil
	case !r.HaveDistro(dist):
		return notFound("unsupported distribution %q", dist)
	case !r.HaveVersion(dist, vers):
		return notFound("unsupported version %q of distribution %q", vers, dist)
	case !r.HaveArchitecture(dist, vers, arch):
		return notFound("unsupported architecture %q for %s %s", arch, dist, vers)
	default:
		return notFound("no package available for %s %s %s", dist, vers, arch)
	}
}

// Count returns the number of supported packages.
func (r *Resolver) Count() int {
	return len(r.order)
}

// Files returns the package list files loaded so far.
func (r *Resolver) Files() []string {
	files := make([]string, len(r.files))
	copy(files, r.files)
	return files
}

// LoadedAt returns when the last package list was loaded.
func (r *Resolver) LoadedAt() time.Time {
	return r.loadedAt
}

// DefaultURL returns the base URL used for packages without their own.
func (r *Resolver) DefaultURL() string {
	return r.defaultURL
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
