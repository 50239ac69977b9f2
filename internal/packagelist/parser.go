package packagelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/circonus-labs/cosi-server/internal/domain"
)

// ErrListingFormat means the directory listing contains a file the builder
// does not understand. The listing format is assumed to have changed and
// the whole run is rejected.
var ErrListingFormat = errors.New("unrecognized package listing")

var hrefRegex = regexp.MustCompile(`href="([^"]+)"`)

// Identity is what a package file name says about its target host.
type Identity struct {
	File      string
	Extension string
	Dist      string
	Vers      string
	Arch      string

	// EOL is set for files of retired releases which are left out of the index.
	EOL bool
}

// ParseFileName derives the distribution, version and architecture of a
// package from its file name.
//
//	nad-omnibus-20150422T174727Z-1.ubuntu.14.04_amd64.deb -> Ubuntu 14.04 x86_64
//	nad-omnibus-20150422T174727Z-1.el7.x86_64.rpm        -> CentOS 7 x86_64
func ParseFileName(name string) (Identity, error) {
	parts := strings.Split(name, ".")
	id := Identity{
		File:      name,
		Extension: parts[len(parts)-1],
	}
	parts = parts[:len(parts)-1]

	switch id.Extension {
	case "deb":
		if len(parts) < 4 || parts[1] != "ubuntu" {
			return id, fmt.Errorf("%w: unknown deb distribution in %q", ErrListingFormat, name)
		}
		if parts[2] == "10" {
			id.EOL = true
			return id, nil
		}
		minor, arch, ok := strings.Cut(parts[3], "_")
		if !ok || minor == "" || arch == "" {
			return id, fmt.Errorf("%w: no deb version/architecture in %q", ErrListingFormat, name)
		}
		if i := strings.IndexByte(arch, '_'); i >= 0 {
			arch = arch[:i]
		}
		id.Dist = "Ubuntu"
		id.Vers = parts[2] + "." + minor
		id.Arch = arch

	case "rpm":
		if len(parts) < 3 || !strings.HasPrefix(parts[1], "el") || len(parts[1]) < 3 {
			return id, fmt.Errorf("%w: unknown rpm distribution in %q", ErrListingFormat, name)
		}
		id.Dist = "CentOS"
		id.Vers = parts[1][2:3]
		id.Arch = parts[2]

	default:
		return id, fmt.Errorf("%w: unknown package type %q in %q", ErrListingFormat, id.Extension, name)
	}

	// agents report the architecture from uname -p
	if id.Arch == "amd64" {
		id.Arch = "x86_64"
	}

	return id, nil
}

// Stats summarizes a parsed listing.
type Stats struct {
	Files      int
	Entries    int
	EOL        int
	Duplicates int
}

// Parse scans an HTML directory listing and builds a package index.
//
// Only lines starting with "<li>" that carry an href are considered.
// Files are de-duplicated on the part of their name from the first "."
// onwards; the listing is expected newest first so the first file wins.
// Any file that cannot be parsed fails the whole listing.
func Parse(r io.Reader) (domain.PackageIndex, Stats, error) {
	var stats Stats
	index := make(domain.PackageIndex)
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "<li>") {
			continue
		}

		m := hrefRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		href := m[1]
		stats.Files++

		pkgID := href
		if i := strings.IndexByte(href, '.'); i >= 0 {
			pkgID = href[i:]
		}
		if seen[pkgID] {
			stats.Duplicates++
			continue
		}
		seen[pkgID] = true

		id, err := ParseFileName(href)
		if err != nil {
			return nil, stats, err
		}
		if id.EOL {
			stats.EOL++
			continue
		}

		versions, ok := index[id.Dist]
		if !ok {
			versions = make(map[string][]domain.PackageEntry)
			index[id.Dist] = versions
		}
		versions[id.Vers] = append(versions[id.Vers], domain.PackageEntry{
			Arch:        id.Arch,
			PackageFile: id.File,
		})
		stats.Entries++
	}

	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("reading listing: %w", err)
	}

	return index, stats, nil
}
