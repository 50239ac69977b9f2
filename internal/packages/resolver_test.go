package packages

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/circonus-labs/cosi-server/internal/domain"
)

const testBaseURL = "http://updates.example.com/packages/"

func newTestResolver() *Resolver {
	return New(Config{
		DefaultURL: testBaseURL,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolver_CentOSScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "packages.json", `{
		"CentOS": {
			"7": [
				{"arch": "x86_64", "package_info": {"package_file": "nad-7-x86_64.rpm", "package_url": null}}
			]
		}
	}`)

	r := newTestResolver()
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if !r.IsSupported("CentOS", "7.2.1511", "x86_64") {
		t.Error("IsSupported(CentOS, 7.2.1511, x86_64) = false, want true")
	}

	pkg, ok := r.Package("CentOS", "7.2.1511", "x86_64")
	if !ok {
		t.Fatal("Package(CentOS, 7.2.1511, x86_64) not found")
	}
	if want := "http://updates.example.com/packages/%%nad-7-x86_64.rpm"; pkg != want {
		t.Errorf("Package() = %q, want %q", pkg, want)
	}

	if _, ok := r.Package("CentOS", "6", "x86_64"); ok {
		t.Error("Package(CentOS, 6, x86_64) found, want not found")
	}

	lerr := r.Error("CentOS", "6", "x86_64")
	if lerr == nil {
		t.Fatal("Error(CentOS, 6, x86_64) = nil")
	}
	if lerr.Code != CodeNotFound {
		t.Errorf("Code = %q, want %q", lerr.Code, CodeNotFound)
	}
	if !strings.Contains(lerr.Message, "6") || !strings.Contains(lerr.Message, "CentOS") {
		t.Errorf("Message = %q, want it to mention 6 and CentOS", lerr.Message)
	}
	if strings.Contains(lerr.Message, "x86_64") {
		t.Errorf("Message = %q, should not mention the architecture", lerr.Message)
	}

	if lerr := r.Error("CentOS", "7", "x86_64"); lerr != nil {
		t.Errorf("Error(CentOS, 7, x86_64) = %v, want nil", lerr)
	}
}

func TestResolver_ErrorSpecificity(t *testing.T) {
	r := newTestResolver()
	r.AddIndex(domain.PackageIndex{
		"Ubuntu": {"14.04": {{Arch: "x86_64", PackageFile: "nad.deb"}}},
	})

	tests := []struct {
		name       string
		dist       string
		vers       string
		arch       string
		mention    []string
		notMention []string
	}{
		{"unknown distro", "Bogus", "1", "x86_64", []string{"Bogus"}, []string{`"1"`, "x86_64"}},
		{"unknown version", "Ubuntu", "12.04", "i386", []string{"Ubuntu", "12.04"}, []string{"i386"}},
		{"unknown arch", "Ubuntu", "14.04", "i386", []string{"Ubuntu", "14.04", "i386"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lerr := r.Error(tt.dist, tt.vers, tt.arch)
			if lerr == nil {
				t.Fatal("Error() = nil, want NOT_FOUND")
			}
			for _, s := range tt.mention {
				if !strings.Contains(lerr.Message, s) {
					t.Errorf("Message = %q, want it to mention %q", lerr.Message, s)
				}
			}
			for _, s := range tt.notMention {
				if strings.Contains(lerr.Message, s) {
					t.Errorf("Message = %q, should not mention %q", lerr.Message, s)
				}
			}
		})
	}
}

func TestResolver_Have(t *testing.T) {
	r := newTestResolver()
	r.AddIndex(domain.PackageIndex{
		"CentOS": {"7": {{Arch: "x86_64", PackageFile: "nad.rpm"}}},
	})

	if !r.HaveDistro("CentOS") || r.HaveDistro("Ubuntu") {
		t.Error("HaveDistro() mismatch")
	}
	if !r.HaveVersion("CentOS", "7.3.1611") || r.HaveVersion("CentOS", "6.8") {
		t.Error("HaveVersion() mismatch")
	}
	if r.HaveVersion("Ubuntu", "7") {
		t.Error("HaveVersion() true for unknown distro")
	}
	if !r.HaveArchitecture("CentOS", "7", "x86_64") || r.HaveArchitecture("CentOS", "7", "i386") {
		t.Error("HaveArchitecture() mismatch")
	}
	if r.HaveArchitecture("CentOS", "6", "x86_64") {
		t.Error("HaveArchitecture() true for unknown version")
	}
}

func TestResolver_FirstSeenWins(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.json",
		`{"Ubuntu": {"14.04": [{"arch": "x86_64", "package_file": "first.deb"}]}}`)
	second := writeFile(t, dir, "second.json",
		`{"Ubuntu": {"14.04": [{"arch": "x86_64", "package_file": "second.deb"}, {"arch": "i386", "package_file": "second-i386.deb"}]}}`)

	r := newTestResolver()
	for _, p := range []string{first, second} {
		if err := r.LoadFile(p); err != nil {
			t.Fatalf("LoadFile(%s) error = %v", p, err)
		}
	}

	pkg, _ := r.Package("Ubuntu", "14.04", "x86_64")
	if want := testBaseURL + "%%first.deb"; pkg != want {
		t.Errorf("Package() = %q, want %q", pkg, want)
	}
	if !r.IsSupported("Ubuntu", "14.04", "i386") {
		t.Error("entries new in the second file should be merged")
	}

	want := []string{"Ubuntu 14.04 x86_64", "Ubuntu 14.04 i386"}
	if got := r.SupportedList(); !reflect.DeepEqual(got, want) {
		t.Errorf("SupportedList() = %v, want %v", got, want)
	}
	if got := r.Files(); !reflect.DeepEqual(got, []string{first, second}) {
		t.Errorf("Files() = %v", got)
	}
}

func TestResolver_DuplicateWithinVersionArray(t *testing.T) {
	r := newTestResolver()
	added := r.AddIndex(domain.PackageIndex{
		"CentOS": {
			"7": {
				{Arch: "x86_64", PackageFile: "newest.rpm"},
				{Arch: "x86_64", PackageFile: "older.rpm"},
			},
		},
	})

	if added != 1 {
		t.Errorf("AddIndex() added = %d, want 1", added)
	}
	pkg, _ := r.Package("CentOS", "7", "x86_64")
	if !strings.HasSuffix(pkg, "%%newest.rpm") {
		t.Errorf("Package() = %q, want newest.rpm", pkg)
	}
}

func TestResolver_NormalizesOnPopulation(t *testing.T) {
	r := newTestResolver()
	r.AddIndex(domain.PackageIndex{
		"RedHat": {"7.2": {{Arch: "x86_64", PackageFile: "nad.rpm"}}},
	})

	if got := r.SupportedList(); len(got) != 1 || got[0] != "RedHat 7 x86_64" {
		t.Errorf("SupportedList() = %v, want [RedHat 7 x86_64]", got)
	}
	if !r.IsSupported("RedHat", "7", "x86_64") || !r.IsSupported("RedHat", "7.9", "x86_64") {
		t.Error("RedHat 7 lookups should resolve")
	}
}

func TestResolver_PackageURLOverride(t *testing.T) {
	r := newTestResolver()
	r.AddIndex(domain.PackageIndex{
		"Ubuntu": {"16.04": {{
			Arch: "x86_64",
			PackageInfo: &domain.PackageInfo{
				PackageFile: "nad.deb",
				PackageURL:  "https://mirror.example.org/",
			},
		}}},
	})

	pkg, ok := r.Package("Ubuntu", "16.04", "x86_64")
	if !ok {
		t.Fatal("Package() not found")
	}
	if want := "https://mirror.example.org/%%nad.deb"; pkg != want {
		t.Errorf("Package() = %q, want %q", pkg, want)
	}
}

func TestResolver_OmniOS(t *testing.T) {
	r := newTestResolver()
	r.AddIndex(domain.PackageIndex{
		"OmniOS": {"r151014": {{
			Arch: "i386",
			PackageInfo: &domain.PackageInfo{
				PublisherURL:  "http://updates.example.com/omnios/r151014/",
				PublisherName: "circonus",
				PackageName:   "field/nad",
			},
		}}},
	})

	pkg, ok := r.Package("OmniOS", "r151014", "i386")
	if !ok {
		t.Fatal("Package(OmniOS) not found")
	}
	if want := "http://updates.example.com/omnios/r151014/%%circonus%%field/nad"; pkg != want {
		t.Errorf("Package() = %q, want %q", pkg, want)
	}
	if n := strings.Count(pkg, Delimiter); n != 2 {
		t.Errorf("Package() has %d delimiters, want 2", n)
	}
	if strings.Contains(pkg, testBaseURL) {
		t.Errorf("Package() = %q, should not use the default base url", pkg)
	}
}

func TestResolver_SkipsUnusableEntries(t *testing.T) {
	r := newTestResolver()
	added := r.AddIndex(domain.PackageIndex{
		"Ubuntu": {"14.04": {{Arch: "x86_64"}}},
		"OmniOS": {"r151014": {{Arch: "i386", PackageInfo: &domain.PackageInfo{PublisherURL: "http://x/"}}}},
		"CentOS": {"7": {{PackageFile: "no-arch.rpm"}}},
	})

	if added != 0 {
		t.Errorf("AddIndex() added = %d, want 0", added)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	if r.HaveDistro("Ubuntu") {
		t.Error("unusable entries should not be indexed")
	}
}

func TestResolver_LoadFileYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "static.yaml", `
OmniOS:
  r151014:
    - arch: i386
      package_info:
        publisher_url: http://updates.example.com/omnios/r151014/
        publisher_name: circonus
        package_name: field/nad
Ubuntu:
  "16.04":
    - arch: x86_64
      package_file: nad-omnibus.ubuntu.16.04_amd64.deb
`)

	r := newTestResolver()
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !r.IsSupported("OmniOS", "r151014", "i386") {
		t.Error("OmniOS entry not loaded")
	}
	if !r.IsSupported("Ubuntu", "16.04", "x86_64") {
		t.Error("Ubuntu entry not loaded")
	}
}

func TestResolver_LoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	r := newTestResolver()
	err := r.LoadFile(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("LoadFile(missing) error = %v, want ErrArtifactNotFound", err)
	}
	if errors.Is(err, ErrArtifactInvalid) {
		t.Error("missing file should not be reported as invalid")
	}

	bad := writeFile(t, dir, "bad.json", `{"Ubuntu": [`)
	err = r.LoadFile(bad)
	if !errors.Is(err, ErrArtifactInvalid) {
		t.Errorf("LoadFile(bad) error = %v, want ErrArtifactInvalid", err)
	}
	if errors.Is(err, ErrArtifactNotFound) {
		t.Error("corrupt file should not be reported as missing")
	}

	if r.Count() != 0 || len(r.Files()) != 0 {
		t.Error("failed loads should not change the resolver")
	}
}

func TestResolver_LoadFileKeepsFileOrder(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"json", "packages.json", `{
			"Ubuntu": {"14.04": [{"arch": "x86_64", "package_file": "nad.deb"}]},
			"CentOS": {
				"7.2": [{"arch": "x86_64", "package_file": "first.rpm"}],
				"7": [{"arch": "x86_64", "package_file": "second.rpm"}]
			}
		}`},
		{"yaml", "packages.yaml", `Ubuntu:
  "14.04":
    - arch: x86_64
      package_file: nad.deb
CentOS:
  "7.2":
    - arch: x86_64
      package_file: first.rpm
  "7":
    - arch: x86_64
      package_file: second.rpm
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver()
			if err := r.LoadFile(writeFile(t, dir, tt.file, tt.content)); err != nil {
				t.Fatal(err)
			}

			ref, ok := r.Package("CentOS", "7", "x86_64")
			if !ok || ref != testBaseURL+Delimiter+"first.rpm" {
				t.Errorf("Package(CentOS 7) = %q, %v, want first.rpm", ref, ok)
			}

			want := []string{"Ubuntu 14.04 x86_64", "CentOS 7 x86_64"}
			if got := r.SupportedList(); !reflect.DeepEqual(got, want) {
				t.Errorf("SupportedList() = %v, want %v", got, want)
			}
		})
	}
}

func TestResolver_LoadFileRejectsBadShape(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"array.json":    `[{"arch": "x86_64"}]`,
		"trailing.json": `{"Ubuntu": {}} {}`,
		"flat.json":     `{"Ubuntu": "14.04"}`,
		"list.yaml":     "- Ubuntu\n- CentOS\n",
		"flat.yaml":     "Ubuntu: \"14.04\"\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			r := newTestResolver()
			err := r.LoadFile(writeFile(t, dir, name, content))
			if !errors.Is(err, ErrArtifactInvalid) {
				t.Errorf("LoadFile(%s) error = %v, want ErrArtifactInvalid", name, err)
			}
		})
	}
}

func TestKey_String(t *testing.T) {
	k := Key{Dist: "Ubuntu", Vers: "14.04", Arch: "x86_64"}
	if got := k.String(); got != "Ubuntu 14.04 x86_64" {
		t.Errorf("String() = %q", got)
	}
}
