package domain

// PackageIndex is the package list artifact: distribution -> version -> entries.
type PackageIndex map[string]map[string][]PackageEntry

// PackageEntry is a single architecture entry in a package list artifact.
// The builder emits only Arch and PackageFile; hand-maintained lists may
// carry a full PackageInfo instead.
type PackageEntry struct {
	Arch        string       `json:"arch" yaml:"arch"`
	PackageFile string       `json:"package_file,omitempty" yaml:"package_file,omitempty"`
	PackageURL  string       `json:"package_url,omitempty" yaml:"package_url,omitempty"`
	PackageInfo *PackageInfo `json:"package_info,omitempty" yaml:"package_info,omitempty"`
}

// PackageInfo describes where a package can be obtained.
type PackageInfo struct {
	PackageFile string `json:"package_file,omitempty" yaml:"package_file,omitempty"`
	PackageURL  string `json:"package_url,omitempty" yaml:"package_url,omitempty"`

	// IPS publisher coordinates (OmniOS)
	PublisherURL  string `json:"publisher_url,omitempty" yaml:"publisher_url,omitempty"`
	PublisherName string `json:"publisher_name,omitempty" yaml:"publisher_name,omitempty"`
	PackageName   string `json:"package_name,omitempty" yaml:"package_name,omitempty"`
}

// Info returns the effective package info for the entry.
func (e PackageEntry) Info() PackageInfo {
	if e.PackageInfo != nil {
		return *e.PackageInfo
	}
	return PackageInfo{
		PackageFile: e.PackageFile,
		PackageURL:  e.PackageURL,
	}
}

// HasPublisher reports whether all IPS publisher coordinates are set.
func (p PackageInfo) HasPublisher() bool {
	return p.PublisherURL != "" && p.PublisherName != "" && p.PackageName != ""
}
