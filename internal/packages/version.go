package packages

// majorOnly lists distributions whose packages are keyed by major version.
var majorOnly = map[string]bool{
	"CentOS": true,
	"Fedora": true,
	"RedHat": true,
	"Oracle": true,
}

// NormalizeVersion collapses the version of RPM family distributions to
// its first character ("7.2.1511" -> "7"). Other distributions keep the
// version as given. Distribution names are matched case-sensitively.
func NormalizeVersion(dist, vers string) string {
	if majorOnly[dist] && len(vers) > 1 {
		return vers[:1]
	}
	return vers
}
