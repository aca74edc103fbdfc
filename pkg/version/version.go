package version

// Set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Get returns the release version.
func Get() string {
	return Version
}
