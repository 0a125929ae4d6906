package lftl

// These identify the build; overridable at link time with
//   -ldflags "-X github.com/sebastien-riou/lean-ftl.version=1.2.3"
// and left at their defaults otherwise.
var (
	version          = "dev"
	buildType        = "dev"
	versionTimestamp = "unknown"
)

// Version returns the package's version string.
func Version() string { return version }

// BuildType returns the build configuration the package was compiled
// with ("release", "debug", or "dev").
func BuildType() string { return buildType }

// VersionTimestamp returns the build timestamp of the package, or
// "unknown" when not injected at link time.
func VersionTimestamp() string { return versionTimestamp }
