// ABOUTME: Build version information
// ABOUTME: Version is overridden at link time with -ldflags "-X"
package version

// Version is the release version, "dev" for untagged builds
var Version = "dev"

const (
	Product      = "audioio"
	Manufacturer = "Sendspin"
)
