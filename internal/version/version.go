package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Version is the current semantic version of rmodel
const Version = "0.1.0"

// Set at build time with -ldflags "-X github.com/standardbeagle/rmodel/internal/version.GitCommit=..."
var (
	BuildDate = "development"
	GitCommit = "unknown"
)

// Info returns the bare version
func Info() string {
	return Version
}

// FullInfo returns version, commit, build date and Go runtime
func FullInfo() string {
	return fmt.Sprintf("rmodel %s (commit: %s, built: %s, %s %s/%s)",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

var (
	buildID     string
	buildIDOnce sync.Once
)

// BuildID returns a fingerprint of the running binary derived from the Go
// version, module version and VCS settings recorded in the build info
func BuildID() string {
	buildIDOnce.Do(func() {
		buildID = computeBuildID()
	})
	return buildID
}

func computeBuildID() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version + "-" + GitCommit
	}

	d := xxhash.New()
	_, _ = d.WriteString(info.GoVersion)
	_, _ = d.WriteString(info.Main.Path)
	_, _ = d.WriteString(info.Main.Version)
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision", "vcs.modified", "vcs.time":
			_, _ = d.WriteString(s.Key)
			_, _ = d.WriteString(s.Value)
		}
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
