package version

import (
	"fmt"
	"runtime"
)

// Build metadata, set through -ldflags "-X stock-analytics/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata for `stockpipe version`.
func String() string {
	return fmt.Sprintf("stockpipe %s\ncommit: %s\nbuilt: %s\ngo: %s %s/%s\n",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
