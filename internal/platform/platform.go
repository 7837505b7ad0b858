// Package platform normalizes raw operating system names into the platform names
// exposed to step scripts.
package platform

import (
	"runtime"

	"github.com/slok/stepbridge/internal/model"
)

var platforms = map[string]model.Platform{
	"windows": model.PlatformWindows,
	"linux":   model.PlatformLinux,
	"darwin":  model.PlatformDarwin,
}

// Resolve maps a raw OS identifier (as Go reports it on `GOOS`) to a platform name.
// The match is exact and case sensitive, anything else is unknown.
func Resolve(raw string) model.Platform {
	p, ok := platforms[raw]
	if !ok {
		return model.PlatformUnknown
	}
	return p
}

// Host returns the raw OS identifier of the process host.
func Host() string { return runtime.GOOS }
