// Package platform describes the host the catalog sync client runs on. The
// description names the client in its User-Agent header and is exposed to
// Lua configuration as a read-only platform table, so one config file can
// carry per-machine values. It also reports free disk space under the cache
// directory.
package platform

import "context"

// Info describes the host.
type Info struct {
	OS             string // runtime.GOOS
	Arch           string // normalized GOARCH ("amd64", "arm64", ...)
	Release        string // lowercase distro or product id ("ubuntu", "darwin")
	ReleaseVersion string // "22.04", "14.5"; empty when unknown
	Kernel         string // kernel version, empty when unknown
	// Container is set when the host reports itself as a container guest.
	Container bool
}

func (i *Info) IsLinux() bool   { return i.OS == "linux" }
func (i *Info) IsMacOS() bool   { return i.OS == "darwin" }
func (i *Info) IsWindows() bool { return i.OS == "windows" }

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
