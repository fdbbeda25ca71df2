package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector asks the running host.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect reports OS and architecture from the runtime and the release,
// kernel and container details from gopsutil.
//
// Missing release details leave fields empty. Only a cancelled context is
// an error.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:   runtime.GOOS,
		Arch: normalizeArch(runtime.GOARCH),
	}

	stat, err := host.InfoWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		if stat == nil {
			return info, nil
		}
		// gopsutil returns partial results alongside warnings.
	}

	info.Release = normalizeID(stat.Platform)
	info.ReleaseVersion = normalizeID(stat.PlatformVersion)
	info.Kernel = stat.KernelVersion
	info.Container = isContainer(stat.VirtualizationSystem, stat.VirtualizationRole)
	return info, nil
}
