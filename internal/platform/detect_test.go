package platform

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func TestRealDetector_Detect(t *testing.T) {
	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.Arch == "" {
		t.Error("Arch should not be empty")
	}
	if info.Release != strings.ToLower(info.Release) {
		t.Errorf("Release %q is not normalized", info.Release)
	}
}

func TestRealDetector_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// gopsutil may answer from cached files without checking ctx; either a
	// cancellation error or a successful result is acceptable, never a panic.
	info, err := NewDetector().Detect(ctx)
	if err == nil && info == nil {
		t.Fatal("Detect returned neither info nor error")
	}
}

func TestUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		version string
		info    *Info
		want    string
	}{
		{
			name:    "linux",
			version: "1.2.0",
			info:    &Info{OS: "linux", Arch: "amd64", Release: "ubuntu", ReleaseVersion: "22.04"},
			want:    "catalogsync/1.2.0 (linux/amd64; ubuntu 22.04)",
		},
		{
			name:    "container",
			version: "1.2.0",
			info:    &Info{OS: "linux", Arch: "arm64", Release: "alpine", ReleaseVersion: "3.20.1", Container: true},
			want:    "catalogsync/1.2.0 (linux/arm64; alpine 3.20.1; container)",
		},
		{
			name:    "no_release",
			version: "1.2.0",
			info:    &Info{OS: "windows", Arch: "arm64"},
			want:    "catalogsync/1.2.0 (windows/arm64)",
		},
		{
			name:    "no_info",
			version: "",
			info:    nil,
			want:    "catalogsync/dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserAgent(tt.version, tt.info); got != tt.want {
				t.Errorf("UserAgent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiskFree(t *testing.T) {
	dir := t.TempDir()

	free, err := DiskFree(context.Background(), dir)
	if err != nil {
		t.Fatalf("DiskFree: %v", err)
	}
	if free == 0 {
		t.Error("DiskFree reported zero bytes free")
	}

	// A path that does not exist yet resolves to its parent.
	if _, err := DiskFree(context.Background(), dir+"/not/yet/created.db"); err != nil {
		t.Errorf("DiskFree on missing path: %v", err)
	}
}
