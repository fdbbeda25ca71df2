package platform

import (
	"strings"
)

// UserAgent builds the HTTP User-Agent for the client:
//
//	catalogsync/<version> (<os>/<arch>; <release> <release version>[; container])
func UserAgent(version string, info *Info) string {
	if version == "" {
		version = "dev"
	}
	ua := "catalogsync/" + version
	if info == nil {
		return ua
	}
	parts := []string{info.OS + "/" + info.Arch}
	if release := strings.TrimSpace(info.Release + " " + info.ReleaseVersion); release != "" {
		parts = append(parts, release)
	}
	if info.Container {
		parts = append(parts, "container")
	}
	return ua + " (" + strings.Join(parts, "; ") + ")"
}
