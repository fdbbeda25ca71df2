package platform

import "strings"

// containerSystems are the gopsutil virtualization systems that run the
// client inside a container rather than a VM.
var containerSystems = map[string]bool{
	"docker":     true,
	"podman":     true,
	"lxc":        true,
	"openvz":     true,
	"rkt":        true,
	"kubepod":    true,
	"containerd": true,
}

// normalizeArch converts uname spellings to GOARCH names.
func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	case "i386", "i686":
		return "386"
	default:
		return arch
	}
}

// normalizeID lowercases and trims a release id or version.
func normalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isContainer(system, role string) bool {
	return role == "guest" && containerSystems[normalizeID(system)]
}
