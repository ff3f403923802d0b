package platform

import (
	"fmt"
	"strings"
)

// normalizeArch converts GOARCH values to the architecture names used in
// recorder release assets.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s (recorder releases exist for amd64 and arm64 only)", arch)
	}
}

// normalizeField lowercases and trims a gopsutil-reported value.
func normalizeField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
