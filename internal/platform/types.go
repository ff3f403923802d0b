// Package platform detects the host operating system and architecture.
//
// The result selects which recorder release asset to download and is
// exposed to Lua configuration files as a read-only "platform" table.
// Linux distribution details come from gopsutil; detection failures there
// degrade gracefully to OS/arch only.
package platform

import "context"

// Info contains platform detection information.
type Info struct {
	OS      string // "linux", "darwin", "windows"
	Arch    string // "amd64", "arm64" (normalized)
	ArchRaw string // original GOARCH
	Distro  string // distro ID (Linux only, e.g. "ubuntu")
	Family  string // distro family as reported by gopsutil (Linux only)
	Version string // distro version (Linux only, e.g. "22.04")
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// SupportsNativeRecorder reports whether the recorder ships a native binary
// for this platform. Elsewhere only the container image works.
func (i *Info) SupportsNativeRecorder() bool {
	return i.IsLinux() || i.IsMacOS()
}

// AssetSuffix returns the "<os>_<arch>" part of the release asset name.
// macOS releases are universal binaries published as "darwin_all".
func (i *Info) AssetSuffix() string {
	if i.IsMacOS() {
		return "darwin_all"
	}
	return i.OS + "_" + i.Arch
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. It is used where detection must be
// deterministic, such as tests and explicit --os/--arch overrides.
type StaticDetector struct {
	Info Info
}

// Detect returns a copy of the configured Info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info := s.Info
	return &info, nil
}
