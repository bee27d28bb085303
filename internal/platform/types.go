// Package platform detects the host the launcher runs on and exposes it to
// launcher.lua as a read-only `platform` table, so component URLs and
// executable names can differ per operating system and architecture.
package platform

import "context"

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // normalized: "amd64", "arm64", "386", "arm"
	ArchRaw  string // original GOARCH
	Platform string // distro ID (Linux only, e.g. "ubuntu")
	Version  string // distro or OS version
	Kernel   string // kernel version, when available
}

// Tag returns "<os>-<arch>", the conventional suffix for per-platform
// game builds (e.g. "windows-amd64").
func (i *Info) Tag() string {
	return i.OS + "-" + i.Arch
}

// ExeSuffix returns ".exe" on Windows and "" elsewhere.
func (i *Info) ExeSuffix() string {
	if i.IsWindows() {
		return ".exe"
	}
	return ""
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

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. Useful for tests and for forcing a
// platform from the command line.
type StaticDetector struct {
	Info *Info
}

// Detect returns a copy of the configured info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	info := *s.Info
	return &info, nil
}
