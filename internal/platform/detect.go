package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect performs platform detection. OS and architecture come from the Go
// runtime; distribution and kernel details come from gopsutil.
//
// gopsutil failures are not fatal: the launcher only needs OS and arch to
// pick a build, so detail fields are left empty instead.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
		Arch:    normalizeArch(runtime.GOARCH),
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		// Check if context was cancelled - this is a hard failure
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	info.Kernel = normalize(hostInfo.KernelVersion)
	info.Version = normalize(hostInfo.PlatformVersion)
	if info.IsLinux() {
		info.Platform = normalize(hostInfo.Platform)
	}

	return info, nil
}

// normalizeArch maps uname-style names onto GOARCH names. Unknown values are
// passed through lowercased.
func normalizeArch(arch string) string {
	switch a := normalize(arch); a {
	case "x86_64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	case "i386", "i686", "386":
		return "386"
	case "armv7l", "armv6l", "arm":
		return "arm"
	default:
		return a
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
