package payload

import (
	"context"
	"errors"
	"fmt"
)

// NetworkError reports an unreachable host, a timeout, or a non-2xx response.
// It is recoverable by retry or offline fallback.
type NetworkError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status code: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// retryable reports whether another attempt could succeed.
func (e *NetworkError) retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

// ManifestFormatError reports a manifest body that is not well formed, or a
// manifest whose signature does not verify.
type ManifestFormatError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ManifestFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid manifest %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid manifest %s: %s", e.URL, e.Reason)
}

func (e *ManifestFormatError) Unwrap() error { return e.Err }

// CorruptArchiveError reports an archive that cannot be opened or parsed.
type CorruptArchiveError struct {
	Path string
	Err  error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("corrupt archive %s: %v", e.Path, e.Err)
}

func (e *CorruptArchiveError) Unwrap() error { return e.Err }

// HashMismatchError reports a payload whose digest differs from the manifest.
// An empty Expected means the manifest carried no digest and unverified
// installs are not allowed.
type HashMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("no digest published for %s and unverified installs are disabled", e.Path)
	}
	return fmt.Sprintf("checksum mismatch for %s:\nactual:   %s\nexpected: %s", e.Path, e.Actual, e.Expected)
}

// FilesystemError reports a local I/O failure (permission denied, disk full).
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// Error kinds returned by ErrorKind.
const (
	KindNetwork        = "network"
	KindManifestFormat = "manifest_format"
	KindCorruptArchive = "corrupt_archive"
	KindHashMismatch   = "hash_mismatch"
	KindFilesystem     = "filesystem"
	KindCanceled       = "canceled"
	KindOther          = "other"
)

// ErrorKind classifies err into a stable label for logs, history and metrics.
func ErrorKind(err error) string {
	var (
		netErr      *NetworkError
		manifestErr *ManifestFormatError
		archiveErr  *CorruptArchiveError
		hashErr     *HashMismatchError
		fsErr       *FilesystemError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &hashErr):
		return KindHashMismatch
	case errors.As(err, &archiveErr):
		return KindCorruptArchive
	case errors.As(err, &manifestErr):
		return KindManifestFormat
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &fsErr):
		return KindFilesystem
	default:
		return KindOther
	}
}
