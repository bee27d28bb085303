package payload

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// archiveFormat is detected from content, never from the file extension.
type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatZip
	formatTarGz
)

var (
	zipMagic  = []byte("PK\x03\x04")
	zipEmpty  = []byte("PK\x05\x06")
	gzipMagic = []byte{0x1f, 0x8b}
)

// detectFormat sniffs the first bytes of an archive.
func detectFormat(path string) (archiveFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return formatUnknown, &FilesystemError{Op: "open archive", Path: path, Err: err}
	}
	defer f.Close()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return formatUnknown, &FilesystemError{Op: "read archive", Path: path, Err: err}
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, zipMagic), bytes.HasPrefix(head, zipEmpty):
		return formatZip, nil
	case bytes.HasPrefix(head, gzipMagic):
		return formatTarGz, nil
	default:
		return formatUnknown, &CorruptArchiveError{Path: path, Err: errors.New("unrecognized archive format")}
	}
}

// extractArchive extracts archivePath into destDir, which must exist.
func extractArchive(ctx context.Context, archivePath, destDir string) error {
	format, err := detectFormat(archivePath)
	if err != nil {
		return err
	}

	switch format {
	case formatZip:
		return extractZip(ctx, archivePath, destDir)
	case formatTarGz:
		return extractTarGz(ctx, archivePath, destDir)
	default:
		return &CorruptArchiveError{Path: archivePath, Err: errors.New("unrecognized archive format")}
	}
}

// extractZip extracts a .zip archive to a destination directory
func extractZip(ctx context.Context, archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return &CorruptArchiveError{Path: archivePath, Err: err}
	}
	defer reader.Close()

	for _, file := range reader.File {
		// Cancellation is honored between entries
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := entryTarget(destDir, file.Name)
		if err != nil {
			return wrapEntryError(archivePath, err)
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return &FilesystemError{Op: "create directory", Path: target, Err: err}
			}

		case mode&fs.ModeSymlink != 0:
			linkTarget, err := readZipEntry(file)
			if err != nil {
				return &CorruptArchiveError{Path: archivePath, Err: fmt.Errorf("read symlink %s: %w", file.Name, err)}
			}
			if err := writeSymlink(destDir, target, string(linkTarget)); err != nil {
				return wrapEntryError(archivePath, err)
			}

		case mode.IsRegular():
			rc, err := file.Open()
			if err != nil {
				return &CorruptArchiveError{Path: archivePath, Err: fmt.Errorf("open entry %s: %w", file.Name, err)}
			}
			err = writeEntry(ctx, target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return wrapEntryError(archivePath, err)
			}

		default:
			// Skip other types (devices, pipes)
			continue
		}
	}

	return nil
}

func readZipEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, 4096))
}

// extractTarGz extracts a .tar.gz archive to a destination directory
func extractTarGz(ctx context.Context, archivePath, destDir string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return &FilesystemError{Op: "open archive", Path: archivePath, Err: err}
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return &CorruptArchiveError{Path: archivePath, Err: fmt.Errorf("create gzip reader: %w", err)}
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break // End of archive
		}
		if err != nil {
			return &CorruptArchiveError{Path: archivePath, Err: fmt.Errorf("read tar header: %w", err)}
		}

		target, err := entryTarget(destDir, header.Name)
		if err != nil {
			return wrapEntryError(archivePath, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return &FilesystemError{Op: "create directory", Path: target, Err: err}
			}

		case tar.TypeReg:
			if err := writeEntry(ctx, target, tarReader, os.FileMode(header.Mode).Perm()); err != nil {
				return wrapEntryError(archivePath, err)
			}

		case tar.TypeSymlink:
			if err := writeSymlink(destDir, target, header.Linkname); err != nil {
				return wrapEntryError(archivePath, err)
			}

		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}

	return nil
}

// safeJoin joins an archive entry name onto destDir, rejecting absolute paths
// and traversal outside destDir.
func safeJoin(destDir, name string) (string, error) {
	cleanDest := filepath.Clean(destDir)
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("illegal file path: %q", name)
	}

	target := filepath.Join(cleanDest, filepath.FromSlash(name))
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path: %q", name)
	}
	return target, nil
}

// entryTarget resolves an archive entry to its path under destDir. Besides
// the textual check in safeJoin, no directory on the way to the entry (nor
// the entry itself) may be a symlink extracted earlier from the same
// archive; writes never follow links.
func entryTarget(destDir, name string) (string, error) {
	target, err := safeJoin(destDir, name)
	if err != nil {
		return "", &entryReadError{err: err}
	}

	cleanDest := filepath.Clean(destDir)
	rel, err := filepath.Rel(cleanDest, target)
	if err != nil || rel == "." {
		return target, nil
	}
	cur := cleanDest
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			// Nothing deeper exists yet
			return target, nil
		}
		if err != nil {
			return "", &FilesystemError{Op: "inspect entry path", Path: cur, Err: err}
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", &linkedPathError{name: name, link: cur}
		}
	}
	return target, nil
}

type linkedPathError struct {
	name, link string
}

func (e *linkedPathError) Error() string {
	return fmt.Sprintf("entry %s goes through symlink %s", e.name, e.link)
}

// entryReadError marks a failure reading archive content, as opposed to
// writing it to disk.
type entryReadError struct{ err error }

func (e *entryReadError) Error() string { return e.err.Error() }
func (e *entryReadError) Unwrap() error { return e.err }

func wrapEntryError(archivePath string, err error) error {
	var readErr *entryReadError
	if errors.As(err, &readErr) {
		return &CorruptArchiveError{Path: archivePath, Err: readErr.err}
	}
	var linkErr *illegalLinkError
	var pathErr *linkedPathError
	if errors.As(err, &linkErr) || errors.As(err, &pathErr) {
		return &CorruptArchiveError{Path: archivePath, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var fsErr *FilesystemError
	if errors.As(err, &fsErr) {
		return err
	}
	return &FilesystemError{Op: "extract", Path: archivePath, Err: err}
}

// writeEntry streams src into a new file at target, checking ctx between chunks.
func writeEntry(ctx context.Context, target string, src io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &FilesystemError{Op: "create parent directory", Path: target, Err: err}
	}
	if perm == 0 {
		perm = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return &FilesystemError{Op: "create file", Path: target, Err: err}
	}
	defer out.Close()

	buf := make([]byte, DefaultChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return &FilesystemError{Op: "write file", Path: target, Err: err}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &entryReadError{err: fmt.Errorf("read entry %s: %w", filepath.Base(target), readErr)}
		}
	}

	if err := out.Close(); err != nil {
		return &FilesystemError{Op: "close file", Path: target, Err: err}
	}
	return nil
}

type illegalLinkError struct {
	name, link string
}

func (e *illegalLinkError) Error() string {
	return fmt.Sprintf("symlink %s points outside the install directory: %s", e.name, e.link)
}

// writeSymlink creates a symlink whose target must stay inside destDir.
func writeSymlink(destDir, target, link string) error {
	if filepath.IsAbs(link) {
		return &illegalLinkError{name: target, link: link}
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(link))
	cleanDest := filepath.Clean(destDir)
	if resolved != cleanDest && !strings.HasPrefix(resolved, cleanDest+string(os.PathSeparator)) {
		return &illegalLinkError{name: target, link: link}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &FilesystemError{Op: "create parent directory", Path: target, Err: err}
	}
	if err := os.Symlink(link, target); err != nil {
		return &FilesystemError{Op: "create symlink", Path: target, Err: err}
	}
	return nil
}
