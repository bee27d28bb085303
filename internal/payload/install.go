package payload

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pflauncher/launcher/internal/logging"
)

// DownloadSuffix marks in-flight downloads. Installers never delete these.
const DownloadSuffix = ".download"

// TempDownloadPath returns a unique download path for component inside dir.
func TempDownloadPath(dir, component string) string {
	return filepath.Join(dir, "."+component+"-"+uuid.NewString()+DownloadSuffix)
}

// IsTempDownload reports whether name is an in-flight download file.
func IsTempDownload(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, DownloadSuffix)
}

// Installer places verified payloads on disk.
type Installer struct {
	logger logging.Logger
}

// NewInstaller creates an installer.
func NewInstaller(logger logging.Logger) *Installer {
	return &Installer{logger: logging.OrNop(logger)}
}

// InstallArchive replaces the contents of targetDir with the contents of
// archivePath. The archive is always deleted, on success and on failure.
//
// Extraction happens in a staging directory next to targetDir. Only when it
// has fully succeeded are the old contents swapped out, so a corrupt archive
// leaves targetDir exactly as it was. In-flight downloads found in targetDir
// are carried over to the new contents.
func (i *Installer) InstallArchive(ctx context.Context, archivePath, targetDir string) (err error) {
	defer func() {
		if rmErr := os.Remove(archivePath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			i.logger.Warn("remove archive", "path", archivePath, "error", rmErr)
		}
	}()

	targetDir = filepath.Clean(targetDir)
	parent := filepath.Dir(targetDir)
	base := filepath.Base(targetDir)

	if err := os.MkdirAll(parent, 0755); err != nil {
		return &FilesystemError{Op: "create install root", Path: parent, Err: err}
	}

	staging := filepath.Join(parent, "."+base+".staging-"+uuid.NewString())
	if err := os.Mkdir(staging, 0755); err != nil {
		return &FilesystemError{Op: "create staging directory", Path: staging, Err: err}
	}
	defer func() {
		// No-op once staging has been renamed into place
		os.RemoveAll(staging)
	}()

	if err := extractArchive(ctx, archivePath, staging); err != nil {
		i.logger.Warn("extraction failed, keeping previous installation", "target", targetDir, "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Enumerate the existing installation
	entries, err := os.ReadDir(targetDir)
	hasOld := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &FilesystemError{Op: "read install directory", Path: targetDir, Err: err}
	}

	// Carry over in-flight downloads, including the archive itself when it
	// lives inside targetDir
	for _, entry := range entries {
		if !IsTempDownload(entry.Name()) {
			continue
		}
		from := filepath.Join(targetDir, entry.Name())
		to := filepath.Join(staging, entry.Name())
		if err := os.Rename(from, to); err != nil {
			return &FilesystemError{Op: "preserve download", Path: from, Err: err}
		}
	}

	old := filepath.Join(parent, "."+base+".old-"+uuid.NewString())
	if hasOld {
		if err := os.Rename(targetDir, old); err != nil {
			i.restoreDownloads(staging, targetDir)
			return &FilesystemError{Op: "move previous installation", Path: targetDir, Err: err}
		}
	}

	if err := os.Rename(staging, targetDir); err != nil {
		if hasOld {
			if rbErr := os.Rename(old, targetDir); rbErr != nil {
				i.logger.Error("restore previous installation", "target", targetDir, "backup", old, "error", rbErr)
			} else {
				i.restoreDownloads(staging, targetDir)
			}
		}
		return &FilesystemError{Op: "activate installation", Path: targetDir, Err: err}
	}

	if hasOld {
		if err := os.RemoveAll(old); err != nil {
			i.logger.Warn("remove previous installation", "path", old, "error", err)
		}
	}

	i.logger.Debug("archive installed", "target", targetDir)
	return nil
}

// restoreDownloads moves carried-over downloads back after a failed swap.
func (i *Installer) restoreDownloads(staging, targetDir string) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !IsTempDownload(entry.Name()) {
			continue
		}
		from := filepath.Join(staging, entry.Name())
		if err := os.Rename(from, filepath.Join(targetDir, entry.Name())); err != nil {
			i.logger.Warn("restore download", "path", from, "error", err)
		}
	}
}

// InstallFile atomically replaces destPath with srcPath. Both must be on the
// same filesystem; callers download into the destination directory. srcPath
// is removed if the replace fails.
func (i *Installer) InstallFile(ctx context.Context, srcPath, destPath string) error {
	if err := ctx.Err(); err != nil {
		os.Remove(srcPath)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		os.Remove(srcPath)
		return &FilesystemError{Op: "create install directory", Path: filepath.Dir(destPath), Err: err}
	}

	if err := os.Rename(srcPath, destPath); err != nil {
		os.Remove(srcPath)
		return &FilesystemError{Op: "replace file", Path: destPath, Err: err}
	}

	i.logger.Debug("file installed", "path", destPath)
	return nil
}
