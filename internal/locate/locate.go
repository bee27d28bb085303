// Package locate finds the installed game executable for the launch
// collaborator.
package locate

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNotFound is returned when no executable exists under the search root.
var ErrNotFound = errors.New("no executable found")

// Options narrows the search.
type Options struct {
	// Pattern is an optional filepath.Match glob applied to file names.
	Pattern string
	// GOOS selects the matching rule. Defaults to runtime.GOOS.
	GOOS string
}

// Find returns the first executable under dir in lexical walk order. On
// Windows an executable is a ".exe" file; elsewhere it is a regular file with
// any execute bit set. In-flight downloads and hidden files are skipped.
func Find(dir string, opts Options) (string, error) {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if opts.Pattern != "" {
		if _, err := filepath.Match(opts.Pattern, ""); err != nil {
			return "", fmt.Errorf("invalid executable pattern %q: %w", opts.Pattern, err)
		}
	}

	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// Unreadable subtrees are skipped
			return nil
		}

		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if opts.Pattern != "" {
			if ok, _ := filepath.Match(opts.Pattern, name); !ok {
				return nil
			}
		}

		ok, err := isExecutable(d, goos)
		if err != nil || !ok {
			return nil
		}
		found = path
		return filepath.SkipAll
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
		}
		return "", fmt.Errorf("search %s: %w", dir, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
	}
	return found, nil
}

func isExecutable(d fs.DirEntry, goos string) (bool, error) {
	if goos == "windows" {
		return d.Type().IsRegular() && strings.EqualFold(filepath.Ext(d.Name()), ".exe"), nil
	}

	info, err := d.Info()
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0, nil
}
