// Package testutil provides utilities for testing the launcher in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the isolated directories created by SetupTestEnv.
type Env struct {
	Home   string
	Config string
}

// SetupTestEnv creates isolated test directories for each test and points
// the launcher environment variables at them, so tests never touch a real
// installation or the user's configuration.
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	// Create temp directory (auto-cleaned by testing framework)
	tmpDir := t.TempDir()

	env := Env{
		Home:   filepath.Join(tmpDir, "home"),
		Config: filepath.Join(tmpDir, "config", "launcher.lua"),
	}

	t.Setenv("LAUNCHER_HOME", env.Home)
	t.Setenv("LAUNCHER_CONFIG", env.Config)
	t.Setenv("LAUNCHER_MANIFEST_URL", "")

	// Mark as test mode
	t.Setenv("LAUNCHER_TEST_MODE", "1")

	for _, dir := range []string{env.Home, filepath.Dir(env.Config)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}

// ListDownloads returns every in-flight download file (".*.download") left
// anywhere under root.
func ListDownloads(t *testing.T, root string) []string {
	t.Helper()

	var leftovers []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if !d.IsDir() && len(name) > 1 && name[0] == '.' && filepath.Ext(name) == ".download" {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk %s: %v", root, err)
	}
	return leftovers
}

// SnapshotDir returns relative path -> content for every regular file under
// root, for byte-for-byte comparisons.
func SnapshotDir(t *testing.T, root string) map[string]string {
	t.Helper()

	snap := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		snap[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("snapshot %s: %v", root, err)
	}
	return snap
}
