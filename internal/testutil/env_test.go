package testutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pflauncher/launcher/internal/testutil"
)

func TestSetupTestEnv(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	if got := os.Getenv("LAUNCHER_HOME"); got != env.Home {
		t.Errorf("LAUNCHER_HOME = %q, want %q", got, env.Home)
	}
	if got := os.Getenv("LAUNCHER_CONFIG"); got != env.Config {
		t.Errorf("LAUNCHER_CONFIG = %q, want %q", got, env.Config)
	}
	if os.Getenv("LAUNCHER_TEST_MODE") != "1" {
		t.Error("LAUNCHER_TEST_MODE not set")
	}

	for _, dir := range []string{env.Home, filepath.Dir(env.Config)} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s does not exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestSetupTestEnvIsolation(t *testing.T) {
	var first, second string

	t.Run("first", func(t *testing.T) {
		first = testutil.SetupTestEnv(t).Home
	})
	t.Run("second", func(t *testing.T) {
		second = testutil.SetupTestEnv(t).Home
	})

	if first == second {
		t.Error("test environments should be isolated")
	}
}

func TestListDownloads(t *testing.T) {
	root := t.TempDir()
	files := []string{
		filepath.Join(root, "game", ".game-1.download"),
		filepath.Join(root, "game", "data.pak"),
		filepath.Join(root, "app", "core.py"),
	}
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got := testutil.ListDownloads(t, root)
	if len(got) != 1 || filepath.Base(got[0]) != ".game-1.download" {
		t.Errorf("ListDownloads = %v", got)
	}

	snap := testutil.SnapshotDir(t, root)
	if snap["app/core.py"] != "x" || len(snap) != 3 {
		t.Errorf("SnapshotDir = %v", snap)
	}
}
