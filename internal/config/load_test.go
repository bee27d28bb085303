package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pflauncher/launcher/internal/testutil"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	cfg, err := Load(context.Background(), LoadOptions{Detector: linuxDetector()})
	require.NoError(t, err)

	assert.Equal(t, env.Home, cfg.Home)
	assert.Equal(t, DefaultComponents(), cfg.Components)
	assert.Equal(t, "", cfg.ManifestURL)
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	writeConfig(t, env.Config, `
launcher = {
  manifest_url = "https://file.example.com/v.json",
  retries = 1,
  log = { level = "warn" },
}
`)

	t.Setenv("LAUNCHER_MANIFEST_URL", "https://env.example.com/v.json")
	t.Setenv("LAUNCHER_RETRIES", "3")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(KeyLogLevel, "info", "")
	flags.Int(KeyRetries, 0, "")
	require.NoError(t, flags.Parse([]string{"--log-level=debug"}))

	cfg, err := Load(context.Background(), LoadOptions{Flags: flags, Detector: linuxDetector()})
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/v.json", cfg.ManifestURL, "env overrides file")
	assert.Equal(t, 3, cfg.Retries, "unchanged flag does not override env")
	assert.Equal(t, "debug", cfg.Log.Level, "flag overrides file")
}

func TestLoad_ExplicitConfigFlag(t *testing.T) {
	testutil.SetupTestEnv(t)
	path := filepath.Join(t.TempDir(), "custom.lua")
	writeConfig(t, path, `launcher = { record_file = "custom.json" }`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(KeyConfig, "", "")
	require.NoError(t, flags.Parse([]string{"--config", path}))

	cfg, err := Load(context.Background(), LoadOptions{Flags: flags, Detector: linuxDetector()})
	require.NoError(t, err)
	assert.Equal(t, "custom.json", cfg.RecordFile)
}

func TestLoad_InvalidFile(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	writeConfig(t, env.Config, `launcher = { retries = 99 }`)

	_, err := Load(context.Background(), LoadOptions{Detector: linuxDetector()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries")
}

func TestLoad_InvalidOverlay(t *testing.T) {
	testutil.SetupTestEnv(t)
	t.Setenv("LAUNCHER_MANIFEST_URL", "not a url")

	_, err := Load(context.Background(), LoadOptions{Detector: linuxDetector()})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "manifest_url", verr.Field)
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/x/launcher.lua", filepath.ToSlash(ConfigPath("/x/launcher.lua", "/home")))
	assert.Equal(t, filepath.Join("/home", "launcher.lua"), ConfigPath("", "/home"))
	assert.Equal(t, filepath.Join(DefaultHome(), "launcher.lua"), ConfigPath("", ""))
}
