package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pflauncher/launcher/internal/platform"
	"github.com/pflauncher/launcher/internal/testutil"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	a := &app{
		version:  "1.2.0",
		detector: platform.StaticDetector{Info: &platform.Info{OS: "linux", Arch: "amd64", ArchRaw: "amd64"}},
		goos:     "linux",
	}
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), a, args, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// publisher serves a manifest for the four default components.
type publisher struct {
	server *httptest.Server

	mu    sync.Mutex
	files map[string][]byte
}

func (p *publisher) setFile(path string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[path] = data
}

func newPublisher(t *testing.T) *publisher {
	t.Helper()
	p := &publisher{files: map[string][]byte{}}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		data, ok := p.files[r.URL.Path]
		p.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *publisher) manifestURL() string {
	return p.server.URL + "/version.json"
}

// publishAll publishes every default component at version v. A non-empty
// badHash component gets a digest that does not match its payload.
func (p *publisher) publishAll(t *testing.T, v, badHash string) {
	t.Helper()
	payloads := map[string][]byte{
		"core":   []byte("print('core " + v + "')\n"),
		"html":   []byte("<html>" + v + "</html>\n"),
		"game":   testutil.ZipBytes(t, map[string]string{"bin/game": "#!/bin/sh\necho " + v + "\n", "data/level1": "l1"}),
		"assets": testutil.TarGzBytes(t, map[string]string{"textures/a.png": "png"}),
	}

	manifest := map[string]string{}
	for name, data := range payloads {
		path := "/" + name + "-" + v
		p.setFile(path, data)
		manifest[name+"_version"] = v
		manifest[name+"_url"] = path[1:]
		manifest[name+"_hash"] = testutil.SHA256Hex(data)
		if name == badHash {
			manifest[name+"_hash"] = testutil.SHA256Hex([]byte("not it"))
		}
	}
	doc, err := json.Marshal(manifest)
	require.NoError(t, err)
	p.setFile("/version.json", doc)
}

func TestVersionFlag(t *testing.T) {
	testutil.SetupTestEnv(t)
	res := runCLI(t, "--version")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "1.2.0")
}

func TestSync_InstallsEverything(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	pub := newPublisher(t)
	pub.publishAll(t, "1.0", "")

	res := runCLI(t, "sync", "--manifest-url", pub.manifestURL(), "--retries", "0")
	require.Equal(t, 0, res.code, "stdout:\n%s\nstderr:\n%s", res.stdout, res.stderr)
	assert.Contains(t, res.stdout, "Checking for updates...")
	assert.Contains(t, res.stdout, "ready to play")
	assert.Contains(t, res.stdout, "Executable: "+filepath.Join(env.Home, "game", "bin", "game"))

	data, err := os.ReadFile(filepath.Join(env.Home, "version_local.json"))
	require.NoError(t, err)
	var rec map[string]string
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, map[string]string{
		"core_version":   "1.0",
		"html_version":   "1.0",
		"game_version":   "1.0",
		"assets_version": "1.0",
	}, rec)
	assert.Empty(t, testutil.ListDownloads(t, env.Home))

	// Second run is a no-op
	res = runCLI(t, "sync", "--manifest-url", pub.manifestURL(), "--retries", "0")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "Everything is up to date")
}

func TestSync_PartialFailureExitCode(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	pub := newPublisher(t)
	pub.publishAll(t, "1.0", "assets")

	res := runCLI(t, "sync", "--manifest-url", pub.manifestURL(), "--retries", "0")
	assert.Equal(t, exitPartialFailure, res.code)
	assert.Contains(t, res.stdout, "hash_mismatch")
	assert.NoDirExists(t, filepath.Join(env.Home, "assets", "textures"))
	assert.FileExists(t, filepath.Join(env.Home, "game", "bin", "game"))
}

func TestSync_NoManifestURL(t *testing.T) {
	testutil.SetupTestEnv(t)
	res := runCLI(t, "sync")
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "no manifest URL configured")
}

func TestSync_WritesHistoryAndMetrics(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	pub := newPublisher(t)
	pub.publishAll(t, "1.0", "")

	metricsPath := filepath.Join(env.Home, "metrics", "launcher.prom")
	res := runCLI(t, "sync", "--manifest-url", pub.manifestURL(), "--retries", "0", "--metrics-file", metricsPath)
	require.Equal(t, 0, res.code, res.stderr)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `pflauncher_sync_passes_total{status="updated"} 1`)

	res = runCLI(t, "history")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "updated")

	res = runCLI(t, "history", "--component", "game")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "1.0")
}

func TestHistory_Empty(t *testing.T) {
	testutil.SetupTestEnv(t)
	res := runCLI(t, "history")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No sync passes recorded yet")
}

func TestStatus(t *testing.T) {
	testutil.SetupTestEnv(t)
	pub := newPublisher(t)
	pub.publishAll(t, "1.0", "")

	res := runCLI(t, "status", "--manifest-url", pub.manifestURL(), "--retries", "0")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "not installed")
	assert.Contains(t, res.stdout, "Game not installed")

	require.Equal(t, 0, runCLI(t, "sync", "--manifest-url", pub.manifestURL(), "--retries", "0").code)

	pub.publishAll(t, "1.1", "")
	res = runCLI(t, "status", "--manifest-url", pub.manifestURL(), "--retries", "0")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "update available")
	assert.Contains(t, res.stdout, "Executable:")
}

func TestLocate(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	pub := newPublisher(t)
	pub.publishAll(t, "1.0", "")

	res := runCLI(t, "locate")
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "game not installed")

	require.Equal(t, 0, runCLI(t, "sync", "--manifest-url", pub.manifestURL(), "--retries", "0").code)

	res = runCLI(t, "locate")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, filepath.Join(env.Home, "game", "bin", "game"), strings.TrimSpace(res.stdout))
}

func TestHash(t *testing.T) {
	testutil.SetupTestEnv(t)
	pub := newPublisher(t)
	pub.setFile("/core.py", []byte("print('hi')\n"))

	local := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(local, []byte("<html></html>"), 0644))

	url := pub.server.URL + "/core.py"
	res := runCLI(t, "hash", local, url, "--retries", "0")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, testutil.SHA256Hex([]byte("<html></html>"))+"  "+local)
	assert.Contains(t, res.stdout, testutil.SHA256Hex([]byte("print('hi')\n"))+"  "+url)

	res = runCLI(t, "hash", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "1 of 1 inputs could not be hashed")
}

func TestInit(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	pub := newPublisher(t)
	pub.publishAll(t, "1.0", "")

	res := runCLI(t, "init", "--manifest-url", pub.manifestURL())
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Detected linux-amd64")
	assert.DirExists(t, filepath.Join(env.Home, "game"))
	assert.DirExists(t, filepath.Join(env.Home, "app"))

	data, err := os.ReadFile(env.Config)
	require.NoError(t, err)
	assert.Contains(t, string(data), `manifest_url = "`+pub.manifestURL()+`"`)

	// The written file is picked up by later commands
	res = runCLI(t, "sync")
	assert.Equal(t, 0, res.code, res.stderr)

	res = runCLI(t, "init")
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "already exists")

	res = runCLI(t, "init", "--force")
	assert.Equal(t, 0, res.code, res.stderr)
}

func TestSelfUpdate_NotConfigured(t *testing.T) {
	testutil.SetupTestEnv(t)
	res := runCLI(t, "self-update", "--check")
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "self-update channel not configured")
}
