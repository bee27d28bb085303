package selfupdate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pflauncher/launcher/internal/config"
	"github.com/pflauncher/launcher/internal/payload"
	"github.com/pflauncher/launcher/internal/testutil"
)

type channel struct {
	t      *testing.T
	key    *testutil.SigningKey
	server *httptest.Server

	mu    sync.Mutex
	files map[string][]byte
}

func (c *channel) set(path string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = data
}

func (c *channel) get(path string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[path]
}

func newChannel(t *testing.T) *channel {
	t.Helper()
	c := &channel{t: t, key: testutil.NewSigningKey(t), files: map[string][]byte{}}
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		data, ok := c.files[r.URL.Path]
		c.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(c.server.Close)
	return c
}

// publish serves binary as version v with a signed release document.
func (c *channel) publish(v string, binary []byte, digest string) {
	if digest == "" {
		digest = testutil.SHA256Hex(binary)
	}
	doc, err := json.Marshal(Release{Version: v, URL: c.server.URL + "/launcher-bin", SHA256: digest})
	require.NoError(c.t, err)
	c.set("/launcher-bin", binary)
	c.set("/release.json", doc)
	c.set("/release.json.asc", c.key.Sign(c.t, doc))
}

type fixture struct {
	channel *channel
	target  string
	cfg     *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.SetupTestEnv(t)
	ch := newChannel(t)

	keyring := filepath.Join(env.Home, "release.asc")
	require.NoError(t, os.WriteFile(keyring, ch.key.PublicArmored, 0644))

	target := filepath.Join(t.TempDir(), "launcher")
	require.NoError(t, os.WriteFile(target, []byte("old binary"), 0755))

	cfg := config.Defaults()
	cfg.Home = env.Home
	cfg.SelfUpdate = config.SelfUpdate{
		ManifestURL: ch.server.URL + "/release.json",
		KeyringPath: "release.asc",
	}
	return &fixture{channel: ch, target: target, cfg: cfg}
}

func (f *fixture) updater(t *testing.T, current string, force bool) *Updater {
	t.Helper()
	u, err := New(f.cfg, Options{
		CurrentVersion: current,
		TargetPath:     f.target,
		Force:          force,
		Fetcher:        payload.NewFetcher(payload.FetcherOptions{Retries: -1}),
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) targetContent(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.target)
	require.NoError(t, err)
	return string(data)
}

func TestRun_AppliesNewerRelease(t *testing.T) {
	f := newFixture(t)
	f.channel.publish("1.3.0", []byte("new binary"), "")

	rel, applied, err := f.updater(t, "1.2.0", false).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "1.3.0", rel.Version)
	assert.Equal(t, "new binary", f.targetContent(t))
	assert.Empty(t, testutil.ListDownloads(t, filepath.Dir(f.target)))
}

func TestRun_SkipsSameOrOlder(t *testing.T) {
	for _, current := range []string{"1.3.0", "v1.3.0", "2.0.0"} {
		t.Run(current, func(t *testing.T) {
			f := newFixture(t)
			f.channel.publish("1.3.0", []byte("new binary"), "")

			_, applied, err := f.updater(t, current, false).Run(context.Background())
			require.NoError(t, err)
			assert.False(t, applied)
			assert.Equal(t, "old binary", f.targetContent(t))
		})
	}
}

func TestRun_ForceReinstalls(t *testing.T) {
	f := newFixture(t)
	f.channel.publish("1.3.0", []byte("new binary"), "")

	_, applied, err := f.updater(t, "dev", true).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "new binary", f.targetContent(t))
}

func TestRun_DevBuildNeedsForce(t *testing.T) {
	f := newFixture(t)
	f.channel.publish("1.3.0", []byte("new binary"), "")

	_, applied, err := f.updater(t, "dev", false).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not semver")
	assert.False(t, applied)
}

func TestRun_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.channel.publish("1.3.0", []byte("new binary"), "")
	// Re-sign with an unknown key
	other := testutil.NewSigningKey(t)
	f.channel.set("/release.json.asc", other.Sign(t, f.channel.get("/release.json")))

	_, applied, err := f.updater(t, "1.2.0", false).Run(context.Background())
	require.Error(t, err)
	var mfe *payload.ManifestFormatError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, "signature verification failed", mfe.Reason)
	assert.False(t, applied)
	assert.Equal(t, "old binary", f.targetContent(t))
}

func TestRun_RequiresSignature(t *testing.T) {
	f := newFixture(t)
	f.channel.publish("1.3.0", []byte("new binary"), "")
	f.channel.mu.Lock()
	delete(f.channel.files, "/release.json.asc")
	f.channel.mu.Unlock()

	_, _, err := f.updater(t, "1.2.0", false).Run(context.Background())
	var mfe *payload.ManifestFormatError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, "signature not published", mfe.Reason)
}

func TestRun_DigestMismatchKeepsBinary(t *testing.T) {
	f := newFixture(t)
	f.channel.publish("1.3.0", []byte("new binary"), testutil.SHA256Hex([]byte("something else")))

	_, applied, err := f.updater(t, "1.2.0", false).Run(context.Background())
	var hashErr *payload.HashMismatchError
	require.True(t, errors.As(err, &hashErr), "got %v", err)
	assert.False(t, applied)
	assert.Equal(t, "old binary", f.targetContent(t))
	assert.Empty(t, testutil.ListDownloads(t, filepath.Dir(f.target)))
}

func TestCheck_MalformedRelease(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "nope"},
		{"missing url", `{"version":"1.0.0","sha256":"` + testutil.SHA256Hex(nil) + `"}`},
		{"short digest", `{"version":"1.0.0","url":"http://x/y","sha256":"abc"}`},
		{"non semver", `{"version":"latest","url":"http://x/y","sha256":"` + testutil.SHA256Hex(nil) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.channel.set("/release.json", []byte(tt.doc))
			f.channel.set("/release.json.asc", f.channel.key.Sign(t, []byte(tt.doc)))

			_, _, err := f.updater(t, "1.0.0", false).Check(context.Background())
			var mfe *payload.ManifestFormatError
			require.True(t, errors.As(err, &mfe), "got %v", err)
		})
	}
}

func TestNew_RequiresChannel(t *testing.T) {
	cfg := config.Defaults()
	_, err := New(cfg, Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	cfg.SelfUpdate.ManifestURL = "https://example.com/release.json"
	_, err = New(cfg, Options{})
	assert.Error(t, err)
}
