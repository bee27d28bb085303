// Package selfupdate replaces the launcher binary from a signed release
// channel.
//
// The channel is a small JSON document:
//
//	{"version": "1.4.0", "url": "https://.../launcher-linux-amd64", "sha256": "..."}
//
// next to a detached OpenPGP signature. The signature is mandatory, the
// binary digest must match, and the update is applied only when the
// published version is newer than the running one. Game content never goes
// through this path.
package selfupdate

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	minioupdate "github.com/minio/selfupdate"

	"github.com/pflauncher/launcher/internal/config"
	"github.com/pflauncher/launcher/internal/logging"
	"github.com/pflauncher/launcher/internal/payload"
)

// ErrNotConfigured is returned when no release channel is configured.
var ErrNotConfigured = errors.New("self-update channel not configured")

// Release is the published launcher build.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256"`
}

func (r *Release) validate() error {
	if r.Version == "" {
		return errors.New("missing version")
	}
	if r.URL == "" {
		return errors.New("missing url")
	}
	if _, err := hex.DecodeString(strings.TrimSpace(r.SHA256)); err != nil || len(strings.TrimSpace(r.SHA256)) != 64 {
		return errors.New("sha256 must be 64 hex characters")
	}
	return nil
}

// Options configures an Updater.
type Options struct {
	// CurrentVersion is the running launcher version.
	CurrentVersion string
	// TargetPath is the binary to replace. Default: the running executable.
	TargetPath string
	// Force applies the release even when it is not newer, and allows
	// updating builds whose version is not semver.
	Force   bool
	Fetcher *payload.Fetcher
	Logger  logging.Logger
	// OnProgress receives download progress.
	OnProgress payload.ProgressFunc
}

// Updater checks and applies launcher releases.
type Updater struct {
	manifestURL  string
	signatureURL string
	keyringPath  string
	opts         Options
	fetcher      *payload.Fetcher
	logger       logging.Logger
}

// New creates an Updater for the self_update section of cfg.
func New(cfg *config.Config, opts Options) (*Updater, error) {
	su := cfg.SelfUpdate
	if su.ManifestURL == "" {
		return nil, ErrNotConfigured
	}
	if su.KeyringPath == "" {
		return nil, fmt.Errorf("self-update requires a signing keyring")
	}

	sigURL := su.SignatureURL
	if sigURL == "" {
		sigURL = su.ManifestURL + ".asc"
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = payload.NewFetcher(payload.FetcherOptions{
			ManifestTimeout: cfg.ManifestTimeout,
			PayloadTimeout:  cfg.PayloadTimeout,
			UserAgent:       "pflauncher/" + opts.CurrentVersion,
			Logger:          opts.Logger,
		})
	}

	return &Updater{
		manifestURL:  su.ManifestURL,
		signatureURL: sigURL,
		keyringPath:  cfg.Resolve(su.KeyringPath),
		opts:         opts,
		fetcher:      fetcher,
		logger:       logging.OrNop(opts.Logger),
	}, nil
}

// Check fetches and authenticates the release document. The boolean
// reports whether the release should be applied.
func (u *Updater) Check(ctx context.Context) (*Release, bool, error) {
	keyring, err := payload.LoadKeyring(u.keyringPath)
	if err != nil {
		return nil, false, fmt.Errorf("load self-update keyring: %w", err)
	}

	body, err := u.fetcher.FetchBytes(ctx, u.manifestURL)
	if err != nil {
		return nil, false, err
	}
	sig, err := u.fetcher.FetchBytes(ctx, u.signatureURL)
	if err != nil {
		var netErr *payload.NetworkError
		if errors.As(err, &netErr) && netErr.StatusCode == http.StatusNotFound {
			return nil, false, &payload.ManifestFormatError{URL: u.signatureURL, Reason: "signature not published", Err: err}
		}
		return nil, false, err
	}
	if err := payload.VerifySignature(keyring, body, sig); err != nil {
		return nil, false, &payload.ManifestFormatError{URL: u.manifestURL, Reason: "signature verification failed", Err: err}
	}

	var rel Release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, false, &payload.ManifestFormatError{URL: u.manifestURL, Reason: "malformed body", Err: err}
	}
	if err := rel.validate(); err != nil {
		return nil, false, &payload.ManifestFormatError{URL: u.manifestURL, Reason: err.Error()}
	}

	newer, err := u.isNewer(rel.Version)
	if err != nil {
		return nil, false, err
	}
	u.logger.Debug("self-update release checked",
		"current", u.opts.CurrentVersion,
		"available", rel.Version,
		"newer", newer)
	return &rel, newer || u.opts.Force, nil
}

// isNewer compares the release against the running version.
func (u *Updater) isNewer(available string) (bool, error) {
	latest, err := semver.NewVersion(available)
	if err != nil {
		return false, &payload.ManifestFormatError{URL: u.manifestURL, Reason: fmt.Sprintf("version %q is not semver", available), Err: err}
	}
	current, err := semver.NewVersion(u.opts.CurrentVersion)
	if err != nil {
		if u.opts.Force {
			return true, nil
		}
		return false, fmt.Errorf("running version %q is not semver, refusing to self-update without force", u.opts.CurrentVersion)
	}
	return latest.GreaterThan(current), nil
}

// Apply downloads rel, verifies it and swaps it in for the target binary.
// On failure the previous binary stays in place.
func (u *Updater) Apply(ctx context.Context, rel *Release) error {
	target, err := u.targetPath()
	if err != nil {
		return err
	}

	tmp := payload.TempDownloadPath(filepath.Dir(target), "launcher")
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			u.logger.Warn("remove temporary download", "path", tmp, "error", err)
		}
	}()

	u.logger.Info("downloading launcher release", "version", rel.Version, "url", config.RedactURL(rel.URL))
	if _, err := u.fetcher.FetchStream(ctx, rel.URL, tmp, u.opts.OnProgress); err != nil {
		return err
	}

	if _, err := payload.NewVerifier(false).Verify(ctx, tmp, rel.SHA256); err != nil {
		return err
	}

	checksum, err := hex.DecodeString(strings.TrimSpace(rel.SHA256))
	if err != nil {
		return fmt.Errorf("decode checksum: %w", err)
	}

	f, err := os.Open(tmp)
	if err != nil {
		return &payload.FilesystemError{Op: "open release", Path: tmp, Err: err}
	}
	defer f.Close()

	err = minioupdate.Apply(f, minioupdate.Options{
		TargetPath: target,
		Checksum:   checksum,
	})
	if err != nil {
		if rerr := minioupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("apply update: %w (rollback failed: %v)", err, rerr)
		}
		return &payload.FilesystemError{Op: "apply update", Path: target, Err: err}
	}

	u.logger.Info("launcher updated", "version", rel.Version, "path", target)
	return nil
}

// Run checks for a release and applies it when newer. It returns the
// release and whether it was applied.
func (u *Updater) Run(ctx context.Context) (*Release, bool, error) {
	rel, apply, err := u.Check(ctx)
	if err != nil || !apply {
		return rel, false, err
	}
	if err := u.Apply(ctx, rel); err != nil {
		return rel, false, err
	}
	return rel, true, nil
}

func (u *Updater) targetPath() (string, error) {
	if u.opts.TargetPath != "" {
		return u.opts.TargetPath, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate running executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}
