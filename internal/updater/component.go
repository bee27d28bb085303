package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/pflauncher/launcher/internal/config"
	"github.com/pflauncher/launcher/internal/locate"
	"github.com/pflauncher/launcher/internal/logging"
	"github.com/pflauncher/launcher/internal/payload"
	"github.com/pflauncher/launcher/internal/record"
	"github.com/pflauncher/launcher/internal/ui"
)

// unknownSizeLogStep spaces the byte-count log lines of downloads whose size
// the server does not announce.
const unknownSizeLogStep = 4 << 20

// syncComponent brings one component up to date. It never returns an error:
// every failure ends up in the Outcome, with the record entry and the
// install directory left as they were.
func (o *Orchestrator) syncComponent(ctx context.Context, comp config.Component, m *payload.Manifest, rec *record.Record, log logging.Logger) Outcome {
	out := Outcome{Component: comp.Name, State: StateChecking}
	prev, installed := rec.Version(comp.Name)
	out.PreviousVersion = prev

	fail := func(state State, err error) Outcome {
		out.Kind = Failed
		out.State = state
		out.Err = err
		o.sink.Log(fmt.Sprintf("%s: update failed: %v", comp.Name, err))
		log.Error("component update failed",
			"component", comp.Name,
			"state", state,
			"kind", out.ErrorKind(),
			"error", err)
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(StateChecking, err)
	}

	entry, ok := m.Entry(comp.Name)
	if !ok {
		return fail(StateChecking, ErrNotInManifest)
	}
	out.Version = entry.Version

	if installed && prev == entry.Version {
		out.Kind = UpToDate
		out.State = StateUpToDate
		log.Debug("component up to date", "component", comp.Name, "version", prev)
		return out
	}

	kind := entry.Type
	if kind == payload.ContentUnspecified {
		kind = comp.Kind
	}
	if kind != comp.Kind {
		return fail(StateChecking, &payload.ManifestFormatError{
			URL:    o.cfg.ManifestURL,
			Reason: fmt.Sprintf("%s is published as %s content but installed as %s", comp.Name, kind, comp.Kind),
		})
	}

	source, err := resolveURL(o.cfg.ManifestURL, entry.URL)
	if err != nil {
		return fail(StateChecking, &payload.ManifestFormatError{URL: o.cfg.ManifestURL, Reason: comp.Name + "_url", Err: err})
	}

	dir := o.cfg.ComponentDir(comp)
	_, statErr := os.Stat(dir)
	freshDir := errors.Is(statErr, fs.ErrNotExist)
	tmp := payload.TempDownloadPath(dir, comp.Name)
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("remove temporary download", "path", tmp, "error", err)
		}
		// A first install that failed leaves no trace; Remove only takes
		// the directory if it is still empty.
		if freshDir && out.Kind == Failed {
			_ = os.Remove(dir)
		}
	}()

	out.State = StateDownloading
	if installed {
		o.sink.Log(fmt.Sprintf("Updating %s %s -> %s", comp.Name, prev, entry.Version))
	} else {
		o.sink.Log(fmt.Sprintf("Installing %s %s", comp.Name, entry.Version))
	}
	o.sink.SetProgress(0)
	log.Info("downloading component", "component", comp.Name, "version", entry.Version, "url", config.RedactURL(source))

	n, err := o.fetcher.FetchStream(ctx, source, tmp, o.progress(comp.Name))
	if err != nil {
		return fail(StateDownloading, err)
	}
	out.Bytes = n

	out.State = StateVerifying
	verification, err := o.verifier.Verify(ctx, tmp, entry.Hash)
	if err != nil {
		return fail(StateVerifying, err)
	}
	out.Verified = verification.Verified()
	if !out.Verified {
		o.sink.Log(fmt.Sprintf("WARNING: %s %s has no published digest and is installed unverified", comp.Name, entry.Version))
		log.Warn("installing unverified payload",
			"component", comp.Name,
			"version", entry.Version,
			"sha256", verification.Digest)
	}

	out.State = StateInstalling
	switch kind {
	case payload.ContentArchive:
		err = o.installer.InstallArchive(ctx, tmp, dir)
	default:
		err = o.installer.InstallFile(ctx, tmp, filepath.Join(dir, comp.File))
	}
	if err != nil {
		return fail(StateInstalling, err)
	}

	// The new content is on disk from here on, so the in-memory entry keeps
	// the new version even if this save fails; a later save persists it.
	// Recording is the tail of the install step, so a save failure is an
	// install failure.
	rec.Set(comp.Name, entry.Version)
	if err := o.store.Save(rec); err != nil {
		return fail(StateInstalling, &payload.FilesystemError{Op: "save version record", Path: o.store.Path(), Err: err})
	}

	out.Kind = Updated
	out.State = StateRecorded
	o.sink.SetProgress(100)
	o.sink.Log(fmt.Sprintf("%s updated to %s", comp.Name, entry.Version))
	log.Info("component updated",
		"component", comp.Name,
		"version", entry.Version,
		"previous", prev,
		"bytes", n,
		"verified", out.Verified)
	return out
}

// progress maps download progress onto the sink: a percentage when the size
// is known, otherwise an occasional byte count.
func (o *Orchestrator) progress(component string) payload.ProgressFunc {
	next := int64(unknownSizeLogStep)
	return func(done, total int64) {
		if pct, ok := ui.Percent(done, total); ok {
			o.sink.SetProgress(pct)
			return
		}
		if done < next {
			return
		}
		o.sink.Log(fmt.Sprintf("%s: %s downloaded", component, humanize.IBytes(uint64(done))))
		for next <= done {
			next += unknownSizeLogStep
		}
	}
}

// resolveURL allows manifest URLs relative to the manifest itself.
func resolveURL(base, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(u).String(), nil
}

func (o *Orchestrator) checkPlayable(rec *record.Record, res *Result, log logging.Logger) {
	exe, err := o.locateGame(rec)
	if err != nil {
		log.Debug("game not playable", "error", err)
		return
	}
	res.Playable = true
	res.Executable = exe
	o.sink.SetPlayMode()
}

// locateGame finds the executable of the installed game component.
func (o *Orchestrator) locateGame(rec *record.Record) (string, error) {
	comp, ok := o.cfg.Component(o.cfg.GameComponent)
	if !ok {
		return "", fmt.Errorf("no game component configured: %w", locate.ErrNotFound)
	}
	if _, ok := rec.Version(comp.Name); !ok {
		return "", fmt.Errorf("%s is not installed: %w", comp.Name, locate.ErrNotFound)
	}

	dir := o.cfg.ComponentDir(comp)
	if comp.Kind == payload.ContentFile {
		path := filepath.Join(dir, comp.File)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%s: %w", path, locate.ErrNotFound)
		}
		return path, nil
	}
	return locate.Find(dir, locate.Options{Pattern: comp.Executable, GOOS: o.goos})
}
