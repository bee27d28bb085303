package updater

import (
	"context"
	"errors"

	"github.com/pflauncher/launcher/internal/payload"
)

// ComponentStatus compares the installed and published version of one
// component.
type ComponentStatus struct {
	Component string
	// Installed is empty when the component was never installed.
	Installed string
	Available string
	// Published is false when the manifest does not list the component or
	// could not be fetched.
	Published bool
}

// Stale reports whether a sync would download the component.
func (c ComponentStatus) Stale() bool {
	return c.Published && c.Installed != c.Available
}

// Report is the read-only view produced by Status.
type Report struct {
	// Offline is set when the manifest was unreachable; Available is then
	// empty for every component.
	Offline    bool
	Components []ComponentStatus
	Playable   bool
	Executable string
}

// Status compares the record with the manifest without downloading or
// changing anything.
func (o *Orchestrator) Status(ctx context.Context) (*Report, error) {
	if o.cfg.ManifestURL == "" {
		return nil, ErrNoManifestURL
	}

	rec, err := o.store.Load()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	manifest, err := o.fetchManifest(ctx, o.logger)
	if err != nil {
		var netErr *payload.NetworkError
		if !errors.As(err, &netErr) {
			return nil, err
		}
		o.logger.Warn("manifest unreachable", "error", err)
		report.Offline = true
	}

	for _, comp := range o.cfg.Components {
		st := ComponentStatus{Component: comp.Name}
		st.Installed, _ = rec.Version(comp.Name)
		if manifest != nil {
			if entry, ok := manifest.Entry(comp.Name); ok {
				st.Available = entry.Version
				st.Published = true
			}
		}
		report.Components = append(report.Components, st)
	}

	if exe, err := o.locateGame(rec); err == nil {
		report.Playable = true
		report.Executable = exe
	}
	return report, nil
}

// Executable returns the game executable for the launch collaborator. It
// wraps locate.ErrNotFound when the game is not installed or holds no
// executable.
func (o *Orchestrator) Executable() (string, error) {
	rec, err := o.store.Load()
	if err != nil {
		return "", err
	}
	return o.locateGame(rec)
}
