package updater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pflauncher/launcher/internal/config"
	"github.com/pflauncher/launcher/internal/logging"
	"github.com/pflauncher/launcher/internal/payload"
	"github.com/pflauncher/launcher/internal/record"
	"github.com/pflauncher/launcher/internal/ui"
)

// ErrNoManifestURL is returned by Sync and Status when no manifest URL is
// configured.
var ErrNoManifestURL = errors.New("no manifest URL configured")

// Journal persists finished passes.
type Journal interface {
	RecordPass(ctx context.Context, r *Result) error
}

// Observer is told about every finished pass.
type Observer interface {
	ObservePass(r *Result)
}

// Options holds the collaborators of an Orchestrator. All are optional.
type Options struct {
	Sink   ui.Sink
	Logger logging.Logger
	// Fetcher overrides the fetcher built from the configuration.
	Fetcher *payload.Fetcher
	// Version is the launcher version, sent in the User-Agent.
	Version   string
	Journal   Journal
	Observers []Observer
	// GOOS selects the executable rule for the locator. Default runtime.GOOS.
	GOOS string
}

// Orchestrator runs synchronization passes for one configuration.
type Orchestrator struct {
	cfg       *config.Config
	store     *record.Store
	fetcher   *payload.Fetcher
	verifier  *payload.Verifier
	installer *payload.Installer
	sink      *ui.Guard
	logger    logging.Logger
	journal   Journal
	observers []Observer
	goos      string

	group singleflight.Group
}

// New creates an orchestrator for cfg.
func New(cfg *config.Config, opts Options) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.OrNop(opts.Logger)

	fetcher := opts.Fetcher
	if fetcher == nil {
		retries := cfg.Retries
		if retries == 0 {
			// FetcherOptions treats 0 as "default"
			retries = -1
		}
		userAgent := "pflauncher"
		if opts.Version != "" {
			userAgent += "/" + opts.Version
		}
		fetcher = payload.NewFetcher(payload.FetcherOptions{
			ManifestTimeout: cfg.ManifestTimeout,
			PayloadTimeout:  cfg.PayloadTimeout,
			Retries:         retries,
			UserAgent:       userAgent,
			BandwidthLimit:  cfg.BandwidthLimit,
			Logger:          logger,
		})
	}

	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	return &Orchestrator{
		cfg:       cfg,
		store:     record.NewStore(cfg.RecordPath()),
		fetcher:   fetcher,
		verifier:  payload.NewVerifier(cfg.AllowUnverified),
		installer: payload.NewInstaller(logger),
		sink:      ui.Guarded(opts.Sink),
		logger:    logger,
		journal:   opts.Journal,
		observers: opts.Observers,
		goos:      goos,
	}, nil
}

// Sync runs one pass. Concurrent calls share a single pass and its result.
//
// The returned Result is never nil. A non-nil error means the pass could not
// run (StatusFailed) or was canceled; per-component failures are reported in
// Result.Outcomes only.
func (o *Orchestrator) Sync(ctx context.Context) (*Result, error) {
	v, err, shared := o.group.Do("sync", func() (interface{}, error) {
		return o.run(ctx)
	})
	if shared {
		o.logger.Debug("joined running sync pass")
	}
	return v.(*Result), err
}

func (o *Orchestrator) run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Started: time.Now()}
	log := logging.With(o.logger, "run_id", res.RunID)
	log.Info("sync pass started", "manifest", config.RedactURL(o.cfg.ManifestURL), "components", len(o.cfg.Components))

	err := o.pass(ctx, res, log)
	res.Duration = time.Since(res.Started)

	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		o.sink.Log("Update failed: " + err.Error())
		log.Error("sync pass failed", "kind", payload.ErrorKind(err), "error", err, "duration", res.Duration)
	} else {
		o.sink.Log(summary(res))
		log.Info("sync pass finished",
			"status", res.Status,
			"updated", res.Count(Updated),
			"failed", res.Count(Failed),
			"playable", res.Playable,
			"duration", res.Duration)
	}

	o.publish(ctx, res, log)
	return res, err
}

func (o *Orchestrator) pass(ctx context.Context, res *Result, log logging.Logger) error {
	if o.cfg.ManifestURL == "" {
		return ErrNoManifestURL
	}

	lock, err := o.store.Lock(ctx)
	if err != nil {
		return fmt.Errorf("lock version record: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("release record lock", "error", err)
		}
	}()

	rec, err := o.store.Load()
	if err != nil {
		return err
	}

	o.sink.Log("Checking for updates...")
	manifest, err := o.fetchManifest(ctx, log)
	if err != nil {
		var netErr *payload.NetworkError
		if !errors.As(err, &netErr) {
			return err
		}
		if rec.Empty() {
			return fmt.Errorf("no installed version to fall back to: %w", err)
		}

		o.sink.Log("Update server unreachable, using the installed version")
		log.Warn("manifest unreachable, continuing offline", "error", err)
		for _, comp := range o.cfg.Components {
			v, _ := rec.Version(comp.Name)
			res.Outcomes = append(res.Outcomes, Outcome{
				Component:       comp.Name,
				Kind:            SkippedOffline,
				State:           StateIdle,
				Version:         v,
				PreviousVersion: v,
			})
		}
		res.Status = StatusOffline
		o.checkPlayable(rec, res, log)
		return nil
	}

	for _, comp := range o.cfg.Components {
		res.Outcomes = append(res.Outcomes, o.syncComponent(ctx, comp, manifest, rec, log))
	}
	res.Status = aggregate(res.Outcomes)
	o.checkPlayable(rec, res, log)

	return ctx.Err()
}

// fetchManifest downloads the manifest and, when a keyring is configured,
// checks its detached signature. A missing or invalid signature is a
// ManifestFormatError.
func (o *Orchestrator) fetchManifest(ctx context.Context, log logging.Logger) (*payload.Manifest, error) {
	m, err := o.fetcher.FetchManifest(ctx, o.cfg.ManifestURL)
	if err != nil {
		return nil, err
	}

	sigURL := o.cfg.ManifestSignatureURL()
	if sigURL == "" {
		return o.checkEntries(m, log)
	}

	keyring, err := payload.LoadKeyring(o.cfg.Resolve(o.cfg.KeyringPath))
	if err != nil {
		return nil, fmt.Errorf("load manifest keyring: %w", err)
	}

	sig, err := o.fetcher.FetchBytes(ctx, sigURL)
	if err != nil {
		var netErr *payload.NetworkError
		if errors.As(err, &netErr) && netErr.StatusCode == http.StatusNotFound {
			return nil, &payload.ManifestFormatError{URL: sigURL, Reason: "signature not published", Err: err}
		}
		return nil, err
	}

	if err := payload.VerifySignature(keyring, m.Raw, sig); err != nil {
		return nil, &payload.ManifestFormatError{URL: o.cfg.ManifestURL, Reason: "signature verification failed", Err: err}
	}

	log.Debug("manifest signature verified", "signature", config.RedactURL(sigURL))
	return o.checkEntries(m, log)
}

// checkEntries fails the pass on a malformed entry for a tracked component
// and only logs those of components this launcher does not install.
func (o *Orchestrator) checkEntries(m *payload.Manifest, log logging.Logger) (*payload.Manifest, error) {
	tracked := make(map[string]bool, len(o.cfg.Components))
	for _, c := range o.cfg.Components {
		tracked[c.Name] = true
	}
	for _, name := range m.InvalidComponents() {
		if tracked[name] {
			return nil, &payload.ManifestFormatError{URL: o.cfg.ManifestURL, Reason: "malformed entry for " + name, Err: m.Invalid(name)}
		}
		log.Warn("ignoring malformed manifest entry", "component", name, "error", m.Invalid(name))
	}
	return m, nil
}

func (o *Orchestrator) publish(ctx context.Context, res *Result, log logging.Logger) {
	for _, obs := range o.observers {
		obs.ObservePass(res)
	}
	if o.journal == nil {
		return
	}
	// A canceled pass is still journaled
	if err := o.journal.RecordPass(context.WithoutCancel(ctx), res); err != nil {
		log.Warn("record sync history", "error", err)
	}
}

func summary(res *Result) string {
	switch res.Status {
	case StatusNothingToDo:
		return "Everything is up to date"
	case StatusUpdated:
		return fmt.Sprintf("Update complete (%d updated)", res.Count(Updated))
	case StatusPartialFailure:
		return fmt.Sprintf("Update finished with %d failure(s)", res.Count(Failed))
	case StatusOffline:
		return "Offline: running the installed version"
	default:
		return string(res.Status)
	}
}
