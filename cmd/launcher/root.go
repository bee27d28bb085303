package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pflauncher/launcher/internal/config"
	"github.com/pflauncher/launcher/internal/logging"
	"github.com/pflauncher/launcher/internal/payload"
	"github.com/pflauncher/launcher/internal/platform"
	"github.com/pflauncher/launcher/internal/updater"
)

// app holds what every command shares once flags are parsed.
type app struct {
	version string
	// detector and goos are overridden by tests.
	detector platform.Detector
	goos     string

	cfg    *config.Config
	logger *logging.SlogLogger
}

func newApp(version string) *app {
	return &app{version: version}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "launcher",
		Short: "Keep the game and launcher content up to date",
		Long: `launcher synchronizes the installed game, its UI and asset bundles with
the versions published in a remote manifest, verifying every download before
it replaces the installed copy.`,
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String(config.KeyConfig, "", "path to launcher.lua (env LAUNCHER_CONFIG)")
	pf.String(config.KeyManifestURL, "", "remote version manifest URL")
	pf.String(config.KeySignatureURL, "", "detached manifest signature URL (default <manifest-url>.asc)")
	pf.String(config.KeyKeyring, "", "OpenPGP keyring that signs the manifest")
	pf.String(config.KeyHome, "", "install root")
	pf.String(config.KeyRecordFile, "", "version record file, relative to the install root")
	pf.Int(config.KeyRetries, payload.DefaultRetries, "download retries")
	pf.Int64(config.KeyBandwidthLimit, 0, "download cap in bytes per second (0 = unlimited)")
	pf.Bool(config.KeyAllowUnverified, false, "install payloads published without a digest")
	pf.String(config.KeyLogLevel, "", "log level: debug, info, warn, error")
	pf.Bool(config.KeyLogJSON, false, "log in JSON")
	pf.String(config.KeyLogFile, "", "additional JSON log file")
	pf.String(config.KeyMetricsFile, "", "write Prometheus metrics to this textfile after each sync")

	root.AddCommand(
		newSyncCmd(a),
		newStatusCmd(a),
		newLocateCmd(a),
		newHashCmd(a),
		newSelfUpdateCmd(a),
		newHistoryCmd(a),
		newInitCmd(a),
	)
	return root
}

// setup loads the configuration and the logger.
func (a *app) setup(cmd *cobra.Command) error {
	// Warnings raised while loading the config go to stderr before the
	// configured logger exists
	bootstrap, err := logging.New(logging.Config{Level: "warn", Writer: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}

	cfg, err := config.Load(cmd.Context(), config.LoadOptions{
		Flags:    cmd.Flags(),
		Detector: a.detector,
		Logger:   bootstrap,
	})
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		JSON:   cfg.Log.JSON,
		File:   cfg.Resolve(cfg.Log.File),
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// orchestrator builds an orchestrator for the loaded configuration.
func (a *app) orchestrator(opts updater.Options) (*updater.Orchestrator, error) {
	opts.Logger = a.logger
	opts.Version = a.version
	if opts.GOOS == "" {
		opts.GOOS = a.goos
	}
	return updater.New(a.cfg, opts)
}

// fetcher builds a fetcher for one-off downloads outside a sync pass.
func (a *app) fetcher() *payload.Fetcher {
	retries := a.cfg.Retries
	if retries == 0 {
		retries = -1
	}
	return payload.NewFetcher(payload.FetcherOptions{
		ManifestTimeout: a.cfg.ManifestTimeout,
		PayloadTimeout:  a.cfg.PayloadTimeout,
		Retries:         retries,
		UserAgent:       "pflauncher/" + a.version,
		BandwidthLimit:  a.cfg.BandwidthLimit,
		Logger:          a.logger,
	})
}
