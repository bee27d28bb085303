package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pflauncher/launcher/internal/logging"
	"github.com/pflauncher/launcher/internal/platform"
)

// Overlay keys. Each is read from a flag of the same name and from the
// environment as LAUNCHER_<KEY> with dashes turned into underscores.
const (
	KeyConfig          = "config"
	KeyManifestURL     = "manifest-url"
	KeySignatureURL    = "signature-url"
	KeyKeyring         = "keyring"
	KeyHome            = "home"
	KeyRecordFile      = "record-file"
	KeyRetries         = "retries"
	KeyBandwidthLimit  = "bandwidth-limit"
	KeyAllowUnverified = "allow-unverified"
	KeyLogLevel        = "log-level"
	KeyLogJSON         = "log-json"
	KeyLogFile         = "log-file"
	KeyMetricsFile     = "metrics-file"
)

const envPrefix = "LAUNCHER"

// LoadOptions selects where configuration comes from.
type LoadOptions struct {
	// Flags, when set, are bound to the overlay keys by name.
	Flags *pflag.FlagSet
	// Detector feeds the Lua platform table. Defaults to host detection.
	Detector platform.Detector
	Logger   logging.Logger
}

// Load builds the effective configuration with the precedence:
// defaults < launcher.lua < environment variables < flags.
//
// launcher.lua is looked up at the --config flag, then LAUNCHER_CONFIG,
// then <home>/launcher.lua. A missing file is not an error.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	logger := logging.OrNop(opts.Logger)

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for _, key := range overlayKeys() {
			if f := opts.Flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", key, err)
				}
			}
		}
	}

	detector := opts.Detector
	if detector == nil {
		detector = platform.NewDetector()
	}

	path := ConfigPath(v.GetString(KeyConfig), v.GetString(KeyHome))
	cfg, err := loadFile(ctx, path, detector, logger)
	if err != nil {
		return nil, err
	}

	applyOverlay(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"path", path,
		"home", cfg.Home,
		"manifest", RedactURL(cfg.ManifestURL),
		"components", len(cfg.Components))
	return cfg, nil
}

// ConfigPath resolves the launcher.lua location from an explicit path and
// an install root, either of which may be empty.
func ConfigPath(explicit, home string) string {
	if explicit != "" {
		return explicit
	}
	if home == "" {
		home = DefaultHome()
	}
	return filepath.Join(home, DefaultConfigFile)
}

func loadFile(ctx context.Context, path string, detector platform.Detector, logger logging.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("no config file, using defaults", "path", path)
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	for _, f := range ScanCredentials(string(data)) {
		logger.Warn("possible credentials in config", "path", path, "line", f.Line, "rule", f.Rule,
			"hint", "set LAUNCHER_MANIFEST_URL in the environment instead")
	}

	cfg, err := NewParser(detector).ParseFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// applyOverlay copies every key set in the environment or on the command
// line onto cfg.
func applyOverlay(v *viper.Viper, cfg *Config) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				*dst = s
			}
		}
	}

	setString(KeyManifestURL, &cfg.ManifestURL)
	setString(KeySignatureURL, &cfg.SignatureURL)
	setString(KeyKeyring, &cfg.KeyringPath)
	setString(KeyHome, &cfg.Home)
	setString(KeyRecordFile, &cfg.RecordFile)
	setString(KeyLogLevel, &cfg.Log.Level)
	setString(KeyLogFile, &cfg.Log.File)
	setString(KeyMetricsFile, &cfg.MetricsFile)

	if v.IsSet(KeyRetries) {
		cfg.Retries = v.GetInt(KeyRetries)
	}
	if v.IsSet(KeyBandwidthLimit) {
		cfg.BandwidthLimit = v.GetInt64(KeyBandwidthLimit)
	}
	if v.IsSet(KeyAllowUnverified) {
		cfg.AllowUnverified = v.GetBool(KeyAllowUnverified)
	}
	if v.IsSet(KeyLogJSON) {
		cfg.Log.JSON = v.GetBool(KeyLogJSON)
	}
}

func overlayKeys() []string {
	return []string{
		KeyConfig, KeyManifestURL, KeySignatureURL, KeyKeyring, KeyHome,
		KeyRecordFile, KeyRetries, KeyBandwidthLimit, KeyAllowUnverified,
		KeyLogLevel, KeyLogJSON, KeyLogFile, KeyMetricsFile,
	}
}
