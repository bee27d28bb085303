package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pflauncher/launcher/internal/payload"
)

// Config is the complete launcher configuration. It is built once at
// startup and passed to constructors; nothing reads it from package state.
type Config struct {
	// ManifestURL is the remote version descriptor. Required for sync.
	ManifestURL string `json:"manifest_url"`
	// SignatureURL is the detached OpenPGP signature of the manifest.
	// Defaults to ManifestURL + ".asc" when a keyring is configured.
	SignatureURL string `json:"signature_url,omitempty"`
	// KeyringPath enables manifest signature checks when set.
	KeyringPath string `json:"keyring,omitempty"`

	// Home is the install root. Component directories, the version record
	// and launcher state live under it.
	Home       string `json:"home"`
	RecordFile string `json:"record_file"`

	ManifestTimeout time.Duration `json:"manifest_timeout"`
	PayloadTimeout  time.Duration `json:"payload_timeout"`
	Retries         int           `json:"retries"`
	// BandwidthLimit caps downloads in bytes per second. 0 is unlimited.
	BandwidthLimit int64 `json:"bandwidth_limit,omitempty"`
	// AllowUnverified permits installing payloads the manifest publishes
	// without a digest. Such installs are logged as unverified.
	AllowUnverified bool `json:"allow_unverified,omitempty"`

	// Components are synchronized in this order.
	Components []Component `json:"components"`
	// GameComponent names the component whose directory holds the
	// executable handed to the launch collaborator.
	GameComponent string `json:"game_component"`

	SelfUpdate SelfUpdate `json:"self_update,omitempty"`
	Log        LogConfig  `json:"log,omitempty"`

	// HistoryFile is the SQLite sync journal. Empty disables it.
	HistoryFile string `json:"history_file,omitempty"`
	// MetricsFile is a Prometheus textfile written after each pass. Empty
	// disables it.
	MetricsFile string `json:"metrics_file,omitempty"`
}

// Component describes one independently versioned unit of content.
type Component struct {
	Name string `json:"name"`
	// Kind is the default content type; the manifest may override it.
	Kind payload.ContentType `json:"kind"`
	// Dir is the install directory, relative to Home unless absolute.
	Dir string `json:"dir"`
	// File is the installed file name for file components.
	File string `json:"file,omitempty"`
	// Executable is an optional glob narrowing the executable search.
	Executable string `json:"executable,omitempty"`
}

// SelfUpdate configures the launcher's own update channel.
type SelfUpdate struct {
	ManifestURL string `json:"manifest_url,omitempty"`
	// SignatureURL defaults to ManifestURL + ".asc".
	SignatureURL string `json:"signature_url,omitempty"`
	KeyringPath  string `json:"keyring,omitempty"`
}

// LogConfig configures diagnostics logging.
type LogConfig struct {
	Level string `json:"level,omitempty"`
	JSON  bool   `json:"json,omitempty"`
	// File is an additional JSON log file, relative to Home unless absolute.
	File string `json:"file,omitempty"`
}

// Defaults reproduces the classic launcher layout: a core script and HTML
// UI under app/, a game build under game/ and an asset bundle under assets/.
func Defaults() *Config {
	return &Config{
		Home:            DefaultHome(),
		RecordFile:      DefaultRecordFile,
		ManifestTimeout: payload.DefaultManifestTimeout,
		PayloadTimeout:  payload.DefaultPayloadTimeout,
		Retries:         payload.DefaultRetries,
		Components:      DefaultComponents(),
		GameComponent:   DefaultGameComponent,
		Log:             LogConfig{Level: "info"},
		HistoryFile:     DefaultHistoryFile,
	}
}

// DefaultComponents returns the four classic components.
func DefaultComponents() []Component {
	return []Component{
		{Name: "core", Kind: payload.ContentFile, Dir: "app", File: "core.py"},
		{Name: "html", Kind: payload.ContentFile, Dir: "app", File: "index.html"},
		{Name: "game", Kind: payload.ContentArchive, Dir: "game"},
		{Name: "assets", Kind: payload.ContentArchive, Dir: "assets"},
	}
}

// DefaultHome returns the per-user install root.
func DefaultHome() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pflauncher")
	}
	return "pflauncher"
}

// Component returns the named component.
func (c *Config) Component(name string) (Component, bool) {
	for _, comp := range c.Components {
		if comp.Name == name {
			return comp, true
		}
	}
	return Component{}, false
}

// Resolve returns p relative to Home unless it is absolute or empty.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

// ComponentDir returns the install directory of comp.
func (c *Config) ComponentDir(comp Component) string {
	return c.Resolve(comp.Dir)
}

// RecordPath returns the version record location.
func (c *Config) RecordPath() string {
	return c.Resolve(c.RecordFile)
}

// ManifestSignatureURL returns where the manifest signature is fetched from,
// or "" when signature checks are disabled.
func (c *Config) ManifestSignatureURL() string {
	if c.KeyringPath == "" {
		return ""
	}
	if c.SignatureURL != "" {
		return c.SignatureURL
	}
	return c.ManifestURL + ".asc"
}

// Validate performs basic validation on a Config.
func (c *Config) Validate() error {
	if c.ManifestURL != "" {
		if err := validateURL(c.ManifestURL); err != nil {
			return &ValidationError{Field: "manifest_url", Message: err.Error()}
		}
	}
	if c.SignatureURL != "" {
		if err := validateURL(c.SignatureURL); err != nil {
			return &ValidationError{Field: "signature_url", Message: err.Error()}
		}
	}

	if strings.TrimSpace(c.Home) == "" {
		return &ValidationError{Field: "home", Message: "install root cannot be empty"}
	}
	if c.RecordFile == "" {
		return &ValidationError{Field: "record_file", Message: "cannot be empty"}
	}
	if c.ManifestTimeout <= 0 || c.PayloadTimeout <= 0 {
		return &ValidationError{Field: "timeouts", Message: "timeouts must be positive"}
	}
	if c.Retries < 0 || c.Retries > MaxRetries {
		return &ValidationError{Field: "retries", Message: fmt.Sprintf("must be between 0 and %d", MaxRetries)}
	}
	if c.BandwidthLimit < 0 {
		return &ValidationError{Field: "bandwidth_limit", Message: "cannot be negative"}
	}

	if len(c.Components) == 0 {
		return &ValidationError{Field: "components", Message: "at least one component is required"}
	}
	if len(c.Components) > MaxComponentCount {
		return &ValidationError{
			Field:   "components",
			Message: fmt.Sprintf("too many components (%d), maximum is %d", len(c.Components), MaxComponentCount),
		}
	}

	seen := map[string]bool{}
	archiveDirs := map[string]string{}
	for i, comp := range c.Components {
		field := fmt.Sprintf("components[%d]", i)
		if err := validateComponentName(comp.Name); err != nil {
			return &ValidationError{Field: field + ".name", Message: err.Error()}
		}
		if seen[comp.Name] {
			return &ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate component %q", comp.Name)}
		}
		seen[comp.Name] = true

		if err := validateRelativePath(comp.Dir); err != nil {
			return &ValidationError{Field: field + ".dir", Message: err.Error()}
		}

		switch comp.Kind {
		case payload.ContentFile:
			if comp.File == "" || strings.ContainsAny(comp.File, `/\`) {
				return &ValidationError{Field: field + ".file", Message: "file components need a plain file name"}
			}
		case payload.ContentArchive:
			// Archive installs replace the whole directory
			dir := filepath.Clean(comp.Dir)
			if other, ok := archiveDirs[dir]; ok {
				return &ValidationError{Field: field + ".dir", Message: fmt.Sprintf("directory %q already used by archive component %q", comp.Dir, other)}
			}
			archiveDirs[dir] = comp.Name
		default:
			return &ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown kind %q (expected file or archive)", comp.Kind)}
		}

		if comp.Executable != "" {
			if _, err := filepath.Match(comp.Executable, ""); err != nil {
				return &ValidationError{Field: field + ".executable", Message: err.Error()}
			}
		}
	}

	// File components may not live inside an archive directory, the swap
	// would delete them
	for i, comp := range c.Components {
		if comp.Kind != payload.ContentFile {
			continue
		}
		if owner, ok := archiveDirs[filepath.Clean(comp.Dir)]; ok {
			return &ValidationError{
				Field:   fmt.Sprintf("components[%d].dir", i),
				Message: fmt.Sprintf("directory %q is replaced by archive component %q", comp.Dir, owner),
			}
		}
	}

	if c.GameComponent != "" && !seen[c.GameComponent] {
		return &ValidationError{Field: "game_component", Message: fmt.Sprintf("unknown component %q", c.GameComponent)}
	}

	if c.SelfUpdate.ManifestURL != "" {
		if err := validateURL(c.SelfUpdate.ManifestURL); err != nil {
			return &ValidationError{Field: "self_update.manifest_url", Message: err.Error()}
		}
		if c.SelfUpdate.KeyringPath == "" {
			return &ValidationError{Field: "self_update.keyring", Message: "self-update requires a signing keyring"}
		}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// componentNamePattern matches names usable as manifest key prefixes.
var componentNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func validateComponentName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("name too long (%d chars, max 64)", len(name))
	}
	if !componentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid component name %q (lowercase letters, digits, '_' and '-')", name)
	}
	return nil
}

// validateRelativePath rejects empty paths and traversal out of Home.
// Absolute paths are allowed.
func validateRelativePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(p) {
		return nil
	}
	cleaned := filepath.Clean(p)
	if cleaned == "." {
		return fmt.Errorf("path cannot be the install root itself")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal not allowed: %s", p)
	}
	return nil
}

// validateURL accepts http and https URLs only.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use https:// or http:// scheme (got: %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %s", raw)
	}
	return nil
}
