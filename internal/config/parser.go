package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/pflauncher/launcher/internal/payload"
	"github.com/pflauncher/launcher/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile parses launcher.lua from disk.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes, maximum is %d", path, info.Size(), MaxConfigSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string. Fields the code leaves out
// keep their Defaults values.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	// Detect platform and inject platform table
	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("config evaluation aborted: %w", ctx.Err())
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig reads the global "launcher" table.
func extractConfig(L *lua.LState) (*Config, error) {
	launcherTable := L.GetGlobal(luaGlobalLauncher)
	if launcherTable.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: fmt.Sprintf("missing or invalid '%s' table", luaGlobalLauncher),
			Detail:  fmt.Sprintf("expected table, got %s", launcherTable.Type()),
		}
	}
	table := launcherTable.(*lua.LTable)

	cfg := Defaults()
	r := &reader{}

	r.str(table, luaFieldManifestURL, &cfg.ManifestURL)
	r.str(table, luaFieldSignatureURL, &cfg.SignatureURL)
	r.str(table, luaFieldKeyring, &cfg.KeyringPath)
	r.str(table, luaFieldHome, &cfg.Home)
	r.str(table, luaFieldRecordFile, &cfg.RecordFile)
	r.integer(table, luaFieldRetries, &cfg.Retries)
	r.int64(table, luaFieldBandwidthLimit, &cfg.BandwidthLimit)
	r.boolean(table, luaFieldAllowUnverif, &cfg.AllowUnverified)
	r.str(table, luaFieldGame, &cfg.GameComponent)
	r.str(table, luaFieldHistory, &cfg.HistoryFile)
	r.str(table, luaFieldMetrics, &cfg.MetricsFile)

	if t := r.table(table, luaFieldTimeouts); t != nil {
		r.seconds(t, luaFieldManifest, &cfg.ManifestTimeout)
		r.seconds(t, luaFieldPayload, &cfg.PayloadTimeout)
	}

	if t := r.table(table, luaFieldSelfUpdate); t != nil {
		r.str(t, luaFieldManifestURL, &cfg.SelfUpdate.ManifestURL)
		r.str(t, luaFieldSignatureURL, &cfg.SelfUpdate.SignatureURL)
		r.str(t, luaFieldKeyring, &cfg.SelfUpdate.KeyringPath)
	}

	if t := r.table(table, luaFieldLog); t != nil {
		r.str(t, luaFieldLevel, &cfg.Log.Level)
		r.boolean(t, luaFieldJSON, &cfg.Log.JSON)
		r.str(t, luaFieldFile, &cfg.Log.File)
	}

	if t := r.table(table, luaFieldComponents); t != nil {
		cfg.Components = r.components(t)
	}

	if r.err != nil {
		return nil, &ParseError{Message: "invalid config value", Detail: r.err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return cfg, nil
}

// reader extracts typed fields and keeps the first type error, so the
// extraction code reads as a flat list of fields.
type reader struct {
	err error
}

func (r *reader) fail(key string, want string, got lua.LValue) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: expected %s, got %s", key, want, got.Type())
	}
}

func (r *reader) str(t *lua.LTable, key string, dst *string) {
	switch v := t.RawGetString(key); v.Type() {
	case lua.LTNil:
	case lua.LTString:
		*dst = strings.TrimSpace(v.String())
	default:
		r.fail(key, "string", v)
	}
}

func (r *reader) boolean(t *lua.LTable, key string, dst *bool) {
	switch v := t.RawGetString(key); v.Type() {
	case lua.LTNil:
	case lua.LTBool:
		*dst = bool(v.(lua.LBool))
	default:
		r.fail(key, "boolean", v)
	}
}

func (r *reader) number(t *lua.LTable, key string) (float64, bool) {
	switch v := t.RawGetString(key); v.Type() {
	case lua.LTNil:
		return 0, false
	case lua.LTNumber:
		return float64(lua.LVAsNumber(v)), true
	default:
		r.fail(key, "number", v)
		return 0, false
	}
}

func (r *reader) integer(t *lua.LTable, key string, dst *int) {
	if n, ok := r.number(t, key); ok {
		*dst = int(n)
	}
}

func (r *reader) int64(t *lua.LTable, key string, dst *int64) {
	if n, ok := r.number(t, key); ok {
		*dst = int64(n)
	}
}

func (r *reader) seconds(t *lua.LTable, key string, dst *time.Duration) {
	if n, ok := r.number(t, key); ok {
		*dst = time.Duration(n * float64(time.Second))
	}
}

func (r *reader) table(t *lua.LTable, key string) *lua.LTable {
	switch v := t.RawGetString(key); v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTTable:
		return v.(*lua.LTable)
	default:
		r.fail(key, "table", v)
		return nil
	}
}

// components reads the components array. Nil entries (from platform
// conditionals like `platform.when(platform.is_windows, {...})`) are skipped.
func (r *reader) components(t *lua.LTable) []Component {
	var comps []Component
	for i := 1; i <= t.Len(); i++ {
		v := t.RawGetInt(i)
		switch v.Type() {
		case lua.LTNil:
			continue
		case lua.LTTable:
		default:
			r.fail(fmt.Sprintf("components[%d]", i), "table", v)
			return nil
		}
		ct := v.(*lua.LTable)

		var comp Component
		var kind string
		r.str(ct, luaFieldName, &comp.Name)
		r.str(ct, luaFieldKind, &kind)
		r.str(ct, luaFieldDir, &comp.Dir)
		r.str(ct, luaFieldFile, &comp.File)
		r.str(ct, luaFieldExecutable, &comp.Executable)

		parsed, err := payload.ParseContentType(kind)
		if err != nil {
			if r.err == nil {
				r.err = fmt.Errorf("components[%d].kind: %w", i, err)
			}
			return nil
		}
		comp.Kind = parsed
		if comp.Kind == payload.ContentUnspecified {
			// A file name implies a file component
			if comp.File != "" {
				comp.Kind = payload.ContentFile
			} else {
				comp.Kind = payload.ContentArchive
			}
		}
		if comp.Dir == "" {
			comp.Dir = comp.Name
		}
		comps = append(comps, comp)
	}
	return comps
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		// Extract the most relevant part of the error
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
