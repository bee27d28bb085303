package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pflauncher/launcher/internal/payload"
)

// Generator generates launcher.lua from a Config.
type Generator struct {
	indent string // Indentation string (default: two spaces)
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ", // Two spaces
	}
}

// Generate renders cfg as launcher.lua. Values equal to Defaults are
// written too, so the generated file documents every setting. The output
// parses back into an equivalent Config.
func (g *Generator) Generate(cfg *Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config is nil")
	}

	var buf bytes.Buffer

	buf.WriteString("-- pflauncher configuration\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(time.Now().Format(time.RFC3339))
	buf.WriteString("\n--\n")
	buf.WriteString("-- A read-only `platform` table is available, e.g.\n")
	buf.WriteString("--   executable = platform.select{ windows = \"*.exe\", default = \"*\" }\n\n")

	buf.WriteString(luaGlobalLauncher + " = {\n")

	g.field(&buf, 1, luaFieldManifestURL, g.quoteLuaString(cfg.ManifestURL))
	if cfg.SignatureURL != "" {
		g.field(&buf, 1, luaFieldSignatureURL, g.quoteLuaString(cfg.SignatureURL))
	}
	if cfg.KeyringPath != "" {
		g.field(&buf, 1, luaFieldKeyring, g.quoteLuaString(cfg.KeyringPath))
	}
	g.field(&buf, 1, luaFieldHome, g.quoteLuaString(cfg.Home))
	g.field(&buf, 1, luaFieldRecordFile, g.quoteLuaString(cfg.RecordFile))
	g.field(&buf, 1, luaFieldRetries, strconv.Itoa(cfg.Retries))
	if cfg.BandwidthLimit > 0 {
		g.field(&buf, 1, luaFieldBandwidthLimit, strconv.FormatInt(cfg.BandwidthLimit, 10))
	}
	g.field(&buf, 1, luaFieldAllowUnverif, strconv.FormatBool(cfg.AllowUnverified))
	g.field(&buf, 1, luaFieldGame, g.quoteLuaString(cfg.GameComponent))
	g.field(&buf, 1, luaFieldHistory, g.quoteLuaString(cfg.HistoryFile))
	if cfg.MetricsFile != "" {
		g.field(&buf, 1, luaFieldMetrics, g.quoteLuaString(cfg.MetricsFile))
	}
	buf.WriteString("\n")

	g.open(&buf, 1, luaFieldTimeouts)
	g.field(&buf, 2, luaFieldManifest, formatSeconds(cfg.ManifestTimeout))
	g.field(&buf, 2, luaFieldPayload, formatSeconds(cfg.PayloadTimeout))
	g.close(&buf, 1)

	g.writeComponents(&buf, cfg.Components)

	if cfg.Log != (LogConfig{}) {
		g.open(&buf, 1, luaFieldLog)
		if cfg.Log.Level != "" {
			g.field(&buf, 2, luaFieldLevel, g.quoteLuaString(cfg.Log.Level))
		}
		if cfg.Log.JSON {
			g.field(&buf, 2, luaFieldJSON, "true")
		}
		if cfg.Log.File != "" {
			g.field(&buf, 2, luaFieldFile, g.quoteLuaString(cfg.Log.File))
		}
		g.close(&buf, 1)
	}

	if cfg.SelfUpdate != (SelfUpdate{}) {
		g.open(&buf, 1, luaFieldSelfUpdate)
		g.field(&buf, 2, luaFieldManifestURL, g.quoteLuaString(cfg.SelfUpdate.ManifestURL))
		if cfg.SelfUpdate.SignatureURL != "" {
			g.field(&buf, 2, luaFieldSignatureURL, g.quoteLuaString(cfg.SelfUpdate.SignatureURL))
		}
		g.field(&buf, 2, luaFieldKeyring, g.quoteLuaString(cfg.SelfUpdate.KeyringPath))
		g.close(&buf, 1)
	}

	buf.WriteString("}\n")

	return buf.String(), nil
}

// writeComponents writes the components section to the buffer.
func (g *Generator) writeComponents(buf *bytes.Buffer, comps []Component) {
	g.open(buf, 1, luaFieldComponents)
	for _, c := range comps {
		buf.WriteString(strings.Repeat(g.indent, 2))
		buf.WriteString("{ ")
		parts := []string{
			luaFieldName + " = " + g.quoteLuaString(c.Name),
			luaFieldKind + " = " + g.quoteLuaString(string(c.Kind)),
			luaFieldDir + " = " + g.quoteLuaString(c.Dir),
		}
		if c.Kind == payload.ContentFile {
			parts = append(parts, luaFieldFile+" = "+g.quoteLuaString(c.File))
		}
		if c.Executable != "" {
			parts = append(parts, luaFieldExecutable+" = "+g.quoteLuaString(c.Executable))
		}
		buf.WriteString(strings.Join(parts, ", "))
		buf.WriteString(" },\n")
	}
	g.close(buf, 1)
}

func (g *Generator) field(buf *bytes.Buffer, depth int, key, value string) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString(key)
	buf.WriteString(" = ")
	buf.WriteString(value)
	buf.WriteString(",\n")
}

func (g *Generator) open(buf *bytes.Buffer, depth int, key string) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString(key)
	buf.WriteString(" = {\n")
}

func (g *Generator) close(buf *bytes.Buffer, depth int) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString("},\n")
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	// Use double quotes and escape special characters
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"") // Escape double quotes
	s = strings.ReplaceAll(s, "\n", "\\n")  // Escape newlines
	s = strings.ReplaceAll(s, "\r", "\\r")  // Escape carriage returns
	s = strings.ReplaceAll(s, "\t", "\\t")  // Escape tabs
	return "\"" + s + "\""
}
