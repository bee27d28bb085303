package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pflauncher/launcher/internal/payload"
)

func TestGenerator_RoundTrip(t *testing.T) {
	original := Defaults()
	original.Home = "/srv/launcher"
	original.ManifestURL = "https://example.com/version.json"
	original.KeyringPath = "keys/pub.asc"
	original.BandwidthLimit = 2048
	original.PayloadTimeout = 90 * time.Second
	original.MetricsFile = "launcher.prom"
	original.Log = LogConfig{Level: "debug", File: "launcher.log"}
	original.SelfUpdate = SelfUpdate{ManifestURL: "https://example.com/launcher.json", KeyringPath: "keys/launcher.asc"}
	original.Components = append(original.Components, Component{
		Name: "tools", Kind: payload.ContentArchive, Dir: "tools", Executable: "run-*",
	})

	code, err := NewGenerator().Generate(original)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	parsed, err := NewParser(nil).ParseString(context.Background(), code)
	if err != nil {
		t.Fatalf("generated config does not parse: %v\n%s", err, code)
	}

	if parsed.Home != original.Home || parsed.ManifestURL != original.ManifestURL {
		t.Errorf("paths lost: %+v", parsed)
	}
	if parsed.PayloadTimeout != original.PayloadTimeout || parsed.BandwidthLimit != original.BandwidthLimit {
		t.Errorf("transfer settings lost: %+v", parsed)
	}
	if parsed.SelfUpdate != original.SelfUpdate || parsed.Log != original.Log {
		t.Errorf("nested tables lost: %+v / %+v", parsed.SelfUpdate, parsed.Log)
	}
	if len(parsed.Components) != len(original.Components) {
		t.Fatalf("components = %+v", parsed.Components)
	}
	for i := range original.Components {
		if parsed.Components[i] != original.Components[i] {
			t.Errorf("component[%d] = %+v, want %+v", i, parsed.Components[i], original.Components[i])
		}
	}
}

func TestGenerator_QuotesStrings(t *testing.T) {
	cfg := Defaults()
	cfg.Home = `C:\Games\"PF"`

	code, err := NewGenerator().Generate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(code, `home = "C:\\Games\\\"PF\"",`) {
		t.Errorf("home not escaped:\n%s", code)
	}

	parsed, err := NewParser(nil).ParseString(context.Background(), code)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Home != cfg.Home {
		t.Errorf("Home = %q, want %q", parsed.Home, cfg.Home)
	}
}

func TestGenerator_NilConfig(t *testing.T) {
	if _, err := NewGenerator().Generate(nil); err == nil {
		t.Error("expected error for nil config")
	}
}
