package payload

import (
	"testing"
)

func TestParseManifest(t *testing.T) {
	body := `{
		"core_version": "3",
		"core_url": "https://example.com/core.py",
		"core_hash": "  ABCDEF  ",
		"html_version": 7,
		"html_url": "https://example.com/index.html",
		"game_version": "1.0",
		"game_url": "https://example.com/game.zip",
		"game_type": "archive",
		"assets_version": "2024.1",
		"assets_url": "https://example.com/assets.zip",
		"motd": "welcome"
	}`

	m, err := ParseManifest([]byte(body))
	if err != nil {
		t.Fatalf("ParseManifest failed: %v", err)
	}

	want := []string{"assets", "core", "game", "html"}
	got := m.Components()
	if len(got) != len(want) {
		t.Fatalf("components = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("components[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	core, _ := m.Entry("core")
	if core.Hash != "ABCDEF" {
		t.Errorf("core hash = %q, want trimmed ABCDEF", core.Hash)
	}
	if core.Type != ContentUnspecified {
		t.Errorf("core type = %q, want unspecified", core.Type)
	}

	html, _ := m.Entry("html")
	if html.Version != "7" {
		t.Errorf("numeric version = %q, want \"7\"", html.Version)
	}

	game, _ := m.Entry("game")
	if game.Type != ContentArchive || game.URL != "https://example.com/game.zip" {
		t.Errorf("unexpected game entry: %+v", game)
	}

	if string(m.Raw) != body {
		t.Error("Raw body not preserved")
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not_json", body: "<html>oops</html>"},
		{name: "array", body: `["core"]`},
		{name: "null", body: `null`},
		{name: "no_components", body: `{"motd": "hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.body)); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestParseManifestInvalidEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{name: "missing_url", entry: `"core_version": "1"`},
		{name: "empty_version", entry: `"core_version": "", "core_url": "u"`},
		{name: "object_version", entry: `"core_version": {}, "core_url": "u"`},
		{name: "bad_type", entry: `"core_version": "1", "core_url": "u", "core_type": "torrent"`},
		{name: "bad_hash_type", entry: `"core_version": "1", "core_url": "u", "core_hash": true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{` + tt.entry + `, "game_version": "2", "game_url": "g.zip"}`
			m, err := ParseManifest([]byte(body))
			if err != nil {
				t.Fatalf("a bad entry should not fail the manifest: %v", err)
			}
			if m.Invalid("core") == nil {
				t.Error("expected core to be reported invalid")
			}
			if _, ok := m.Entry("core"); ok {
				t.Error("invalid entry should not be returned")
			}
			if e, ok := m.Entry("game"); !ok || e.Version != "2" {
				t.Errorf("game entry = %+v, %v", e, ok)
			}
			if got := m.InvalidComponents(); len(got) != 1 || got[0] != "core" {
				t.Errorf("InvalidComponents() = %v", got)
			}
		})
	}
}

func TestParseContentType(t *testing.T) {
	tests := map[string]ContentType{
		"":            ContentUnspecified,
		"file":        ContentFile,
		"single_file": ContentFile,
		"Archive":     ContentArchive,
		"zip":         ContentArchive,
	}
	for in, want := range tests {
		got, err := ParseContentType(in)
		if err != nil {
			t.Errorf("ParseContentType(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseContentType(%q) = %q, want %q", in, got, want)
		}
	}
}
