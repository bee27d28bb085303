// Package config loads the launcher configuration.
//
// # Sources
//
// Settings are layered, later sources winning:
//
//  1. Defaults: the classic layout of a core script and HTML UI under app/,
//     a game build under game/ and an asset bundle under assets/, with the
//     version record in version_local.json.
//  2. launcher.lua, evaluated in a sandboxed gopher-lua VM.
//  3. LAUNCHER_* environment variables (LAUNCHER_MANIFEST_URL, LAUNCHER_HOME,
//     LAUNCHER_LOG_LEVEL, ...), read through viper.
//  4. Command-line flags of the same names.
//
// # launcher.lua
//
// The file assigns a global `launcher` table:
//
//	launcher = {
//	  manifest_url = "https://example.com/version.json",
//	  keyring = "keys/publisher.asc",      -- enables manifest signatures
//	  allow_unverified = false,            -- install payloads without a digest
//	  timeouts = { manifest = 15, payload = 1800 },
//	  components = {
//	    { name = "core", kind = "file", dir = "app", file = "core.py" },
//	    { name = "game", kind = "archive", dir = "game",
//	      executable = platform.select{ windows = "*.exe", default = "*" } },
//	  },
//	}
//
// A read-only `platform` table describes the host (os, arch, tag,
// exe_suffix) and offers platform.when and platform.select helpers.
//
// # Sandbox
//
// The VM has no os, io, debug or module loading, and runs with a bounded
// call stack and registry. Evaluation honors the caller's context, so a
// runaway loop is cut off by a deadline.
package config
