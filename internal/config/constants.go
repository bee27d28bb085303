package config

// Lua schema field names and globals
const (
	luaGlobalLauncher      = "launcher"
	luaFieldManifestURL    = "manifest_url"
	luaFieldSignatureURL   = "signature_url"
	luaFieldKeyring        = "keyring"
	luaFieldHome           = "home"
	luaFieldRecordFile     = "record_file"
	luaFieldTimeouts       = "timeouts"
	luaFieldManifest       = "manifest"
	luaFieldPayload        = "payload"
	luaFieldRetries        = "retries"
	luaFieldBandwidthLimit = "bandwidth_limit"
	luaFieldAllowUnverif   = "allow_unverified"
	luaFieldComponents     = "components"
	luaFieldGame           = "game"
	luaFieldSelfUpdate     = "self_update"
	luaFieldLog            = "log"
	luaFieldLevel          = "level"
	luaFieldJSON           = "json"
	luaFieldFile           = "file"
	luaFieldHistory        = "history"
	luaFieldMetrics        = "metrics"
	luaFieldName           = "name"
	luaFieldKind           = "kind"
	luaFieldDir            = "dir"
	luaFieldExecutable     = "executable"
)

// Defaults and limits
const (
	DefaultRecordFile    = "version_local.json"
	DefaultGameComponent = "game"
	DefaultHistoryFile   = "history.db"
	DefaultConfigFile    = "launcher.lua"

	MaxComponentCount = 64
	MaxRetries        = 10
	// MaxConfigSize caps launcher.lua.
	MaxConfigSize = 1 << 20
)
