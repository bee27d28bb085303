package config

import (
	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from every config VM. launcher.lua is
// declarative: it may build strings and tables, never reach the host.
var blockedGlobals = []string{
	// process, environment and file access
	"os", "io",
	// loading other code
	"require", "module", "package", "dofile", "loadfile", "load", "loadstring",
	// escape hatches around the read-only platform table
	"debug", "getmetatable", "setmetatable", "rawset", "rawget", "rawequal",
	"collectgarbage",
}

// VM limits. A config file has no business recursing deeply.
const (
	luaCallStackSize = 256
	luaRegistrySize  = 8 * 1024
)

// newSandboxedVM returns a VM with the standard libraries opened and the
// blocked globals removed. Callers must Close it.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize: luaCallStackSize,
		RegistrySize:  luaRegistrySize,
	})
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
