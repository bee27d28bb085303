package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable sets the global `platform` to a read-only view of info.
// Call it before loading any configuration code.
//
// Besides plain fields the table provides two helpers:
//
//	platform.when(cond, value)        -- value if cond, else nil
//	platform.select{windows = "...", darwin = "...", default = "..."}
func InjectPlatformTable(L *lua.LState, info *Info) error {
	fields := L.NewTable()
	for key, value := range platformFields(info) {
		fields.RawSetString(key, value)
	}
	fields.RawSetString("when", L.NewFunction(luaWhen))
	fields.RawSetString("select", L.NewFunction(func(L *lua.LState) int {
		L.Push(selectFor(info, L.CheckTable(1)))
		return 1
	}))

	L.SetGlobal("platform", readOnlyProxy(L, fields, "platform table is read-only and cannot be modified"))
	return nil
}

func platformFields(info *Info) map[string]lua.LValue {
	fields := map[string]lua.LValue{
		"os":         lua.LString(info.OS),
		"arch":       lua.LString(info.Arch),
		"arch_raw":   lua.LString(info.ArchRaw),
		"tag":        lua.LString(info.Tag()),
		"exe_suffix": lua.LString(info.ExeSuffix()),
		"version":    lua.LString(info.Version),
		"is_linux":   lua.LBool(info.IsLinux()),
		"is_macos":   lua.LBool(info.IsMacOS()),
		"is_windows": lua.LBool(info.IsWindows()),
		"is_amd64":   lua.LBool(info.IsAMD64()),
		"is_arm64":   lua.LBool(info.IsARM64()),
	}
	// distro stays nil off Linux
	if info.IsLinux() && info.Platform != "" {
		fields["distro"] = lua.LString(info.Platform)
	}
	return fields
}

func luaWhen(L *lua.LState) int {
	if L.CheckBool(1) {
		L.Push(L.Get(2))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// selectFor looks up the platform tag first, then the bare OS, then "default".
func selectFor(info *Info, choices *lua.LTable) lua.LValue {
	for _, key := range []string{info.Tag(), info.OS, "default"} {
		if v := choices.RawGetString(key); v != lua.LNil {
			return v
		}
	}
	return lua.LNil
}

// readOnlyProxy returns an empty table whose reads fall through to backing
// and whose writes raise msg. The metatable itself is locked.
func readOnlyProxy(L *lua.LState, backing *lua.LTable, msg string) *lua.LTable {
	mt := L.NewTable()
	mt.RawSetString("__index", backing)
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s", msg)
		return 0
	}))
	mt.RawSetString("__metatable", lua.LString("locked"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
