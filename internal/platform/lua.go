package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable sets the read-only global platform table in L. Call it
// before running configuration code.
//
// Besides the Info fields the table has pick, which selects a value by OS:
//
//	path = platform.pick{ windows = "C:/catalogs.db", default = "/srv/catalogs.db" }
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()
	t.RawSetString("os", lua.LString(info.OS))
	t.RawSetString("arch", lua.LString(info.Arch))
	t.RawSetString("release", optionalString(info.Release))
	t.RawSetString("release_version", optionalString(info.ReleaseVersion))
	t.RawSetString("kernel", optionalString(info.Kernel))
	t.RawSetString("in_container", lua.LBool(info.Container))
	t.RawSetString("is_linux", lua.LBool(info.IsLinux()))
	t.RawSetString("is_macos", lua.LBool(info.IsMacOS()))
	t.RawSetString("is_windows", lua.LBool(info.IsWindows()))

	t.RawSetString("pick", L.NewFunction(func(L *lua.LState) int {
		choices := L.CheckTable(1)
		v := choices.RawGetString(info.OS)
		if v == lua.LNil {
			v = choices.RawGetString("default")
		}
		L.Push(v)
		return 1
	}))

	L.SetGlobal("platform", readOnly(L, t))
	return nil
}

func optionalString(s string) lua.LValue {
	if s == "" {
		return lua.LNil
	}
	return lua.LString(s)
}

// readOnly wraps t in an empty proxy whose metatable forwards reads and
// rejects writes. The metatable itself is locked.
func readOnly(L *lua.LState, t *lua.LTable) *lua.LTable {
	meta := L.NewTable()
	meta.RawSetString("__index", t)
	meta.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only")
		return 0
	}))
	meta.RawSetString("__metatable", lua.LString("locked"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, meta)
	return proxy
}
