package config

import (
	lua "github.com/yuin/gopher-lua"
)

// safeLibs are the only standard libraries a config file can reach.
var safeLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// blockedBuiltins are base library functions that load code, reach the
// garbage collector or bypass metatables (and with them the read-only
// platform table).
var blockedBuiltins = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"rawset", "rawget", "rawequal", "setmetatable", "getmetatable",
	"setfenv", "getfenv", "collectgarbage",
}

// newSandboxedVM returns a Lua state with bounded stack and registry that
// only has the base, table, string and math libraries. os, io, package and
// debug are never opened.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize: luaCallStackSize,
		RegistrySize:  luaRegistrySize,
		SkipOpenLibs:  true,
	})
	for _, lib := range safeLibs {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range blockedBuiltins {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
