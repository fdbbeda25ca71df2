package platform

import (
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func evalLua(t *testing.T, L *lua.LState, code string) lua.LValue {
	t.Helper()
	if err := L.DoString(code); err != nil {
		t.Fatalf("DoString(%q) error = %v", code, err)
	}
	v := L.Get(-1)
	L.Pop(1)
	return v
}

func TestInjectPlatformTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	info := &Info{
		OS:             "linux",
		Arch:           "amd64",
		Release:        "ubuntu",
		ReleaseVersion: "22.04",
		Kernel:         "6.8.0",
		Container:      true,
	}
	if err := InjectPlatformTable(L, info); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	tests := []struct {
		code string
		want lua.LValue
	}{
		{`return platform.os`, lua.LString("linux")},
		{`return platform.arch`, lua.LString("amd64")},
		{`return platform.release`, lua.LString("ubuntu")},
		{`return platform.release_version`, lua.LString("22.04")},
		{`return platform.kernel`, lua.LString("6.8.0")},
		{`return platform.in_container`, lua.LTrue},
		{`return platform.is_linux`, lua.LTrue},
		{`return platform.is_macos`, lua.LFalse},
		{`return platform.is_windows`, lua.LFalse},
		{`return platform.pick{ linux = "l", default = "d" }`, lua.LString("l")},
		{`return platform.pick{ darwin = "m", default = "d" }`, lua.LString("d")},
		{`return platform.pick{ windows = "w" }`, lua.LNil},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := evalLua(t, L, tt.code); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestInjectPlatformTable_UnknownRelease(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "windows", Arch: "arm64"}); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"release", "release_version", "kernel"} {
		if got := evalLua(t, L, "return platform."+field); got != lua.LNil {
			t.Errorf("platform.%s = %v, want nil", field, got)
		}
	}
	if got := evalLua(t, L, `return platform.pick{ windows = 1 }`); got != lua.LNumber(1) {
		t.Errorf("pick on windows = %v", got)
	}
}

func TestInjectPlatformTable_ReadOnly(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "linux", Arch: "amd64"}); err != nil {
		t.Fatal(err)
	}

	for _, code := range []string{
		`platform.os = "windows"`,
		`platform.new_field = 1`,
		`setmetatable(platform, {})`,
	} {
		err := L.DoString(code)
		if err == nil {
			t.Errorf("%q should fail on a read-only table", code)
			continue
		}
		if !strings.Contains(err.Error(), "read-only") && !strings.Contains(err.Error(), "protected") {
			t.Errorf("%q: unexpected error %v", code, err)
		}
	}
}
