package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/testutil"
)

func TestDirsFromEnvironment(t *testing.T) {
	configDir, cacheDir := testutil.SetupTestEnv(t)

	got, err := ConfigDir()
	if err != nil || got != configDir {
		t.Errorf("ConfigDir() = %q, %v; want %q", got, err, configDir)
	}
	got, err = CacheDir()
	if err != nil || got != cacheDir {
		t.Errorf("CacheDir() = %q, %v; want %q", got, err, cacheDir)
	}
	got, err = DefaultConfigPath()
	if err != nil || got != filepath.Join(configDir, ConfigFileName) {
		t.Errorf("DefaultConfigPath() = %q, %v", got, err)
	}
}

func TestCachePath(t *testing.T) {
	_, cacheDir := testutil.SetupTestEnv(t)

	c := Default()
	got, err := c.CachePath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(cacheDir, CacheFileName); got != want {
		t.Errorf("CachePath() = %q, want %q", got, want)
	}

	c.Cache.Path = "/srv/catalogsync/store.db"
	if got, _ := c.CachePath(); got != "/srv/catalogsync/store.db" {
		t.Errorf("CachePath() = %q, want explicit path", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{in: "~/cache/catalogs.db", want: filepath.Join(home, "cache/catalogs.db")},
		{in: "~", want: home},
		{in: "/abs/path", want: "/abs/path"},
		{in: "relative/~/path", want: "relative/~/path"},
	}
	for _, tt := range tests {
		got, err := ExpandHome(tt.in)
		if err != nil {
			t.Fatalf("ExpandHome(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
