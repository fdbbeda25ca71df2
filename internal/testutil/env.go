// Package testutil provides keys, signed payloads and a fake catalog host for
// testing catalogsync in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv creates isolated config and cache directories for each test
// and points CATALOGSYNC_CONFIG_DIR and CATALOGSYNC_CACHE_DIR at them, so
// tests never touch the user's real configuration or cache database.
//
// The directories live under t.TempDir() and are removed automatically.
func SetupTestEnv(t *testing.T) (configDir, cacheDir string) {
	t.Helper()

	tmpDir := t.TempDir()
	configDir = filepath.Join(tmpDir, "config")
	cacheDir = filepath.Join(tmpDir, "cache")

	t.Setenv("CATALOGSYNC_CONFIG_DIR", configDir)
	t.Setenv("CATALOGSYNC_CACHE_DIR", cacheDir)

	for _, dir := range []string{configDir, cacheDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return configDir, cacheDir
}
