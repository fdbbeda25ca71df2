package testutil_test

import (
	"os"
	"testing"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/testutil"
)

func TestSetupTestEnv(t *testing.T) {
	configDir, cacheDir := testutil.SetupTestEnv(t)

	if got := os.Getenv("CATALOGSYNC_CONFIG_DIR"); got != configDir {
		t.Errorf("CATALOGSYNC_CONFIG_DIR = %q, want %q", got, configDir)
	}
	if got := os.Getenv("CATALOGSYNC_CACHE_DIR"); got != cacheDir {
		t.Errorf("CATALOGSYNC_CACHE_DIR = %q, want %q", got, cacheDir)
	}

	for _, dir := range []string{configDir, cacheDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s does not exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}
