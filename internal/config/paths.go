package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment overrides for the default directories.
const (
	EnvConfigDir = "CATALOGSYNC_CONFIG_DIR"
	EnvCacheDir  = "CATALOGSYNC_CACHE_DIR"
)

const (
	// ConfigFileName is the config file inside the config directory.
	ConfigFileName = "catalogsync.lua"
	// CacheFileName is the database file inside the cache directory.
	CacheFileName = "catalogs.db"

	appDirName = "catalogsync"
)

// ConfigDir returns $CATALOGSYNC_CONFIG_DIR, or catalogsync under the user
// config directory.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return ExpandHome(dir)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determine config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// CacheDir returns $CATALOGSYNC_CACHE_DIR, or catalogsync under the user
// cache directory.
func CacheDir() (string, error) {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return ExpandHome(dir)
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("determine cache directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// DefaultConfigPath returns the config file path in ConfigDir.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// CachePath resolves the database path: cache.path when set, otherwise
// catalogs.db in CacheDir.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return ExpandHome(c.Cache.Path)
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CacheFileName), nil
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
