package config

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{name: "http allowed", mutate: func(c *Config) { c.Remote.BaseURL = "http://localhost:9000" }},
		{name: "ed25519 active key", mutate: func(c *Config) { c.Trust.ActiveKey = "ed25519:abc" }},
		{name: "rotation pair", mutate: func(c *Config) {
			c.Trust.ActiveKey = "ed25519:abc"
			c.Trust.BackupKey = "openpgp:def"
		}},
		{name: "nested catalog dir", mutate: func(c *Config) { c.Remote.CatalogDir = "v2/catalogs" }},

		{name: "empty base url", mutate: func(c *Config) { c.Remote.BaseURL = "" }, wantField: "remote.base_url"},
		{name: "file scheme", mutate: func(c *Config) { c.Remote.BaseURL = "file:///etc" }, wantField: "remote.base_url"},
		{name: "no host", mutate: func(c *Config) { c.Remote.BaseURL = "https:///catalogs" }, wantField: "remote.base_url"},
		{name: "credentials in url", mutate: func(c *Config) { c.Remote.BaseURL = "https://u:p@example.com/" }, wantField: "remote.base_url"},
		{name: "query in url", mutate: func(c *Config) { c.Remote.BaseURL = "https://example.com/?token=x" }, wantField: "remote.base_url"},
		{name: "absolute index path", mutate: func(c *Config) { c.Remote.IndexPath = "/index.json" }, wantField: "remote.index_path"},
		{name: "traversal catalog dir", mutate: func(c *Config) { c.Remote.CatalogDir = "../private" }, wantField: "remote.catalog_dir"},
		{name: "empty suffix", mutate: func(c *Config) { c.Remote.SignatureSuffix = "" }, wantField: "remote.signature_suffix"},
		{name: "zero timeout", mutate: func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, wantField: "fetch.timeout_seconds"},
		{name: "too many attempts", mutate: func(c *Config) { c.Fetch.MaxAttempts = 11 }, wantField: "fetch.max_attempts"},
		{name: "backoff inverted", mutate: func(c *Config) {
			c.Fetch.InitialBackoffMS = 2000
			c.Fetch.MaxBackoffMS = 1000
		}, wantField: "fetch.max_backoff_ms"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Fetch.Concurrency = 0 }, wantField: "fetch.concurrency"},
		{name: "tiny body limit", mutate: func(c *Config) { c.Fetch.MaxBodyBytes = 10 }, wantField: "fetch.max_body_bytes"},
		{name: "zero expiry", mutate: func(c *Config) { c.Cache.ExpiryHours = 0 }, wantField: "cache.expiry_hours"},
		{name: "negative memory entries", mutate: func(c *Config) { c.Cache.MemoryEntries = -1 }, wantField: "cache.memory_entries"},
		{name: "unknown key algorithm", mutate: func(c *Config) { c.Trust.ActiveKey = "rsa:abc" }, wantField: "trust.active_key"},
		{name: "backup without active", mutate: func(c *Config) { c.Trust.BackupKey = "ed25519:abc" }, wantField: "trust.backup_key"},
		{name: "schema not a version", mutate: func(c *Config) { c.Schema.Supported = "one" }, wantField: "schema.supported"},
		{name: "prerelease schema", mutate: func(c *Config) { c.Schema.Supported = "1.0-beta" }, wantField: "schema.supported"},
		{name: "major only schema", mutate: func(c *Config) { c.Schema.Supported = "1" }, wantField: "schema.supported"},
		{name: "patch schema", mutate: func(c *Config) { c.Schema.Supported = "1.2.3" }, wantField: "schema.supported"},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantField: "log.level"},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantField: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "fetch.concurrency", Message: "0 out of range [1, 64]"}
	if !strings.Contains(err.Error(), "fetch.concurrency") {
		t.Errorf("Error() = %q", err.Error())
	}
	if got := (&ValidationError{Message: "bad"}).Error(); got != "config validation failed: bad" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDurations(t *testing.T) {
	c := Default()
	if c.Fetch.Timeout() != 10*time.Second {
		t.Errorf("Timeout() = %v", c.Fetch.Timeout())
	}
	if c.Fetch.InitialBackoff() != 500*time.Millisecond {
		t.Errorf("InitialBackoff() = %v", c.Fetch.InitialBackoff())
	}
	if c.Fetch.MaxBackoff() != 8*time.Second {
		t.Errorf("MaxBackoff() = %v", c.Fetch.MaxBackoff())
	}
	if c.Cache.Expiry() != 24*time.Hour {
		t.Errorf("Expiry() = %v", c.Cache.Expiry())
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for level, want := range tests {
		if got := (LogConfig{Level: level}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}
