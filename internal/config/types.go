package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/verify"
)

// Config represents the complete catalogsync configuration.
// It mirrors the global catalogsync table of the Lua config file.
type Config struct {
	Remote RemoteConfig `json:"remote" yaml:"remote"`
	Fetch  FetchConfig  `json:"fetch" yaml:"fetch"`
	Cache  CacheConfig  `json:"cache" yaml:"cache"`
	Trust  TrustConfig  `json:"trust" yaml:"trust"`
	Schema SchemaConfig `json:"schema" yaml:"schema"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// RemoteConfig locates the catalog host.
type RemoteConfig struct {
	BaseURL         string `json:"base_url" yaml:"base_url"`
	IndexPath       string `json:"index_path" yaml:"index_path"`
	CatalogDir      string `json:"catalog_dir" yaml:"catalog_dir"`
	SignatureSuffix string `json:"signature_suffix" yaml:"signature_suffix"`
}

// FetchConfig controls network retrieval.
type FetchConfig struct {
	TimeoutSeconds   int   `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxAttempts      int   `json:"max_attempts" yaml:"max_attempts"`
	InitialBackoffMS int   `json:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffMS     int   `json:"max_backoff_ms" yaml:"max_backoff_ms"`
	Concurrency      int   `json:"concurrency" yaml:"concurrency"`
	MaxBodyBytes     int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// Timeout returns the per-attempt timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// InitialBackoff returns the delay before the first retry.
func (f FetchConfig) InitialBackoff() time.Duration {
	return time.Duration(f.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the retry delay cap.
func (f FetchConfig) MaxBackoff() time.Duration {
	return time.Duration(f.MaxBackoffMS) * time.Millisecond
}

// CacheConfig controls the local store.
type CacheConfig struct {
	// Path of the SQLite database. Empty means <cache dir>/catalogs.db.
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`
	ExpiryHours   int    `json:"expiry_hours" yaml:"expiry_hours"`
	MemoryEntries int    `json:"memory_entries" yaml:"memory_entries"`
}

// Expiry returns the cache validity window.
func (c CacheConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

// TrustConfig holds the signing keys catalogs are verified against.
type TrustConfig struct {
	// ActiveKey is an encoded public key ("ed25519:<base64>" or
	// "openpgp:<base64>"). Empty selects the key built into the binary.
	ActiveKey string `json:"active_key,omitempty" yaml:"active_key,omitempty"`
	// BackupKey is accepted alongside ActiveKey during a key rotation.
	BackupKey string `json:"backup_key,omitempty" yaml:"backup_key,omitempty"`
	// RequireSignatures rejects catalogs that fail verification. Disabling it
	// is for development hosts only.
	RequireSignatures bool `json:"require_signatures" yaml:"require_signatures"`
}

// SchemaConfig sets the catalog schema this build reads.
type SchemaConfig struct {
	Supported string `json:"supported" yaml:"supported"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// SlogLevel maps Level to a slog level. Unknown levels read as info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns a config with every field set to its default.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:         DefaultBaseURL,
			IndexPath:       DefaultIndexPath,
			CatalogDir:      DefaultCatalogDir,
			SignatureSuffix: DefaultSignatureSuffix,
		},
		Fetch: FetchConfig{
			TimeoutSeconds:   DefaultTimeoutSeconds,
			MaxAttempts:      DefaultMaxAttempts,
			InitialBackoffMS: DefaultInitialBackoffMS,
			MaxBackoffMS:     DefaultMaxBackoffMS,
			Concurrency:      DefaultConcurrency,
			MaxBodyBytes:     DefaultMaxBodyBytes,
		},
		Cache: CacheConfig{
			ExpiryHours:   DefaultExpiryHours,
			MemoryEntries: DefaultMemoryEntries,
		},
		Trust: TrustConfig{
			RequireSignatures: true,
		},
		Schema: SchemaConfig{
			Supported: DefaultSchema,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	if err := validateBaseURL(c.Remote.BaseURL); err != nil {
		return &ValidationError{Field: "remote.base_url", Message: err.Error()}
	}
	if err := validateRemotePath(c.Remote.IndexPath); err != nil {
		return &ValidationError{Field: "remote.index_path", Message: err.Error()}
	}
	if err := validateRemotePath(c.Remote.CatalogDir); err != nil {
		return &ValidationError{Field: "remote.catalog_dir", Message: err.Error()}
	}
	if c.Remote.SignatureSuffix == "" || strings.ContainsAny(c.Remote.SignatureSuffix, "/?#") {
		return &ValidationError{Field: "remote.signature_suffix", Message: fmt.Sprintf("invalid suffix %q", c.Remote.SignatureSuffix)}
	}

	ranges := []struct {
		field    string
		value    int64
		min, max int64
	}{
		{"fetch.timeout_seconds", int64(c.Fetch.TimeoutSeconds), 1, 300},
		{"fetch.max_attempts", int64(c.Fetch.MaxAttempts), 1, 10},
		{"fetch.initial_backoff_ms", int64(c.Fetch.InitialBackoffMS), 1, 60_000},
		{"fetch.max_backoff_ms", int64(c.Fetch.MaxBackoffMS), 1, 300_000},
		{"fetch.concurrency", int64(c.Fetch.Concurrency), 1, 64},
		{"fetch.max_body_bytes", c.Fetch.MaxBodyBytes, 1024, 64 << 20},
		{"cache.expiry_hours", int64(c.Cache.ExpiryHours), 1, 24 * 365},
		{"cache.memory_entries", int64(c.Cache.MemoryEntries), 1, 10_000},
	}
	for _, r := range ranges {
		if r.value < r.min || r.value > r.max {
			return &ValidationError{
				Field:   r.field,
				Message: fmt.Sprintf("%d out of range [%d, %d]", r.value, r.min, r.max),
			}
		}
	}
	if c.Fetch.MaxBackoffMS < c.Fetch.InitialBackoffMS {
		return &ValidationError{Field: "fetch.max_backoff_ms", Message: "must not be less than initial_backoff_ms"}
	}

	if err := validateKeyEncoding(c.Trust.ActiveKey); err != nil {
		return &ValidationError{Field: "trust.active_key", Message: err.Error()}
	}
	if err := validateKeyEncoding(c.Trust.BackupKey); err != nil {
		return &ValidationError{Field: "trust.backup_key", Message: err.Error()}
	}
	if c.Trust.BackupKey != "" && c.Trust.ActiveKey == "" {
		return &ValidationError{Field: "trust.backup_key", Message: "backup key requires an explicit active key"}
	}

	if !verify.ValidSchemaVersion(c.Schema.Supported) {
		return &ValidationError{Field: "schema.supported", Message: fmt.Sprintf("invalid version %q, want MAJOR.MINOR", c.Schema.Supported)}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &ValidationError{Field: "log.format", Message: fmt.Sprintf("unknown format %q (expected text or json)", c.Log.Format)}
	}
	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// validateBaseURL requires an http(s) URL with a host and no credentials.
func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("url must use https:// or http:// scheme (got: %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	if u.User != nil {
		return fmt.Errorf("url must not embed credentials")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("url must not carry a query or fragment")
	}
	return nil
}

// validateRemotePath keeps index and catalog paths relative to the base URL.
func validateRemotePath(p string) error {
	if p == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "://") {
		return fmt.Errorf("path must be relative to the base url: %s", p)
	}
	for _, seg := range strings.Split(path.Clean(p), "/") {
		if seg == ".." {
			return fmt.Errorf("path traversal not allowed: %s", p)
		}
	}
	return nil
}

// validateKeyEncoding checks the algorithm prefix only; the key itself is
// decoded when the verifier is built.
func validateKeyEncoding(key string) error {
	if key == "" {
		return nil
	}
	if !strings.HasPrefix(key, "ed25519:") && !strings.HasPrefix(key, "openpgp:") {
		return fmt.Errorf("key must start with ed25519: or openpgp:")
	}
	return nil
}
