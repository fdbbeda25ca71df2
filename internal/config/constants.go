package config

import "time"

// Lua schema field names and globals
const (
	luaGlobal = "catalogsync"

	luaFieldRemote = "remote"
	luaFieldFetch  = "fetch"
	luaFieldCache  = "cache"
	luaFieldTrust  = "trust"
	luaFieldSchema = "schema"
	luaFieldLog    = "log"

	luaFieldBaseURL         = "base_url"
	luaFieldIndexPath       = "index_path"
	luaFieldCatalogDir      = "catalog_dir"
	luaFieldSignatureSuffix = "signature_suffix"

	luaFieldTimeoutSeconds   = "timeout_seconds"
	luaFieldMaxAttempts      = "max_attempts"
	luaFieldInitialBackoffMS = "initial_backoff_ms"
	luaFieldMaxBackoffMS     = "max_backoff_ms"
	luaFieldConcurrency      = "concurrency"
	luaFieldMaxBodyBytes     = "max_body_bytes"

	luaFieldPath          = "path"
	luaFieldExpiryHours   = "expiry_hours"
	luaFieldMemoryEntries = "memory_entries"

	luaFieldActiveKey         = "active_key"
	luaFieldBackupKey         = "backup_key"
	luaFieldRequireSignatures = "require_signatures"

	luaFieldSupported = "supported"

	luaFieldLevel  = "level"
	luaFieldFormat = "format"
)

// Resource limits for parsing user configuration.
const (
	// MaxConfigSize is the largest config file ParseFile accepts.
	MaxConfigSize = 1 << 20
	// DefaultParseTimeout bounds Lua execution when the caller's context has
	// no earlier deadline.
	DefaultParseTimeout = 5 * time.Second

	luaCallStackSize = 256
	luaRegistrySize  = 8 * 1024
)

// Defaults for every omitted field.
const (
	DefaultBaseURL         = "https://raw.githubusercontent.com/Dezirae-Stark/QuantumTrader-Pro/main/broker-catalogs/"
	DefaultIndexPath       = "index.json"
	DefaultCatalogDir      = "catalogs"
	DefaultSignatureSuffix = ".sig"

	DefaultTimeoutSeconds   = 10
	DefaultMaxAttempts      = 3
	DefaultInitialBackoffMS = 500
	DefaultMaxBackoffMS     = 8000
	DefaultConcurrency      = 3
	DefaultMaxBodyBytes     = 4 << 20

	DefaultExpiryHours   = 24
	DefaultMemoryEntries = 64

	DefaultSchema = "1.0"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)
