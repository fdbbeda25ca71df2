// Package config provides sandboxed Lua configuration parsing, generation
// and validation for the catalogsync client.
//
// # Schema
//
// A config file assigns one global table. Every field is optional:
//
//	catalogsync = {
//	  remote = { base_url = "https://catalogs.example.com/", index_path = "index.json",
//	             catalog_dir = "catalogs", signature_suffix = ".sig" },
//	  fetch  = { timeout_seconds = 10, max_attempts = 3, initial_backoff_ms = 500,
//	             max_backoff_ms = 8000, concurrency = 3, max_body_bytes = 4194304 },
//	  cache  = { path = "~/.cache/catalogsync/catalogs.db", expiry_hours = 24, memory_entries = 64 },
//	  trust  = { active_key = "ed25519:...", backup_key = "ed25519:...", require_signatures = true },
//	  schema = { supported = "1.0" },
//	  log    = { level = "info", format = "text" },
//	}
//
// Omitted fields take the values of Default. An empty trust.active_key selects
// the signing key built into the binary.
//
// # Platform Table
//
// The parser injects a read-only platform table (os, arch, release,
// release_version, kernel, in_container, is_linux, is_macos, is_windows and
// pick) so a single file can carry per-machine values:
//
//	cache = { path = platform.pick{ windows = "C:/catalogsync/catalogs.db" } }
//
// # Sandbox
//
// User Lua code runs without the os, io, debug and package libraries, without
// code loading (require, dofile, load) and without raw table or metatable
// access. Execution is bounded by DefaultParseTimeout, the call stack by 256
// frames and the input by MaxConfigSize.
//
// # Generating Configs
//
// Generator renders a Config back to Lua, which is how `catalogsync init`
// writes the starting config file.
package config
