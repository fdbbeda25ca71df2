package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Generator generates Lua configuration code from a Config.
type Generator struct {
	indent string // Indentation string (default: two spaces)
	now    func() time.Time
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ", // Two spaces
		now:    time.Now,
	}
}

// luaField is one key = value line; value is already a Lua literal.
type luaField struct {
	key   string
	value string
}

// Generate renders config as a Lua file that ParseString reads back to an
// equal Config. Empty optional strings are omitted.
func (g *Generator) Generate(config *Config) (string, error) {
	if config == nil {
		return "", fmt.Errorf("generate config: nil config")
	}
	var buf bytes.Buffer

	buf.WriteString("-- catalogsync configuration\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(g.now().UTC().Format(time.RFC3339))
	buf.WriteString("\n--\n")
	buf.WriteString("-- Omitted fields take their defaults. A read-only `platform` table is\n")
	buf.WriteString("-- available for per-machine values, for example:\n")
	buf.WriteString("--   cache = { path = platform.pick{ windows = \"C:/catalogsync/catalogs.db\" } }\n\n")

	buf.WriteString(luaGlobal)
	buf.WriteString(" = {\n")

	g.writeSection(&buf, luaFieldRemote, []luaField{
		g.stringField(luaFieldBaseURL, config.Remote.BaseURL),
		g.stringField(luaFieldIndexPath, config.Remote.IndexPath),
		g.stringField(luaFieldCatalogDir, config.Remote.CatalogDir),
		g.stringField(luaFieldSignatureSuffix, config.Remote.SignatureSuffix),
	})

	g.writeSection(&buf, luaFieldFetch, []luaField{
		g.intField(luaFieldTimeoutSeconds, int64(config.Fetch.TimeoutSeconds)),
		g.intField(luaFieldMaxAttempts, int64(config.Fetch.MaxAttempts)),
		g.intField(luaFieldInitialBackoffMS, int64(config.Fetch.InitialBackoffMS)),
		g.intField(luaFieldMaxBackoffMS, int64(config.Fetch.MaxBackoffMS)),
		g.intField(luaFieldConcurrency, int64(config.Fetch.Concurrency)),
		g.intField(luaFieldMaxBodyBytes, config.Fetch.MaxBodyBytes),
	})

	g.writeSection(&buf, luaFieldCache, []luaField{
		g.stringField(luaFieldPath, config.Cache.Path),
		g.intField(luaFieldExpiryHours, int64(config.Cache.ExpiryHours)),
		g.intField(luaFieldMemoryEntries, int64(config.Cache.MemoryEntries)),
	})

	g.writeSection(&buf, luaFieldTrust, []luaField{
		g.stringField(luaFieldActiveKey, config.Trust.ActiveKey),
		g.stringField(luaFieldBackupKey, config.Trust.BackupKey),
		{key: luaFieldRequireSignatures, value: strconv.FormatBool(config.Trust.RequireSignatures)},
	})

	g.writeSection(&buf, luaFieldSchema, []luaField{
		g.stringField(luaFieldSupported, config.Schema.Supported),
	})

	g.writeSection(&buf, luaFieldLog, []luaField{
		g.stringField(luaFieldLevel, config.Log.Level),
		g.stringField(luaFieldFormat, config.Log.Format),
	})

	buf.WriteString("}\n")

	return buf.String(), nil
}

// writeSection writes name = { ... } with the non-empty fields.
func (g *Generator) writeSection(buf *bytes.Buffer, name string, fields []luaField) {
	buf.WriteString(g.indent)
	buf.WriteString(name)
	buf.WriteString(" = {\n")

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		buf.WriteString(g.indent)
		buf.WriteString(g.indent)
		buf.WriteString(f.key)
		buf.WriteString(" = ")
		buf.WriteString(f.value)
		buf.WriteString(",\n")
	}

	buf.WriteString(g.indent)
	buf.WriteString("},\n")
}

func (g *Generator) stringField(key, value string) luaField {
	if value == "" {
		return luaField{key: key}
	}
	return luaField{key: key, value: g.quoteLuaString(value)}
}

func (g *Generator) intField(key string, value int64) luaField {
	return luaField{key: key, value: strconv.FormatInt(value, 10)}
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	// Use double quotes and escape special characters
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"") // Escape double quotes
	s = strings.ReplaceAll(s, "\n", "\\n")  // Escape newlines
	s = strings.ReplaceAll(s, "\r", "\\r")  // Escape carriage returns
	s = strings.ReplaceAll(s, "\t", "\\t")  // Escape tabs
	return "\"" + s + "\""
}
