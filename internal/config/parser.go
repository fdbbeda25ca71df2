package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
// It is safe for concurrent use; each parse runs in a fresh VM.
type Parser struct {
	detector platform.Detector
	logger   Logger
	timeout  time.Duration
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger sets the logger used for warnings such as unknown fields.
func WithLogger(l Logger) ParserOption {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTimeout overrides DefaultParseTimeout.
func WithTimeout(d time.Duration) ParserOption {
	return func(p *Parser) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector, opts ...ParserOption) *Parser {
	p := &Parser{
		detector: detector,
		logger:   discardLogger{},
		timeout:  DefaultParseTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseString parses a Lua config from a string. Omitted fields keep their
// defaults and the result is validated.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if len(luaCode) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config too large",
			Detail:  fmt.Sprintf("%d bytes, maximum is %d", len(luaCode), MaxConfigSize),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	// Detect platform and inject platform table
	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctxErr.Error(), Err: ctxErr}
		}
		return nil, &ParseError{Message: "Lua syntax error", Detail: err.Error()}
	}

	return p.extractConfig(L)
}

// ParseFile reads and parses the config file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := p.ParseString(ctx, string(data))
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) && parseErr.File == "" {
			parseErr.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Load parses the config file at path, or returns the defaults when the
// file does not exist. The bool reports whether a file was read.
func (p *Parser) Load(ctx context.Context, path string) (*Config, bool, error) {
	cfg, err := p.ParseFile(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger.Debug("no config file, using defaults", "path", path)
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	File    string // empty for in-memory configs
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
	Err     error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Err }

// extractConfig reads the global catalogsync table over the defaults.
func (p *Parser) extractConfig(L *lua.LState) (*Config, error) {
	root := L.GetGlobal(luaGlobal)
	if root.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: fmt.Sprintf("missing or invalid '%s' table", luaGlobal),
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}

	cfg := Default()
	r := &tableReader{logger: p.logger}
	table := root.(*lua.LTable)
	r.warnUnknown(luaGlobal, table, luaFieldRemote, luaFieldFetch, luaFieldCache, luaFieldTrust, luaFieldSchema, luaFieldLog)

	if t := r.section(table, luaFieldRemote); t != nil {
		r.warnUnknown(luaFieldRemote, t, luaFieldBaseURL, luaFieldIndexPath, luaFieldCatalogDir, luaFieldSignatureSuffix)
		r.str(t, luaFieldRemote, luaFieldBaseURL, &cfg.Remote.BaseURL)
		r.str(t, luaFieldRemote, luaFieldIndexPath, &cfg.Remote.IndexPath)
		r.str(t, luaFieldRemote, luaFieldCatalogDir, &cfg.Remote.CatalogDir)
		r.str(t, luaFieldRemote, luaFieldSignatureSuffix, &cfg.Remote.SignatureSuffix)
	}

	if t := r.section(table, luaFieldFetch); t != nil {
		r.warnUnknown(luaFieldFetch, t, luaFieldTimeoutSeconds, luaFieldMaxAttempts, luaFieldInitialBackoffMS,
			luaFieldMaxBackoffMS, luaFieldConcurrency, luaFieldMaxBodyBytes)
		r.integer(t, luaFieldFetch, luaFieldTimeoutSeconds, &cfg.Fetch.TimeoutSeconds)
		r.integer(t, luaFieldFetch, luaFieldMaxAttempts, &cfg.Fetch.MaxAttempts)
		r.integer(t, luaFieldFetch, luaFieldInitialBackoffMS, &cfg.Fetch.InitialBackoffMS)
		r.integer(t, luaFieldFetch, luaFieldMaxBackoffMS, &cfg.Fetch.MaxBackoffMS)
		r.integer(t, luaFieldFetch, luaFieldConcurrency, &cfg.Fetch.Concurrency)
		var maxBody int
		if r.integer(t, luaFieldFetch, luaFieldMaxBodyBytes, &maxBody) {
			cfg.Fetch.MaxBodyBytes = int64(maxBody)
		}
	}

	if t := r.section(table, luaFieldCache); t != nil {
		r.warnUnknown(luaFieldCache, t, luaFieldPath, luaFieldExpiryHours, luaFieldMemoryEntries)
		r.str(t, luaFieldCache, luaFieldPath, &cfg.Cache.Path)
		r.integer(t, luaFieldCache, luaFieldExpiryHours, &cfg.Cache.ExpiryHours)
		r.integer(t, luaFieldCache, luaFieldMemoryEntries, &cfg.Cache.MemoryEntries)
	}

	if t := r.section(table, luaFieldTrust); t != nil {
		r.warnUnknown(luaFieldTrust, t, luaFieldActiveKey, luaFieldBackupKey, luaFieldRequireSignatures)
		r.str(t, luaFieldTrust, luaFieldActiveKey, &cfg.Trust.ActiveKey)
		r.str(t, luaFieldTrust, luaFieldBackupKey, &cfg.Trust.BackupKey)
		r.boolean(t, luaFieldTrust, luaFieldRequireSignatures, &cfg.Trust.RequireSignatures)
	}

	if t := r.section(table, luaFieldSchema); t != nil {
		r.warnUnknown(luaFieldSchema, t, luaFieldSupported)
		r.str(t, luaFieldSchema, luaFieldSupported, &cfg.Schema.Supported)
	}

	if t := r.section(table, luaFieldLog); t != nil {
		r.warnUnknown(luaFieldLog, t, luaFieldLevel, luaFieldFormat)
		r.str(t, luaFieldLog, luaFieldLevel, &cfg.Log.Level)
		r.str(t, luaFieldLog, luaFieldFormat, &cfg.Log.Format)
	}

	if r.err != nil {
		return nil, r.err
	}

	// Validate the extracted config
	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
			Err:     err,
		}
	}

	return cfg, nil
}

// tableReader copies typed fields out of Lua tables and keeps the first
// type error.
type tableReader struct {
	logger Logger
	err    error
}

func (r *tableReader) fail(section, field, want string, got lua.LValue) {
	if r.err != nil {
		return
	}
	r.err = &ParseError{
		Message: "invalid field type",
		Detail:  fmt.Sprintf("%s.%s: expected %s, got %s", section, field, want, got.Type()),
	}
}

// section returns the named sub-table, or nil when absent (nil values from
// platform conditionals count as absent).
func (r *tableReader) section(t *lua.LTable, name string) *lua.LTable {
	v := t.RawGetString(name)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTTable:
		return v.(*lua.LTable)
	default:
		r.fail(luaGlobal, name, "table", v)
		return nil
	}
}

func (r *tableReader) str(t *lua.LTable, section, field string, dst *string) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTString:
		*dst = strings.TrimSpace(v.String())
	default:
		r.fail(section, field, "string", v)
	}
}

func (r *tableReader) boolean(t *lua.LTable, section, field string, dst *bool) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTBool:
		*dst = bool(v.(lua.LBool))
	default:
		r.fail(section, field, "boolean", v)
	}
}

func (r *tableReader) integer(t *lua.LTable, section, field string, dst *int) bool {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return false
	case lua.LTNumber:
		n := float64(lua.LVAsNumber(v))
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			r.fail(section, field, "integer", v)
			return false
		}
		*dst = int(n)
		return true
	default:
		r.fail(section, field, "integer", v)
		return false
	}
}

// warnUnknown logs keys the schema does not define. Unknown keys are not an
// error so that older binaries can read newer configs.
func (r *tableReader) warnUnknown(section string, t *lua.LTable, known ...string) {
	t.ForEach(func(key, _ lua.LValue) {
		name := key.String()
		for _, k := range known {
			if k == name {
				return
			}
		}
		r.logger.Warn("unknown config field", "section", section, "field", name)
	})
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		prefix := parseErr.Message
		if parseErr.File != "" {
			prefix = parseErr.File + ": " + prefix
		}
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", prefix, parseErr.Detail)
		}
		// Extract the most relevant part of the error
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", prefix, detail)
	}
	return err.Error()
}
