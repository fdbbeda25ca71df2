package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/cache"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/config"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/engine"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/fetch"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/platform"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/verify"
)

const envPrefix = "CATALOGSYNC"

// globalOptions are the flags every command accepts.
type globalOptions struct {
	configPath    string
	baseURL       string
	cachePath     string
	logLevel      string
	logFormat     string
	allowUnsigned bool
	timeout       time.Duration
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *globalOptions) {
	opts := &globalOptions{}
	fs := flag.NewFlagSet("catalogsync "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to the Lua config file (default: <config dir>/catalogsync.lua)")
	fs.StringVar(&opts.baseURL, "base-url", "", "Catalog host base URL, overrides remote.base_url")
	fs.StringVar(&opts.cachePath, "cache", "", "Cache database path, overrides cache.path")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	fs.BoolVar(&opts.allowUnsigned, "allow-unsigned", false, "Store and serve catalogs that fail verification (development only)")
	fs.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall command timeout")
	return fs, opts
}

// parseFlags parses args, then CATALOGSYNC_* environment variables for
// flags not given on the command line.
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := ff.Parse(fs, args, ff.WithEnvVarPrefix(envPrefix))
	if errors.Is(err, flag.ErrHelp) {
		return errHelp
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// configPath resolves -config or the default location.
func (o *globalOptions) resolveConfigPath() (string, error) {
	if o.configPath != "" {
		return config.ExpandHome(o.configPath)
	}
	return config.DefaultConfigPath()
}

// apply copies flag overrides into cfg.
func (o *globalOptions) apply(cfg *config.Config) {
	if o.baseURL != "" {
		cfg.Remote.BaseURL = o.baseURL
	}
	if o.cachePath != "" {
		cfg.Cache.Path = o.cachePath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.allowUnsigned {
		cfg.Trust.RequireSignatures = false
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app is a configured, initialized engine for one command.
type app struct {
	cfg         *config.Config
	configPath  string
	configFound bool
	logger      *slog.Logger
	engine      *engine.Engine
}

// loadConfig reads the config file (or the defaults) and applies overrides.
func loadConfig(ctx context.Context, opts *globalOptions, detector platform.Detector, stderr io.Writer) (*config.Config, string, bool, error) {
	path, err := opts.resolveConfigPath()
	if err != nil {
		return nil, "", false, err
	}

	// Config warnings are printed before the configured logger exists.
	boot := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	parser := config.NewParser(detector, config.WithLogger(boot))
	cfg, found, err := parser.Load(ctx, path)
	if err != nil {
		return nil, "", false, fmt.Errorf("load config: %s", config.FormatError(err, false))
	}

	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return cfg, path, found, nil
}

// newApp wires the fetcher, verifier, cache store and engine from config and
// initializes the engine.
func newApp(ctx context.Context, opts *globalOptions, stderr io.Writer) (*app, error) {
	detector := platform.NewDetector()
	cfg, path, found, err := loadConfig(ctx, opts, detector, stderr)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, stderr)

	info, err := detector.Detect(ctx)
	if err != nil {
		logger.Debug("platform detection failed", "error", err)
		info = nil
	}

	trust, err := verify.NewTrust(cfg.Trust.ActiveKey, cfg.Trust.BackupKey)
	if err != nil {
		return nil, fmt.Errorf("trust keys: %w", err)
	}
	verifier, err := verify.New(verify.Options{
		Trust:     trust,
		MinSchema: cfg.Schema.Supported,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	fetcher, err := fetch.New(fetch.Config{
		BaseURL:         cfg.Remote.BaseURL,
		IndexPath:       cfg.Remote.IndexPath,
		CatalogDir:      cfg.Remote.CatalogDir,
		SignatureSuffix: cfg.Remote.SignatureSuffix,
		Timeout:         cfg.Fetch.Timeout(),
		MaxAttempts:     cfg.Fetch.MaxAttempts,
		InitialBackoff:  cfg.Fetch.InitialBackoff(),
		MaxBackoff:      cfg.Fetch.MaxBackoff(),
		MaxBodyBytes:    cfg.Fetch.MaxBodyBytes,
		UserAgent:       platform.UserAgent(strings.TrimPrefix(Version, "v"), info),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	cachePath, err := cfg.CachePath()
	if err != nil {
		return nil, err
	}
	store, err := cache.New(cache.Config{
		Path:          cachePath,
		Expiry:        cfg.Cache.Expiry(),
		MemoryEntries: cfg.Cache.MemoryEntries,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engine.Options{
		Fetcher:       fetcher,
		Verifier:      verifier,
		Store:         store,
		AllowUnsigned: !cfg.Trust.RequireSignatures,
		Concurrency:   cfg.Fetch.Concurrency,
		DiskFree:      platform.DiskFree,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.Initialize(ctx); err != nil {
		_ = eng.Dispose()
		return nil, err
	}

	logger.Debug("catalogsync ready",
		"config", path,
		"config_found", found,
		"base_url", fetcher.BaseURL(),
		"cache", cachePath)
	return &app{cfg: cfg, configPath: path, configFound: found, logger: logger, engine: eng}, nil
}

func (a *app) Close() {
	if err := a.engine.Dispose(); err != nil {
		a.logger.Warn("shutdown failed", "error", err)
	}
}

// setup parses flags and builds the app under a command timeout. The caller
// must call the returned cleanup.
func setup(ctx context.Context, fs *flag.FlagSet, opts *globalOptions, args []string, stderr io.Writer) (*app, context.Context, func(), error) {
	if err := parseFlags(fs, args); err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	a, err := newApp(ctx, opts, stderr)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return a, ctx, func() {
		a.Close()
		cancel()
	}, nil
}
