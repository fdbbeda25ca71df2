package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/config"
)

// runInit writes a config file from the defaults plus any flags, then
// creates the cache database.
func runInit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("init", stderr)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	trustKey := fs.String("trust-key", "", "Active signing key (ed25519:<base64> or openpgp:<base64>)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: init takes no arguments", errUsage)
	}

	path, err := opts.resolveConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("config already exists at %s (use -force to overwrite)", path)
	}

	cfg := config.Default()
	opts.apply(cfg)
	if *trustKey != "" {
		cfg.Trust.ActiveKey = *trustKey
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	content, err := config.NewGenerator().Generate(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote config to %s\n", path)

	opts.configPath = path
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	a, err := newApp(ctx, opts, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.engine.CacheStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Cache ready at %s (%d catalogs)\n", stats.Path, stats.Total)
	return nil
}
