package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
)

// Version will be set at build time via -ldflags
var Version = "v0.1.0-dev"

var (
	// errUsage marks argument errors; run exits with status 2 for them.
	errUsage = errors.New("usage error")
	// errHelp means -h was given and usage has been printed.
	errHelp = errors.New("help requested")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return 0
	}

	var err error
	switch args[0] {
	case "--version", "-version", "version":
		fmt.Fprintf(stdout, "catalogsync %s\n", Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	case "init":
		err = runInit(ctx, args[1:], stdout, stderr)
	case "load":
		err = runLoad(ctx, args[1:], stdout, stderr, false)
	case "refresh":
		err = runLoad(ctx, args[1:], stdout, stderr, true)
	case "index":
		err = runIndex(ctx, args[1:], stdout, stderr)
	case "status":
		err = runStatus(ctx, args[1:], stdout, stderr)
	case "cache":
		err = runCache(ctx, args[1:], stdout, stderr)
	case "reverify":
		err = runReverify(ctx, args[1:], stdout, stderr)
	case "canonicalize":
		err = runCanonicalize(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", args[0])
		printUsage(stderr)
		return 2
	}

	if errors.Is(err, errHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "catalogsync - signed broker catalog synchronization")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  catalogsync --version               Show version information")
	fmt.Fprintln(w, "  catalogsync init [-force]           Write a default config and create the cache")
	fmt.Fprintln(w, "  catalogsync load [-force] [id...]   Load all (or the given) catalogs, cache first")
	fmt.Fprintln(w, "  catalogsync refresh [id...]         Refetch catalogs, ignoring the cache")
	fmt.Fprintln(w, "  catalogsync index                   Print the remote catalog index")
	fmt.Fprintln(w, "  catalogsync status                  Print engine, trust and cache status (YAML)")
	fmt.Fprintln(w, "  catalogsync cache list|stats|remove <id>|clear|cleanup")
	fmt.Fprintln(w, "                                      Inspect or manage the local cache")
	fmt.Fprintln(w, "  catalogsync reverify                Re-check cached catalogs against the trusted keys")
	fmt.Fprintln(w, "  catalogsync canonicalize <file>     Print the canonical form that signatures cover")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags (also read from CATALOGSYNC_<FLAG> environment variables):")
	fmt.Fprintln(w, "  -config <path>       Config file (default: $CATALOGSYNC_CONFIG_DIR/catalogsync.lua)")
	fmt.Fprintln(w, "  -base-url <url>      Override remote.base_url")
	fmt.Fprintln(w, "  -cache <path>        Override cache.path")
	fmt.Fprintln(w, "  -log-level <level>   debug, info, warn or error")
	fmt.Fprintln(w, "  -log-format <fmt>    text or json")
	fmt.Fprintln(w, "  -allow-unsigned      Store and serve catalogs that fail verification (development only)")
	fmt.Fprintln(w, "  -timeout <duration>  Overall command timeout (default 2m)")
}
