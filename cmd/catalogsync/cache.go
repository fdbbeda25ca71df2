package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
)

// runCache dispatches the cache subcommands: list, stats, remove, clear
// and cleanup.
func runCache(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: cache requires a subcommand (list, stats, remove, clear, cleanup)", errUsage)
	}
	action, rest := args[0], args[1:]
	wantArgs := 0
	switch action {
	case "list", "stats", "clear", "cleanup":
	case "remove":
		wantArgs = 1
	default:
		return fmt.Errorf("%w: unknown cache subcommand %q", errUsage, action)
	}

	fs, opts := newFlagSet("cache "+action, stderr)
	if err := parseFlags(fs, rest); err != nil {
		return err
	}
	if fs.NArg() != wantArgs {
		if wantArgs == 1 {
			return fmt.Errorf("%w: cache %s takes exactly one catalog id", errUsage, action)
		}
		return fmt.Errorf("%w: cache %s takes no arguments", errUsage, action)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	a, err := newApp(ctx, opts, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	switch action {
	case "list":
		infos, err := a.engine.ListCached(ctx)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(stdout, "No cached catalogs")
			return nil
		}
		tw := newTable(stdout)
		fmt.Fprintln(tw, "ID\tNAME\tSCHEMA\tVERIFIED\tCACHED\tSIZE\tSTATE")
		for _, info := range infos {
			state := "valid"
			if info.Expired {
				state = "expired"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
				info.ID, info.Name, info.SchemaVersion, info.Verified,
				humanize.Time(info.CachedAt), humanize.Bytes(uint64(info.Size)), state)
		}
		return tw.Flush()

	case "stats":
		stats, err := a.engine.CacheStats(ctx)
		if err != nil {
			return err
		}
		return writeYAML(stdout, stats)

	case "remove":
		id := catalog.CatalogID(fs.Arg(0))
		removed, err := a.engine.RemoveCached(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(stdout, "%s was not cached\n", id)
			return nil
		}
		fmt.Fprintf(stdout, "Removed %s\n", id)

	case "clear":
		n, err := a.engine.ClearCache(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Removed %d cached catalogs\n", n)

	case "cleanup":
		n, err := a.engine.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Removed %d expired catalogs\n", n)
	}
	return nil
}
