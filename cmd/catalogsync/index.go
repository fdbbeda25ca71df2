package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

func runIndex(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("index", stderr)
	a, ctx, cleanup, err := setup(ctx, fs, opts, args, stderr)
	if err != nil {
		return err
	}
	defer cleanup()
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: index takes no arguments", errUsage)
	}

	idx, err := a.engine.GetIndex(ctx)
	if err != nil {
		return err
	}

	tw := newTable(stdout)
	fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
	for _, e := range idx.Catalogs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.Name, e.LastUpdated)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "\n%d catalogs, schema %s, published %s\n", len(idx.Catalogs), idx.SchemaVersion, idx.LastUpdated)
	if idx.Stale {
		fmt.Fprintf(stdout, "catalog host unreachable, showing snapshot fetched %s\n", humanize.Time(idx.FetchedAt))
	}
	return nil
}
