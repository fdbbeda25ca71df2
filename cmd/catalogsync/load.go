package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/engine"
)

// runLoad loads the named catalogs, or every catalog in the index when none
// are named. refresh forces a network round trip for each of them.
func runLoad(ctx context.Context, args []string, stdout, stderr io.Writer, refresh bool) error {
	name := "load"
	if refresh {
		name = "refresh"
	}
	fs, opts := newFlagSet(name, stderr)
	concurrency := fs.Int("concurrency", 0, "Catalogs in flight at once (default: fetch.concurrency)")
	force := refresh
	if !refresh {
		fs.BoolVar(&force, "force", false, "Refetch even when the cached copy is valid")
	}

	a, ctx, cleanup, err := setup(ctx, fs, opts, args, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	var result *engine.BatchResult
	if fs.NArg() == 0 {
		result, err = a.engine.LoadAll(ctx, *concurrency, force)
		if err != nil {
			return err
		}
	} else {
		ids := make([]catalog.CatalogID, 0, fs.NArg())
		for _, arg := range fs.Args() {
			ids = append(ids, catalog.CatalogID(arg))
		}
		result, err = a.engine.LoadMany(ctx, ids, *concurrency, force)
		if err != nil {
			return err
		}
	}

	if err := printBatch(stdout, result); err != nil {
		return err
	}
	if n := len(result.Failed); n > 0 {
		return fmt.Errorf("%d of %d catalogs failed", n, n+len(result.Loaded))
	}
	return nil
}

func printBatch(w io.Writer, r *engine.BatchResult) error {
	ids := make([]catalog.CatalogID, 0, len(r.Loaded)+len(r.Failed))
	for id := range r.Loaded {
		ids = append(ids, id)
	}
	for id := range r.Failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	tw := newTable(w)
	for _, id := range ids {
		if c, ok := r.Loaded[id]; ok {
			mark := "✓"
			var notes []string
			if c.Stale {
				mark = "~"
				notes = append(notes, "stale, cached "+humanize.Time(c.CachedAt))
			}
			if !c.Verified {
				notes = append(notes, "unverified")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\tschema %s\t%s\n", mark, id, c.Name, c.SchemaVersion, strings.Join(notes, "; "))
			continue
		}
		fmt.Fprintf(tw, "✗\t%s\t\t\t%v\n", id, r.Failed[id])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nloaded %d (%d stale), failed %d", len(r.Loaded), r.StaleCount(), len(r.Failed))
	if r.IndexStale {
		fmt.Fprint(w, ", index from offline snapshot")
	}
	fmt.Fprintf(w, "\nrun %s\n", r.RunID)
	return nil
}
