package main

import (
	"context"
	"fmt"
	"io"
)

// runReverify checks every cached payload against the current trust keys.
func runReverify(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("reverify", stderr)
	a, ctx, cleanup, err := setup(ctx, fs, opts, args, stderr)
	if err != nil {
		return err
	}
	defer cleanup()
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: reverify takes no arguments", errUsage)
	}

	res, err := a.engine.Reverify(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "checked %d, verified %d, failed %d\n", res.Checked, res.Verified, len(res.Failed))
	for _, id := range res.Failed {
		fmt.Fprintf(stdout, "  ✗ %s\n", id)
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d cached catalogs failed verification", len(res.Failed))
	}
	return nil
}
