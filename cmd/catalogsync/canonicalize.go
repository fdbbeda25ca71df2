package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/verify"
)

// runCanonicalize prints the canonical form of a JSON file, the exact bytes
// a catalog signature covers. "-" reads standard input.
func runCanonicalize(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("catalogsync canonicalize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: canonicalize takes exactly one file (or -)", errUsage)
	}

	var (
		data []byte
		err  error
	)
	if path := fs.Arg(0); path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	out, err := verify.Canonicalize(data)
	if err != nil {
		return err
	}
	if _, err := stdout.Write(out); err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout)
	return err
}
