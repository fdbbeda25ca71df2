package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/engine"
)

type statusOutput struct {
	Version     string `yaml:"version"`
	ConfigFile  string `yaml:"config_file"`
	ConfigFound bool   `yaml:"config_found"`

	engine.Status `yaml:",inline"`
}

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("status", stderr)
	a, ctx, cleanup, err := setup(ctx, fs, opts, args, stderr)
	if err != nil {
		return err
	}
	defer cleanup()
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: status takes no arguments", errUsage)
	}

	st, err := a.engine.Status(ctx)
	if err != nil {
		return err
	}
	return writeYAML(stdout, statusOutput{
		Version:     Version,
		ConfigFile:  a.configPath,
		ConfigFound: a.configFound,
		Status:      *st,
	})
}
