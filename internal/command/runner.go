package command

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/logging"
)

// Runner executes one command line.
type Runner struct {
	FS     fs.FS
	Stdout io.Writer
	Stderr io.Writer
}

// Run parses args, resolves the command and runs it. It returns the
// process exit code.
func (r *Runner) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		args = []string{"help"}
	}

	node, remaining, err := ResolveCommand(args)
	if err != nil {
		fmt.Fprintln(r.Stderr, "Error:", err)
		fmt.Fprintln(r.Stderr, "Type 'codi help' for a list of commands.")
		return 2
	}
	cmd := node.Cmd

	var g Globals
	flags := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	flags.SetOutput(r.Stderr)
	flags.StringVarP(&g.ConfigPath, "config", "c", "", "config file (default $CODI_CONFIG or ./codi.yaml)")
	flags.StringVar(&g.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&g.Verbose, "verbose", "v", false, "debug logging")
	cmd.Flags(flags)
	flags.Usage = func() {
		fmt.Fprintf(r.Stderr, "Usage: codi %s\n\n%s\n\nFlags:\n%s", cmd.Usage(), cmd.Help(), flags.FlagUsages())
	}
	if err := flags.Parse(remaining); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(r.Stderr, "Error:", err)
		return 2
	}

	logger, warning, err := logging.Setup(logging.Options{Flag: g.LogLevel, Verbose: g.Verbose, Output: r.Stderr})
	if err != nil {
		fmt.Fprintln(r.Stderr, "Error:", err)
		return 2
	}
	if warning != "" {
		fmt.Fprintln(r.Stderr, warning)
	}

	c := &Context{
		Ctx:     ctx,
		Args:    flags.Args(),
		Flags:   flags,
		Globals: g,
		FS:      r.FS,
		Stdout:  r.Stdout,
		Stderr:  r.Stderr,
		Logger:  logger,
	}
	if err := cmd.Run(c); err != nil {
		fmt.Fprintln(r.Stderr, "Error:", err)
		return 1
	}
	return 0
}
