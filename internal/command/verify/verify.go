package verify

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/middleware"
	"github.com/keshon/codi/internal/progress"
	"github.com/keshon/codi/internal/verify"
)

type Command struct{}

func (c *Command) Name() string      { return "verify" }
func (c *Command) Short() string     { return "V" }
func (c *Command) Aliases() []string { return []string{"check"} }
func (c *Command) Usage() string     { return "verify [options]" }
func (c *Command) Brief() string     { return "Check that every stored file is present and intact" }
func (c *Command) Help() string {
	return `Read back every live file entry of every record and compare its
content hash. Missing or damaged blobs make the command fail. Blobs no
entry points at are reported as orphans.

Options:
      --orphans-ok   Do not fail on orphan blobs`
}

func (c *Command) Subcommands() []command.Command { return nil }

func (c *Command) Flags(fs *pflag.FlagSet) {
	fs.Bool("orphans-ok", false, "do not fail on orphan blobs")
}

func (c *Command) Run(ctx *command.Context) error {
	orphansOK, _ := ctx.Flags.GetBool("orphans-ok")
	cfg, err := ctx.RequireConfig()
	if err != nil {
		return err
	}
	st, h, err := ctx.History()
	if err != nil {
		return err
	}

	var bar *progress.Tracker
	if bar = progress.ForTerminal("checking"); bar != nil {
		bar.Start(verify.Count(h), 0)
	}
	out, errCh := verify.Stream(ctx.Ctx, st, h, cfg.Hash, cfg.Workers)
	var problems, orphans, checked int
	var report []string
	for chk := range out {
		if bar != nil && chk.Status != verify.Orphan {
			bar.Add(0)
		}
		switch chk.Status {
		case verify.OK:
			checked++
			continue
		case verify.Orphan:
			orphans++
		default:
			problems++
		}
		name := chk.Path
		if name == "" {
			name = chk.Blob
		}
		line := fmt.Sprintf("%-8s %s %s", chk.Status, chk.Record, name)
		if chk.Err != nil {
			line += ": " + chk.Err.Error()
		}
		report = append(report, line)
	}
	if bar != nil {
		bar.Finish()
	}
	if err := <-errCh; err != nil {
		return err
	}

	for _, line := range report {
		fmt.Fprintln(ctx.Stdout, line)
	}
	fmt.Fprintf(ctx.Stdout, "%d records, %d files ok, %d problems, %d orphans\n", h.Len(), checked, problems, orphans)
	if problems > 0 || (orphans > 0 && !orphansOK) {
		return errors.Errorf("verification failed")
	}
	return nil
}

func init() {
	command.RegisterCommand(
		command.ApplyMiddlewares(
			&Command{},
			middleware.WithConfig(),
			middleware.WithJournal(),
			middleware.WithStoreLock(),
			middleware.WithDebugArgsPrint(),
		),
	)
}
