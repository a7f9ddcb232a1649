package recover

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/middleware"
	"github.com/keshon/codi/internal/resolve"
	"github.com/keshon/codi/internal/snapshot"
)

type Command struct{}

func (c *Command) Name() string      { return "recover" }
func (c *Command) Short() string     { return "R" }
func (c *Command) Aliases() []string { return []string{"restore"} }
func (c *Command) Usage() string {
	return "recover <timestamp> (--all | --select <prefix>) [options]"
}
func (c *Command) Brief() string { return "Restore files as they were at a point in time" }
func (c *Command) Help() string {
	return `Restore the state of <timestamp> to disk. Files are written through a
temporary file and renamed into place, and get their recorded
modification time back. Files deleted as of the timestamp are left
alone.

Options:
      --all               Restore every tracked path
      --select <prefix>   Restore only paths at or below prefix
      --to <dir>          Restore under dir instead of the original locations
      --dry-run           Only list what would be restored`
}

func (c *Command) Subcommands() []command.Command { return nil }

func (c *Command) Flags(fs *pflag.FlagSet) {
	fs.Bool("all", false, "restore every tracked path")
	fs.String("select", "", "restore only paths at or below this prefix")
	fs.String("to", "", "restore below this directory")
	fs.Bool("dry-run", false, "list what would be restored")
}

func (c *Command) Run(ctx *command.Context) error {
	if len(ctx.Args) != 1 {
		return errors.New("usage: " + c.Usage())
	}
	at, err := resolve.ParseTime(ctx.Args[0])
	if err != nil {
		return err
	}
	all, _ := ctx.Flags.GetBool("all")
	prefix, _ := ctx.Flags.GetString("select")
	target, _ := ctx.Flags.GetString("to")
	dryRun, _ := ctx.Flags.GetBool("dry-run")
	if all == (prefix != "") {
		return errors.New("exactly one of --all or --select is required")
	}

	cfg, err := ctx.RequireConfig()
	if err != nil {
		return err
	}
	st, h, err := ctx.History()
	if err != nil {
		return err
	}
	v := resolve.Peek(h, at)
	m := resolve.NewMaterializer(ctx.FS, st, cfg.Workers, ctx.Logger)
	rep, err := m.Recover(ctx.Ctx, v, resolve.Options{Prefix: prefix, Target: target, DryRun: dryRun})
	if err != nil {
		return err
	}

	if dryRun {
		for _, p := range rep.Paths {
			fmt.Fprintln(ctx.Stdout, p)
		}
	}
	verb := "Restored"
	if dryRun {
		verb = "Would restore"
	}
	fmt.Fprintf(ctx.Stdout, "%s %d files and %d folders as of %s (%d deleted paths skipped)\n",
		verb, rep.Files, rep.Folders, snapshot.FormatID(at), rep.Skipped)
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
