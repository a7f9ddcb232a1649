package backup

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/backup"
	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/journal"
	"github.com/keshon/codi/internal/middleware"
	"github.com/keshon/codi/internal/progress"
)

type Command struct{}

func (c *Command) Name() string      { return "backup" }
func (c *Command) Short() string     { return "B" }
func (c *Command) Aliases() []string { return []string{"b"} }
func (c *Command) Usage() string     { return "backup [options]" }
func (c *Command) Brief() string     { return "Back up changed files and compact old records" }
func (c *Command) Help() string {
	return `Scan the configured sources, store new and modified files in a new
record, mark deleted files and folders, then promote and compact older
records according to the retention settings.

A run that finds nothing to store leaves no record. Retention still runs.

Options:
      --no-progress   Do not draw a progress line while copying`
}

func (c *Command) Subcommands() []command.Command { return nil }

func (c *Command) Flags(fs *pflag.FlagSet) {
	fs.Bool("no-progress", false, "do not draw a progress line")
}

func (c *Command) Run(ctx *command.Context) error {
	cfg, err := ctx.RequireConfig()
	if err != nil {
		return err
	}
	opts, err := backup.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = ctx.Logger

	if quiet, _ := ctx.Flags.GetBool("no-progress"); !quiet {
		if tr := progress.ForTerminal("copying"); tr != nil {
			opts.Progress = tr
		}
	}
	if cfg.JournalEnabled() {
		j, err := journal.Open(journal.Path(cfg.Destination))
		if err != nil {
			ctx.Logger.Warn("journal unavailable", "err", err)
		} else {
			defer j.Close()
			opts.Journal = j
		}
	}

	eng, err := backup.New(ctx.FS, opts)
	if err != nil {
		return err
	}
	res, err := eng.Backup(ctx.Ctx)
	if err != nil {
		return err
	}
	Print(ctx, res)
	return nil
}

// Print writes the one-line summary of a run.
func Print(ctx *command.Context, res backup.Result) {
	switch {
	case res.Skipped:
		fmt.Fprintln(ctx.Stdout, "Skipped: clock is not past the newest record")
	case res.Record == "":
		fmt.Fprintf(ctx.Stdout, "No changes (%d touched)\n", res.Touched)
	default:
		fmt.Fprintf(ctx.Stdout, "Record %s: %d files (%s), %d deleted, %d folder changes\n",
			res.Record, res.Files, humanize.Bytes(uint64(res.Bytes)), res.Tombstones, res.Folders)
	}
	if st := res.Retention; st.Promotions > 0 || st.Merges > 0 {
		fmt.Fprintf(ctx.Stdout, "Retention: %d promoted, %d merged\n", st.Promotions, st.Merges)
	}
}

func init() {
	command.RegisterCommand(
		command.ApplyMiddlewares(
			&Command{},
			middleware.WithConfig(),
			middleware.WithDebugArgsPrint(),
		),
	)
}
