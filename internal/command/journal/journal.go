package journal

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/journal"
	"github.com/keshon/codi/internal/middleware"
)

type Command struct{}

func (c *Command) Name() string      { return "journal" }
func (c *Command) Short() string     { return "J" }
func (c *Command) Aliases() []string { return []string{"runs"} }
func (c *Command) Usage() string     { return "journal [options]" }
func (c *Command) Brief() string     { return "Show past runs" }
func (c *Command) Help() string {
	return `List past runs recorded in the run journal of the backup root,
newest first.

Options:
  -n, --limit <n>   Show at most n runs (default 20, 0 for all)`
}

func (c *Command) Subcommands() []command.Command { return nil }

func (c *Command) Flags(fs *pflag.FlagSet) {
	fs.IntP("limit", "n", 20, "show at most n runs")
}

func (c *Command) Run(ctx *command.Context) error {
	limit, _ := ctx.Flags.GetInt("limit")
	cfg, err := ctx.RequireConfig()
	if err != nil {
		return err
	}
	path := journal.Path(cfg.Destination)
	if !ctx.FS.Exists(path) {
		fmt.Fprintln(ctx.Stdout, "No runs recorded")
		return nil
	}
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()
	runs, err := j.Recent(ctx.Ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(ctx.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tCOMMAND\tTOOK\tRECORD\tFILES\tDELETED\tPROMOTED\tMERGED\tSTATUS")
	for _, r := range runs {
		status := "ok"
		switch {
		case r.Error != "":
			status = "error: " + r.Error
		case r.Skipped:
			status = "skipped"
		case r.Finished.IsZero():
			status = "unfinished"
		}
		record := r.Record
		if record == "" {
			record = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			humanize.Time(r.Started), r.Command, r.Duration().Round(1e6), record,
			r.Files, r.Tombstones, r.Promotions, r.Merges, status)
	}
	return w.Flush()
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
