package history

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/middleware"
	"github.com/keshon/codi/internal/store"
)

type Command struct{}

func (c *Command) Name() string      { return "history" }
func (c *Command) Short() string     { return "L" }
func (c *Command) Aliases() []string { return []string{"list", "ls"} }
func (c *Command) Usage() string     { return "history [options]" }
func (c *Command) Brief() string     { return "List records, newest first" }
func (c *Command) Help() string {
	return `List every record with its tier, creation and last edit time, file
and folder counts and container size.

Options:
  -n, --limit <n>   Show at most n records
      --no-size     Skip measuring container sizes`
}

func (c *Command) Subcommands() []command.Command { return nil }

func (c *Command) Flags(fs *pflag.FlagSet) {
	fs.IntP("limit", "n", 0, "show at most n records")
	fs.Bool("no-size", false, "skip container sizes")
}

func (c *Command) Run(ctx *command.Context) error {
	limit, _ := ctx.Flags.GetInt("limit")
	noSize, _ := ctx.Flags.GetBool("no-size")

	st, h, err := ctx.History()
	if err != nil {
		return err
	}
	if h.Len() == 0 {
		fmt.Fprintln(ctx.Stdout, "No records yet")
		return nil
	}

	w := tabwriter.NewWriter(ctx.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD\tTIER\tEDITED\tFILES\tDELETED\tFOLDERS\tSIZE")
	for i, r := range h.Records() {
		if limit > 0 && i >= limit {
			break
		}
		size := "-"
		if !noSize {
			if s, err := containerSize(st, r.ID()); err == nil {
				size = humanize.Bytes(uint64(s))
			} else {
				ctx.Logger.Warn("size", "record", r.ID(), "err", err)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID(), r.Tier, humanize.Time(r.Edited), r.LiveFiles(), len(r.Files)-r.LiveFiles(), len(r.Folders), size)
	}
	return w.Flush()
}

func containerSize(st *store.Local, id string) (int64, error) {
	c, err := st.Open(id)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	return c.Size()
}

func init() {
	command.RegisterCommand(
		command.ApplyMiddlewares(
			&Command{},
			middleware.WithConfig(),
			middleware.WithStoreLock(),
			middleware.WithDebugArgsPrint(),
		),
	)
}
