package peek

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

func (c *Command) Name() string      { return "peek" }
func (c *Command) Short() string     { return "P" }
func (c *Command) Aliases() []string { return []string{"show"} }
func (c *Command) Usage() string     { return "peek <timestamp> [options]" }
func (c *Command) Brief() string     { return "List the files as they were at a point in time" }
func (c *Command) Help() string {
	return `Resolve every tracked path as of <timestamp> and print where its
content is stored.

Timestamps use the record id layout (20060102T150405, UTC) or RFC 3339.

Options:
      --select <prefix>   Only paths at or below prefix
      --deleted           Also list paths deleted as of the timestamp
      --folders           Also list folders present at the timestamp`
}

func (c *Command) Subcommands() []command.Command { return nil }

func (c *Command) Flags(fs *pflag.FlagSet) {
	fs.String("select", "", "only paths at or below this prefix")
	fs.Bool("deleted", false, "list deleted paths too")
	fs.Bool("folders", false, "list present folders")
}

func (c *Command) Run(ctx *command.Context) error {
	if len(ctx.Args) != 1 {
		return errors.New("usage: " + c.Usage())
	}
	at, err := resolve.ParseTime(ctx.Args[0])
	if err != nil {
		return err
	}
	prefix, _ := ctx.Flags.GetString("select")
	showDeleted, _ := ctx.Flags.GetBool("deleted")
	showFolders, _ := ctx.Flags.GetBool("folders")

	_, h, err := ctx.History()
	if err != nil {
		return err
	}
	v := resolve.Peek(h, at)
	if len(v.Files) == 0 && len(v.Folders) == 0 {
		fmt.Fprintf(ctx.Stdout, "Nothing recorded at or before %s\n", snapshot.FormatID(at))
		return nil
	}
	for _, p := range v.Paths() {
		if prefix != "" && !resolve.Under(p, prefix) {
			continue
		}
		loc := v.Files[p]
		if loc.Absent {
			if showDeleted {
				fmt.Fprintf(ctx.Stdout, "%s  deleted\n", p)
			}
			continue
		}
		fmt.Fprintf(ctx.Stdout, "%s  %s  %s\n", p, loc.Record, snapshot.FormatID(loc.LastModified))
	}
	if showFolders {
		for _, f := range v.Folders {
			if prefix == "" || resolve.Under(f, prefix) {
				fmt.Fprintf(ctx.Stdout, "%s  folder\n", f)
			}
		}
	}
	return nil
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
