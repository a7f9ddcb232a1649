package watch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/backup"
	"github.com/keshon/codi/internal/command"
	backupcmd "github.com/keshon/codi/internal/command/backup"
	"github.com/keshon/codi/internal/detect"
	"github.com/keshon/codi/internal/journal"
	"github.com/keshon/codi/internal/middleware"
	"github.com/keshon/codi/internal/watch"
)

type Command struct{}

func (c *Command) Name() string      { return "watch" }
func (c *Command) Short() string     { return "W" }
func (c *Command) Aliases() []string { return []string{"daemon"} }
func (c *Command) Usage() string     { return "watch [options]" }
func (c *Command) Brief() string     { return "Run backups on a schedule until interrupted" }
func (c *Command) Help() string {
	return `Run a backup now, then again on every tick of the configured cron
schedule. With watch_fs enabled, changes under the sources also trigger
a backup once no change arrived for the debounce interval.

Triggers that arrive while a backup is running collapse into a single
follow-up run.

Options:
      --schedule <spec>   Override the cron schedule (e.g. "@every 5m")
      --fs                Also back up on filesystem changes`
}

func (c *Command) Subcommands() []command.Command { return nil }

func (c *Command) Flags(fs *pflag.FlagSet) {
	fs.String("schedule", "", "cron schedule")
	fs.Bool("fs", false, "trigger on filesystem changes")
}

func (c *Command) Run(ctx *command.Context) error {
	cfg, err := ctx.RequireConfig()
	if err != nil {
		return err
	}
	schedule := cfg.Schedule
	if s, _ := ctx.Flags.GetString("schedule"); s != "" {
		schedule = s
	}
	watchFS := cfg.WatchFS
	if on, _ := ctx.Flags.GetBool("fs"); on {
		watchFS = true
	}

	opts, err := backup.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = ctx.Logger
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

	ignore := detect.NewMatcher(cfg.Ignore)
	dest := filepath.Clean(cfg.Destination)
	w, err := watch.New(watch.Options{
		Schedule: schedule,
		Sources:  cfg.Sources,
		WatchFS:  watchFS,
		Debounce: cfg.Debounce.Std(),
		Ignore: func(path string) bool {
			p := filepath.Clean(path)
			if p == dest || strings.HasPrefix(p, dest+string(filepath.Separator)) {
				return true
			}
			return ignore.Match(p)
		},
		Logger: ctx.Logger,
	}, func(runCtx context.Context, reason string) error {
		res, err := eng.Backup(runCtx)
		if err != nil {
			return err
		}
		backupcmd.Print(ctx, res)
		return nil
	})
	if err != nil {
		return err
	}
	return w.Run(ctx.Ctx)
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
