package middleware

import (
	"time"

	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/journal"
)

// WithJournal records the command's start, end and error in the run
// journal when journaling is enabled. Failing to journal never fails
// the command.
func WithJournal() command.Middleware {
	return func(cmd command.Command) command.Command {
		return &command.WrappedCommand{
			Command: cmd,
			Wrap: func(ctx *command.Context) error {
				cfg, err := ctx.RequireConfig()
				if err != nil || !cfg.JournalEnabled() {
					return cmd.Run(ctx)
				}
				if err := ctx.FS.MkdirAll(cfg.Destination, 0o755); err != nil {
					return err
				}
				j, err := journal.Open(journal.Path(cfg.Destination))
				if err != nil {
					ctx.Logger.Warn("journal unavailable", "err", err)
					return cmd.Run(ctx)
				}
				defer j.Close()

				run := journal.Start(cmd.Name(), time.Now())
				runErr := cmd.Run(ctx)
				run.Finished = time.Now().UTC()
				if runErr != nil {
					run.Error = runErr.Error()
				}
				if err := j.Save(ctx.Ctx, run); err != nil {
					ctx.Logger.Warn("journal run", "run", run.ID, "err", err)
				}
				return runErr
			},
		}
	}
}
