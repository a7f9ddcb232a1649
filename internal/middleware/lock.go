package middleware

import (
	"time"

	"github.com/juju/clock"

	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/lock"
)

// WithStoreLock holds the backup root's lock while the command runs,
// so readers never see a merge half done.
func WithStoreLock() command.Middleware {
	return func(cmd command.Command) command.Command {
		return &command.WrappedCommand{
			Command: cmd,
			Wrap: func(ctx *command.Context) error {
				cfg, err := ctx.RequireConfig()
				if err != nil {
					return err
				}
				held, err := lock.Acquire(ctx.Ctx, cfg.Destination, time.Duration(cfg.LockTimeout), clock.WallClock)
				if err != nil {
					return err
				}
				defer held.Release()
				return cmd.Run(ctx)
			},
		}
	}
}
