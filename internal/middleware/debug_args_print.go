// Package middleware wraps commands with the steps they share: config
// loading, the store lock and run journaling.
package middleware

import (
	"github.com/keshon/codi/internal/command"
)

// WithDebugArgsPrint logs the parsed arguments at debug level.
func WithDebugArgsPrint() command.Middleware {
	return func(cmd command.Command) command.Command {
		return &command.WrappedCommand{
			Command: cmd,
			Wrap: func(ctx *command.Context) error {
				ctx.Logger.Debug("command", "name", cmd.Name(), "args", ctx.Args)
				return cmd.Run(ctx)
			},
		}
	}
}
