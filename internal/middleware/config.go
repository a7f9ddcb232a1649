package middleware

import (
	"fmt"

	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/config"
	"github.com/keshon/codi/internal/logging"
)

// WithConfig loads the configuration and applies its log level where
// neither the flag nor the environment chose one.
func WithConfig() command.Middleware {
	return func(cmd command.Command) command.Command {
		return &command.WrappedCommand{
			Command: cmd,
			Wrap: func(ctx *command.Context) error {
				path := config.ResolvePath(ctx.Globals.ConfigPath)
				cfg, err := config.Load(ctx.FS, path)
				if err != nil {
					return err
				}
				logger, warning, err := logging.Setup(logging.Options{
					Flag:    ctx.Globals.LogLevel,
					Config:  cfg.LogLevel,
					Verbose: ctx.Globals.Verbose,
					Output:  ctx.Stderr,
				})
				if err != nil {
					return err
				}
				if warning != "" {
					fmt.Fprintln(ctx.Stderr, warning)
				}
				ctx.Config = cfg
				ctx.Logger = logger
				ctx.Logger.Debug("config loaded", "path", cfg.Path, "destination", cfg.Destination)
				return cmd.Run(ctx)
			},
		}
	}
}
