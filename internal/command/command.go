// Package command holds the CLI command tree, the context handed to
// each command and the runner that ties flags, logging and dispatch
// together.
package command

import (
	"context"
	"io"
	"log/slog"

	"github.com/juju/errors"
	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/backup"
	"github.com/keshon/codi/internal/config"
	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
)

// Command represents a cli command
type Command interface {
	Name() string
	Short() string
	Aliases() []string
	Usage() string
	Brief() string
	Help() string
	Subcommands() []Command
	Flags(fs *pflag.FlagSet)
	Run(ctx *Context) error
}

// Globals are the flags every command accepts.
type Globals struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
}

// Context represents a cli context
type Context struct {
	Ctx     context.Context
	Args    []string
	Flags   *pflag.FlagSet
	Globals Globals

	FS     fs.FS
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Config is set by the config middleware.
	Config *config.Config
}

// RequireConfig returns the loaded config or fails.
func (c *Context) RequireConfig() (*config.Config, error) {
	if c.Config == nil {
		return nil, errors.New("command needs a configuration")
	}
	return c.Config, nil
}

// Store opens the configured backup root.
func (c *Context) Store() (*store.Local, error) {
	cfg, err := c.RequireConfig()
	if err != nil {
		return nil, err
	}
	kind, err := store.ParseKind(cfg.Container)
	if err != nil {
		return nil, err
	}
	return store.New(c.FS, cfg.Destination, kind)
}

// History opens the store and loads every record. A store with an
// unfinished merge is refused.
func (c *Context) History() (*store.Local, *snapshot.History, error) {
	st, err := c.Store()
	if err != nil {
		return nil, nil, err
	}
	h, err := backup.LoadSettled(st)
	if err != nil {
		return nil, nil, err
	}
	return st, h, nil
}
