package command

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/fs"
)

type fakeCmd struct {
	name    string
	aliases []string
	subs    []Command
	run     func(ctx *Context) error
}

func (c *fakeCmd) Name() string            { return c.name }
func (c *fakeCmd) Short() string           { return "" }
func (c *fakeCmd) Aliases() []string       { return c.aliases }
func (c *fakeCmd) Usage() string           { return c.name }
func (c *fakeCmd) Brief() string           { return "test command" }
func (c *fakeCmd) Help() string            { return "test command" }
func (c *fakeCmd) Subcommands() []Command  { return c.subs }
func (c *fakeCmd) Flags(fs *pflag.FlagSet) { fs.Bool("dry", false, "") }
func (c *fakeCmd) Run(ctx *Context) error {
	if c.run != nil {
		return c.run(ctx)
	}
	return nil
}

func TestTreeResolve(t *testing.T) {
	tr := NewTree()
	child := &fakeCmd{name: "prune"}
	tr.Register(&fakeCmd{name: "store", aliases: []string{"st"}, subs: []Command{child}})

	node, rest, err := tr.Resolve([]string{"st", "prune", "--dry", "x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if node.Cmd != child {
		t.Fatalf("resolved %s, want prune", node.Cmd.Name())
	}
	if strings.Join(rest, " ") != "--dry x" {
		t.Fatalf("rest = %v", rest)
	}

	node, rest, err = tr.Resolve([]string{"store", "other"})
	if err != nil || node.Cmd.Name() != "store" || len(rest) != 1 {
		t.Fatalf("Resolve(store other) = %v, %v, %v", node, rest, err)
	}

	if _, _, err := tr.Resolve([]string{"nope"}); !errors.Is(err, errors.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
	if _, ok := tr.Get("st"); !ok {
		t.Fatal("alias not registered")
	}
}

func TestApplyMiddlewaresOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(cmd Command) Command {
			return &WrappedCommand{Command: cmd, Wrap: func(ctx *Context) error {
				order = append(order, name)
				return cmd.Run(ctx)
			}}
		}
	}
	cmd := ApplyMiddlewares(&fakeCmd{name: "x", run: func(*Context) error {
		order = append(order, "run")
		return nil
	}}, mw("outer"), mw("inner"))

	if err := cmd.Run(&Context{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(order, ","); got != "outer,inner,run" {
		t.Fatalf("order = %s", got)
	}
	if cmd.Name() != "x" {
		t.Fatalf("wrapped name = %s", cmd.Name())
	}
}

func TestRunnerExitCodes(t *testing.T) {
	var seen *Context
	RegisterCommand(&fakeCmd{name: "runner-ok", run: func(ctx *Context) error {
		seen = ctx
		return nil
	}})
	RegisterCommand(&fakeCmd{name: "runner-fail", run: func(*Context) error {
		return errors.New("boom")
	}})

	var stdout, stderr bytes.Buffer
	r := &Runner{FS: fs.NewMemoryFS(), Stdout: &stdout, Stderr: &stderr}
	ctx := context.Background()

	if code := r.Run(ctx, []string{"runner-ok", "--dry", "-c", "alt.yaml", "arg"}); code != 0 {
		t.Fatalf("exit = %d, stderr %s", code, stderr.String())
	}
	if seen.Globals.ConfigPath != "alt.yaml" || len(seen.Args) != 1 || seen.Args[0] != "arg" {
		t.Fatalf("context = %+v", seen)
	}
	if dry, _ := seen.Flags.GetBool("dry"); !dry {
		t.Fatal("command flag not parsed")
	}

	if code := r.Run(ctx, []string{"runner-fail"}); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	if code := r.Run(ctx, []string{"no-such-command"}); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if code := r.Run(ctx, []string{"runner-ok", "--bogus"}); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if code := r.Run(ctx, []string{"runner-ok", "--help"}); code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
}

func TestRequireConfig(t *testing.T) {
	if _, err := (&Context{}).RequireConfig(); err == nil {
		t.Fatal("expected error without config")
	}
}
