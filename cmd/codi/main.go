package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/codi/internal/command"
	_ "github.com/keshon/codi/internal/command/all"
	"github.com/keshon/codi/internal/fs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	r := &command.Runner{FS: fs.NewOSFS(), Stdout: os.Stdout, Stderr: os.Stderr}
	code := r.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
