// Package lock serializes runs against one backup root across the
// machine.
package lock

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/mutex/v2"
	"github.com/zeebo/xxh3"
)

const ErrLocked = errors.ConstError("backup root is locked by another run")

const pollDelay = 100 * time.Millisecond

// Name derives the mutex name for a root. Mutex names are short and
// lowercase, so the path is hashed.
func Name(root string) string {
	return fmt.Sprintf("codi-%016x", xxh3.HashString(filepath.Clean(root)))
}

// Releaser frees a held lock.
type Releaser interface {
	Release()
}

// Acquire blocks until the lock on root is held, timeout passes or ctx
// is done. A zero timeout waits for ctx alone.
func Acquire(ctx context.Context, root string, timeout time.Duration, clk clock.Clock) (Releaser, error) {
	if clk == nil {
		clk = clock.WallClock
	}
	wait := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	spec := mutex.Spec{
		Name:   Name(root),
		Clock:  clk,
		Delay:  pollDelay,
		Cancel: wait.Done(),
	}
	r, err := mutex.Acquire(spec)
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, mutex.ErrCancelled):
		if ctx.Err() != nil {
			return nil, errors.Trace(ctx.Err())
		}
		return nil, errors.Annotatef(ErrLocked, "%s after %s", root, timeout)
	}
	return nil, errors.Annotatef(err, "lock %s", root)
}
