package lock

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

func TestName(t *testing.T) {
	a, b := Name("/srv/backup"), Name("/srv/backup/")
	if a != b {
		t.Fatalf("trailing slash changed name: %s %s", a, b)
	}
	if Name("/srv/other") == a {
		t.Fatalf("different roots share a name")
	}
	if !regexp.MustCompile(`^[a-z][a-z0-9.-]*$`).MatchString(a) || len(a) > 40 {
		t.Fatalf("name %q not a valid mutex name", a)
	}
}

func TestAcquireExclusive(t *testing.T) {
	root := t.TempDir()
	held, err := Acquire(context.Background(), root, time.Second, clock.WallClock)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err = Acquire(context.Background(), root, 150*time.Millisecond, clock.WallClock)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire: %v", err)
	}

	held.Release()
	again, err := Acquire(context.Background(), root, time.Second, nil)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again.Release()
}

func TestAcquireCancelled(t *testing.T) {
	root := t.TempDir()
	held, err := Acquire(context.Background(), root, time.Second, clock.WallClock)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := Acquire(ctx, root, 0, clock.WallClock); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
