// Package backup runs one backup pass over a store: build a record
// from the changes on disk, then age and compact the history.
package backup

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/keshon/codi/internal/detect"
	cfs "github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/journal"
	"github.com/keshon/codi/internal/lock"
	"github.com/keshon/codi/internal/retention"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
)

// Recorder keeps a log of runs.
type Recorder interface {
	Save(ctx context.Context, run journal.Run) error
}

type Options struct {
	Root        string
	Kind        store.Kind
	Sources     []string
	Ignore      []string
	Algorithm   string
	Workers     int
	Policy      retention.Policy
	LockTimeout time.Duration

	// Clock defaults to the wall clock.
	Clock    clock.Clock
	Logger   *slog.Logger
	Progress Progress
	// Journal, when set, receives one entry per run.
	Journal Recorder
}

// Result describes a finished run.
type Result struct {
	// Record is the id of the created record, empty when nothing changed.
	Record     string
	Skipped    bool
	Replayed   bool
	Swept      []string
	Files      int
	Tombstones int
	Touched    int
	Folders    int
	Bytes      int64
	Retention  retention.Stats
	Persisted  int
	Started    time.Time
	Finished   time.Time
}

type Engine struct {
	fsys cfs.FS
	opts Options
	log  *slog.Logger
}

func New(fsys cfs.FS, opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, errors.NotValidf("empty backup root")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{fsys: fsys, opts: opts, log: opts.Logger}, nil
}

// Backup runs a full pass under the store lock. A clock regression is
// not an error: the run is reported as skipped and nothing is touched.
func (e *Engine) Backup(ctx context.Context) (Result, error) {
	run := journal.Start("backup", e.opts.Clock.Now())
	res, err := e.backup(ctx)
	res.Started = run.Started
	res.Finished = e.opts.Clock.Now().UTC()

	if e.opts.Journal != nil {
		run.Finished = res.Finished
		run.Record = res.Record
		run.Files = res.Files
		run.Tombstones = res.Tombstones
		run.Touched = res.Touched
		run.Promotions = res.Retention.Promotions
		run.Merges = res.Retention.Merges
		run.Skipped = res.Skipped
		if err != nil {
			run.Error = err.Error()
		}
		if jerr := e.opts.Journal.Save(ctx, run); jerr != nil {
			e.log.Warn("journal run", "run", run.ID, "err", jerr)
		}
	}
	return res, err
}

func (e *Engine) backup(ctx context.Context) (Result, error) {
	var res Result
	held, err := lock.Acquire(ctx, e.opts.Root, e.opts.LockTimeout, clock.WallClock)
	if err != nil {
		return res, err
	}
	defer held.Release()

	st, err := store.New(e.fsys, e.opts.Root, e.opts.Kind)
	if err != nil {
		return res, err
	}
	if res.Swept, err = st.Sweep(); err != nil {
		return res, err
	}
	for _, name := range res.Swept {
		e.log.Info("removed leftover", "path", name)
	}

	h, err := LoadHistory(st)
	if err != nil {
		return res, err
	}
	ret := retention.New(st, e.opts.Policy, e.log)
	if res.Replayed, err = ret.Replay(ctx, h); err != nil {
		return res, errors.Annotate(err, "replay merge")
	}

	det, err := detect.New(e.fsys, detect.Options{
		Ignore:    e.opts.Ignore,
		Exclude:   []string{e.opts.Root},
		Algorithm: e.opts.Algorithm,
		Workers:   e.opts.Workers,
		Logger:    e.log,
	})
	if err != nil {
		return res, err
	}
	b := NewBuilder(e.fsys, st, det, BuilderOptions{
		Sources:   e.opts.Sources,
		Algorithm: e.opts.Algorithm,
		Workers:   e.opts.Workers,
		Logger:    e.log,
		Progress:  e.opts.Progress,
	})

	now := snapshot.Stamp(e.opts.Clock.Now())
	out, err := b.Build(ctx, h, now)
	if errors.Is(err, ErrClockRegression) {
		e.log.Warn("skipping run", "reason", err)
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if out.Record != nil {
		res.Record = out.Record.ID()
	}
	res.Files, res.Tombstones, res.Touched, res.Folders, res.Bytes =
		out.Files, out.Tombstones, out.Touched, out.Folders, out.Bytes

	if res.Retention, err = ret.Run(ctx, h, now); err != nil {
		return res, errors.Annotate(err, "retention")
	}
	if res.Persisted, err = Persist(st, h); err != nil {
		return res, err
	}
	e.log.Debug("backup done", "records", h.Len(), "promotions", res.Retention.Promotions,
		"merges", res.Retention.Merges, "persisted", res.Persisted)
	return res, nil
}
