// Package watch triggers backup runs from a cron schedule and, when
// enabled, from filesystem events under the sources. Triggers go through
// a single-slot mailbox so a burst of events yields one run.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/robfig/cron/v3"

	"github.com/keshon/codi/internal/mailbox"
)

// Reasons passed to RunFunc.
const (
	ReasonStart    = "start"
	ReasonSchedule = "schedule"
	ReasonChange   = "change"
)

// RunFunc performs one backup. Errors are logged and the loop goes on.
type RunFunc func(ctx context.Context, reason string) error

type Options struct {
	Schedule string
	Sources  []string
	WatchFS  bool
	Debounce time.Duration
	// Ignore reports paths whose events never trigger a run.
	Ignore func(path string) bool

	Clock  clock.Clock
	Logger *slog.Logger
}

type Watcher struct {
	opts     Options
	schedule cron.Schedule
	run      RunFunc
	mb       *mailbox.Mailbox[string]
	log      *slog.Logger

	mu    sync.Mutex
	timer clock.Timer
}

func New(opts Options, run RunFunc) (*Watcher, error) {
	sched, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, errors.NotValidf("schedule %q: %v", opts.Schedule, err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Ignore == nil {
		opts.Ignore = func(string) bool { return false }
	}
	return &Watcher{
		opts:     opts,
		schedule: sched,
		run:      run,
		mb:       mailbox.New[string](),
		log:      opts.Logger,
	}, nil
}

// Next returns the next scheduled instant after t.
func (w *Watcher) Next(t time.Time) time.Time { return w.schedule.Next(t) }

// Trigger asks for a run. A trigger arriving while one is already
// pending replaces it.
func (w *Watcher) Trigger(reason string) { w.mb.Put(reason) }

// Run performs an initial backup, then serves triggers until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	c := cron.New()
	c.Schedule(w.schedule, cron.FuncJob(func() { w.Trigger(ReasonSchedule) }))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	if w.opts.WatchFS {
		fw, err := w.startNotify(ctx)
		if err != nil {
			return err
		}
		defer fw.Close()
	}
	defer w.stopTimer()

	w.Trigger(ReasonStart)
	w.log.Info("watching", "schedule", w.opts.Schedule, "next", w.Next(w.opts.Clock.Now()), "fs", w.opts.WatchFS)
	for {
		reason, err := w.mb.Take(ctx)
		if err != nil {
			return nil
		}
		w.log.Debug("run triggered", "reason", reason)
		if err := w.run(ctx, reason); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("backup failed", "reason", reason, "err", err)
		}
	}
}

// Changed records a filesystem change at path and (re)arms the debounce
// timer. The run is triggered once no change arrived for Debounce.
func (w *Watcher) Changed(path string) {
	if w.opts.Ignore(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.opts.Debounce)
		return
	}
	w.timer = w.opts.Clock.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()
		w.Trigger(ReasonChange)
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// startNotify watches every directory under the sources. fsnotify is
// not recursive, so directories created later are added as they appear.
func (w *Watcher) startNotify(ctx context.Context) (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Annotate(err, "fsnotify")
	}
	for _, src := range w.opts.Sources {
		if err := w.addTree(fw, src); err != nil {
			fw.Close()
			return nil, err
		}
	}
	go w.loop(ctx, fw)
	return fw, nil
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("watch skip", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.opts.Ignore(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return errors.Annotatef(err, "watch %s", path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.log.Debug("event", "name", ev.Name, "op", ev.Op)
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.log.Warn("watch new folder", "path", ev.Name, "err", err)
					}
				}
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			w.Changed(ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Error("fsnotify error", "err", err)
		}
	}
}
