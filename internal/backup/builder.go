package backup

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/detect"
	cfs "github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/hashing"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
	"github.com/keshon/codi/internal/util"
)

// ErrClockRegression means the clock reads at or before the newest
// record. The run is skipped rather than creating an out-of-order record.
const ErrClockRegression = errors.ConstError("clock is at or before the newest record")

// Progress observes blob copies.
type Progress interface {
	Start(files int, bytes int64)
	Add(bytes int64)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int, int64) {}
func (nopProgress) Add(int64)        {}
func (nopProgress) Finish()          {}

// Builder turns the difference between the sources and the history
// into one new record.
type Builder struct {
	fsys      cfs.FS
	store     store.Store
	detector  *detect.Detector
	sources   []string
	algorithm string
	workers   int
	log       *slog.Logger
	progress  Progress
}

type BuilderOptions struct {
	Sources   []string
	Algorithm string
	Workers   int
	Logger    *slog.Logger
	Progress  Progress
}

func NewBuilder(fsys cfs.FS, st store.Store, det *detect.Detector, opts BuilderOptions) *Builder {
	if opts.Algorithm == "" {
		opts.Algorithm = hashing.DefaultAlgorithm
	}
	if opts.Workers < 1 {
		opts.Workers = util.WorkerCount()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = nopProgress{}
	}
	return &Builder{
		fsys:      fsys,
		store:     st,
		detector:  det,
		sources:   opts.Sources,
		algorithm: opts.Algorithm,
		workers:   opts.Workers,
		log:       opts.Logger,
		progress:  opts.Progress,
	}
}

// Outcome summarizes a build. Record is nil when nothing changed.
type Outcome struct {
	Record     *snapshot.Record
	Files      int
	Tombstones int
	Touched    int
	Folders    int
	Bytes      int64
	Scanned    int
}

// Build detects changes and, if there are any, commits them as a new
// record inserted into h. On error h and the store are left as they
// were.
func (b *Builder) Build(ctx context.Context, h *snapshot.History, now time.Time) (Outcome, error) {
	now = snapshot.Stamp(now)
	if newest := h.Newest(); newest != nil && !now.After(newest.Created) {
		return Outcome{}, errors.Annotatef(ErrClockRegression, "now %s, newest %s", snapshot.FormatID(now), newest.ID())
	}
	tier := snapshot.Minute
	if h.Len() == 0 {
		tier = snapshot.Base
	}
	rec := snapshot.NewRecord(now, tier)

	res, err := b.detector.Detect(ctx, b.sources, h)
	if err != nil {
		return Outcome{}, errors.Annotatef(err, "record %s: detect", rec.ID())
	}
	out := Outcome{Scanned: res.Scanned}

	state := h.Aggregate()
	for _, p := range util.SortedKeys(state.Files) {
		if state.Files[p].IsTombstone() || cfs.IsFile(b.fsys, p) {
			continue
		}
		rec.Files[p] = snapshot.Tombstone()
		out.Tombstones++
		b.log.Debug("deleted", "record", rec.ID(), "path", p)
	}
	for _, p := range util.SortedKeys(state.Folders) {
		if state.Folders[p] && !b.fsys.IsDir(p) {
			rec.Folders[p] = false
			out.Folders++
		}
	}
	for _, p := range res.Folders {
		rec.Folders[p] = true
		out.Folders++
	}

	if len(res.Files) > 0 {
		bytes, err := b.copyFiles(ctx, rec, res.Files)
		if err != nil {
			return Outcome{}, err
		}
		out.Files = len(res.Files)
		out.Bytes = bytes
	} else if !rec.Empty() {
		if err := b.commit(rec, nil); err != nil {
			return Outcome{}, err
		}
	}

	for _, t := range res.Touched {
		e := t.Owner.Files[t.Path]
		e.LastModified = t.ModTime
		t.Owner.Files[t.Path] = e
		t.Owner.MarkDirty()
	}
	out.Touched = len(res.Touched)

	if rec.Empty() {
		b.log.Debug("nothing changed", "scanned", res.Scanned)
		return out, nil
	}
	h.Insert(rec)
	out.Record = rec
	b.log.Info("record created", "record", rec.ID(), "tier", rec.Tier.String(),
		"files", out.Files, "tombstones", out.Tombstones, "folders", out.Folders)
	return out, nil
}

// copyFiles stages every change in a fresh container and commits it
// with rec's metadata. The stored hash is the hash of the bytes copied.
func (b *Builder) copyFiles(ctx context.Context, rec *snapshot.Record, changes []detect.Change) (int64, error) {
	c, err := b.store.Create(rec.ID())
	if err != nil {
		return 0, errors.Annotatef(err, "record %s", rec.ID())
	}

	var total int64
	for _, ch := range changes {
		total += ch.Size
	}
	b.progress.Start(len(changes), total)
	defer b.progress.Finish()

	entries := make([]snapshot.FileEntry, len(changes))
	idx := make([]int, len(changes))
	for i := range idx {
		idx[i] = i
	}
	var copied atomic.Int64
	err = util.Parallel(idx, b.workers, func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ch := changes[i]
		hash, n, err := b.copyOne(c, ch.Path)
		if err != nil {
			return errors.Annotatef(err, "record %s: copy %s", rec.ID(), ch.Path)
		}
		entries[i] = snapshot.FileEntry{Hash: hash, LastModified: ch.ModTime}
		copied.Add(n)
		b.progress.Add(n)
		return nil
	})
	if err != nil {
		if aerr := c.Abort(); aerr != nil {
			b.log.Warn("abort staged record", "record", rec.ID(), "err", aerr)
		}
		c.Close()
		return 0, errors.Trace(err)
	}
	for i, ch := range changes {
		rec.Files[ch.Path] = entries[i]
	}
	if err := b.commit(rec, c); err != nil {
		return 0, err
	}
	return copied.Load(), nil
}

func (b *Builder) copyOne(c store.Container, path string) (string, int64, error) {
	f, err := b.fsys.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	tee, err := hashing.NewTee(b.algorithm, f)
	if err != nil {
		return "", 0, err
	}
	counter := &countingReader{r: tee}
	if err := c.WriteBlob(store.BlobPath(path), counter); err != nil {
		return "", 0, err
	}
	return tee.Sum(), counter.n, nil
}

// commit writes rec's metadata into c (created here when nil) and makes
// the container visible.
func (b *Builder) commit(rec *snapshot.Record, c store.Container) error {
	if c == nil {
		var err error
		if c, err = b.store.Create(rec.ID()); err != nil {
			return errors.Annotatef(err, "record %s", rec.ID())
		}
	}
	defer c.Close()
	data, sum, err := snapshot.Encode(rec)
	if err == nil {
		err = c.WriteMetadata(data, sum)
	}
	if err == nil {
		err = c.Commit()
	}
	if err != nil {
		if aerr := c.Abort(); aerr != nil {
			b.log.Warn("abort staged record", "record", rec.ID(), "err", aerr)
		}
		return errors.Annotatef(err, "record %s: commit", rec.ID())
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
