package resolve

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/store"
	"github.com/keshon/codi/internal/util"
)

// Opener opens containers for reading.
type Opener interface {
	Open(id string) (store.Container, error)
}

type Materializer struct {
	fsys    fs.FS
	store   Opener
	workers int
	log     *slog.Logger
}

func NewMaterializer(fsys fs.FS, s Opener, workers int, log *slog.Logger) *Materializer {
	if workers < 1 {
		workers = util.WorkerCount()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Materializer{fsys: fsys, store: s, workers: workers, log: log}
}

type Options struct {
	// Prefix limits the restore to a path and everything below it.
	Prefix string
	// Target relocates the tree below another dir instead of the
	// original locations.
	Target string
	DryRun bool
}

type Report struct {
	Files   int
	Folders int
	Skipped int
	Paths   []string
}

// Recover writes every selected file of the view back to disk through a
// temp file and rename, restoring its modification time, and recreates
// the selected folders.
func (m *Materializer) Recover(ctx context.Context, v *View, opts Options) (Report, error) {
	var rep Report
	var files []string
	for _, p := range v.Paths() {
		if !Under(p, opts.Prefix) {
			continue
		}
		if v.Files[p].Absent {
			rep.Skipped++
			continue
		}
		files = append(files, p)
	}

	for _, dir := range v.Folders {
		if !Under(dir, opts.Prefix) {
			continue
		}
		rep.Folders++
		if opts.DryRun {
			continue
		}
		if err := m.fsys.MkdirAll(m.destination(dir, opts.Target), 0o755); err != nil {
			return rep, errors.Annotatef(err, "recreate folder %s", dir)
		}
	}

	rep.Paths = files
	rep.Files = len(files)
	if opts.DryRun {
		return rep, nil
	}

	cache := &containers{store: m.store, open: make(map[string]store.Container)}
	defer cache.closeAll()

	err := util.Parallel(files, m.workers, func(p string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return m.restore(cache, p, v.Files[p], m.destination(p, opts.Target))
	})
	return rep, errors.Trace(err)
}

func (m *Materializer) destination(path, target string) string {
	if target == "" {
		return path
	}
	return filepath.Join(target, filepath.FromSlash(store.RelPath(path)))
}

func (m *Materializer) restore(cache *containers, path string, loc Location, dst string) error {
	c, err := cache.get(loc.Record)
	if err != nil {
		return errors.Annotatef(err, "restore %s", path)
	}
	r, err := c.OpenBlob(loc.Blob)
	if err != nil {
		return errors.Annotatef(err, "restore %s from %s", path, loc.Record)
	}
	defer r.Close()
	if err := m.write(dst, r); err != nil {
		return errors.Annotatef(err, "restore %s", path)
	}
	if !loc.LastModified.IsZero() {
		if err := m.fsys.Chtimes(dst, loc.LastModified); err != nil {
			return errors.Annotatef(err, "restore mtime of %s", path)
		}
	}
	m.log.Debug("restored", "path", path, "record", loc.Record)
	return nil
}

func (m *Materializer) write(dst string, r io.Reader) error {
	dir := filepath.Dir(dst)
	if err := m.fsys.MkdirAll(dir, 0o755); err != nil {
		return errors.Trace(err)
	}
	w, tmp, err := m.fsys.CreateTempFile(dir, ".codi-restore-*")
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		_ = m.fsys.Remove(tmp)
		return errors.Trace(err)
	}
	if err := w.Close(); err != nil {
		_ = m.fsys.Remove(tmp)
		return errors.Trace(err)
	}
	if err := m.fsys.Rename(tmp, dst); err != nil {
		_ = m.fsys.Remove(tmp)
		return errors.Trace(err)
	}
	return nil
}

// containers shares opened containers between restore workers.
type containers struct {
	store Opener
	mu    sync.Mutex
	open  map[string]store.Container
}

func (c *containers) get(id string) (store.Container, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.open[id]; ok {
		return ct, nil
	}
	ct, err := c.store.Open(id)
	if err != nil {
		return nil, err
	}
	c.open[id] = ct
	return ct, nil
}

func (c *containers) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ct := range c.open {
		ct.Close()
	}
}
