// Package detect walks the configured sources and compares what it finds
// against the newest known state in the history.
package detect

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"

	cfs "github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/hashing"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/util"
)

// Change is a file whose content is new or differs from the newest
// recorded entry.
type Change struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Touch is a file whose modification time moved but whose content
// still matches Owner's entry.
type Touch struct {
	Path    string
	ModTime time.Time
	Owner   *snapshot.Record
}

// Result is the outcome of one walk.
type Result struct {
	Files   []Change
	Touched []Touch
	// Folders became present and are not known present in the history.
	Folders []string
	Scanned int
}

type Options struct {
	Ignore    []string
	// Exclude lists absolute trees never walked, such as the backup
	// destination when it lies inside a source.
	Exclude   []string
	Algorithm string
	Workers   int
	Logger    *slog.Logger
}

type Detector struct {
	fsys      cfs.FS
	ignore    *Matcher
	exclude   []string
	algorithm string
	workers   int
	log       *slog.Logger
}

func New(fsys cfs.FS, opts Options) (*Detector, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = hashing.DefaultAlgorithm
	}
	if !hashing.Supported(opts.Algorithm) {
		return nil, errors.NotSupportedf("hash algorithm %q", opts.Algorithm)
	}
	if opts.Workers < 1 {
		opts.Workers = util.WorkerCount()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	exclude := make([]string, 0, len(opts.Exclude))
	for _, p := range opts.Exclude {
		if p != "" {
			exclude = append(exclude, filepath.Clean(p))
		}
	}
	return &Detector{
		fsys:      fsys,
		ignore:    NewMatcher(opts.Ignore),
		exclude:   exclude,
		algorithm: opts.Algorithm,
		workers:   opts.Workers,
		log:       opts.Logger,
	}, nil
}

// Ignored reports whether path is left out, by pattern or because it
// lies in an excluded tree.
func (d *Detector) Ignored(path string) bool {
	path = filepath.Clean(path)
	for _, ex := range d.exclude {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return d.ignore.Match(path)
}

type candidate struct {
	path  string
	mtime time.Time
	size  int64
	prior snapshot.FileEntry
	owner *snapshot.Record
	hash  string
}

// Detect walks roots depth-first with an explicit stack. Symlinks are
// not followed. Unchanged files (same mtime) are never hashed.
func (d *Detector) Detect(ctx context.Context, roots []string, h *snapshot.History) (*Result, error) {
	res := &Result{}
	folders := make(map[string]bool)
	var toHash []*candidate

	visitFile := func(path string, info fs.FileInfo) {
		res.Scanned++
		mtime := snapshot.Stamp(info.ModTime())
		c := &candidate{path: path, mtime: mtime, size: info.Size()}
		prior, owner, ok := h.LatestFile(path)
		if !ok || prior.IsTombstone() {
			res.Files = append(res.Files, Change{Path: path, ModTime: mtime, Size: c.size})
			return
		}
		if prior.LastModified.Equal(mtime) {
			return
		}
		c.prior, c.owner = prior, owner
		toHash = append(toHash, c)
	}

	var stack []string
	for _, root := range roots {
		root = filepath.Clean(root)
		if d.Ignored(root) {
			d.log.Debug("source ignored", "path", root)
			continue
		}
		info, err := d.fsys.Stat(root)
		if err != nil {
			if d.fsys.IsNotExist(err) {
				d.log.Warn("source missing", "path", root)
				continue
			}
			return nil, errors.Annotatef(err, "stat source %s", root)
		}
		switch {
		case info.IsDir():
			stack = append(stack, root)
		case info.Mode().IsRegular():
			visitFile(root, info)
		}
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		markFolder(dir, h, folders)

		entries, err := d.fsys.ReadDir(dir)
		if err != nil {
			return nil, errors.Annotatef(err, "read dir %s", dir)
		}
		var subdirs []string
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if e.Type()&fs.ModeSymlink != 0 || d.Ignored(path) {
				continue
			}
			if e.IsDir() {
				subdirs = append(subdirs, path)
				continue
			}
			info, err := e.Info()
			if err != nil {
				return nil, errors.Annotatef(err, "stat %s", path)
			}
			if info.Mode().IsRegular() {
				visitFile(path, info)
			}
		}
		// pushed in reverse so they pop in lexical order
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	err := util.Parallel(toHash, d.workers, func(c *candidate) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum, err := hashing.File(d.fsys, d.algorithm, c.path)
		if err != nil {
			return errors.Annotatef(err, "hash %s", c.path)
		}
		c.hash = sum
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, c := range toHash {
		if c.hash == c.prior.Hash {
			res.Touched = append(res.Touched, Touch{Path: c.path, ModTime: c.mtime, Owner: c.owner})
			continue
		}
		res.Files = append(res.Files, Change{Path: c.path, ModTime: c.mtime, Size: c.size})
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	res.Folders = util.SortedKeys(folders)
	return res, nil
}

// markFolder records dir and its ancestors as present, walking upward
// until an ancestor already known present is met.
func markFolder(dir string, h *snapshot.History, seen map[string]bool) {
	for cur := dir; ; {
		if seen[cur] {
			return
		}
		if present, known := h.LatestFolder(cur); known && present {
			return
		}
		seen[cur] = true
		parent := filepath.Dir(cur)
		if parent == cur {
			return
		}
		cur = parent
	}
}
