package store

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/util"
)

// dirContainer stores blobs as plain files under <root>/<id>/. A fresh
// container lives in the staging dir until Commit renames it.
type dirContainer struct {
	store *Local
	id    string
	dir   string
	fresh bool
	done  bool
	// moved holds blobs copied into a container of another kind. They
	// read as gone but stay on disk until Commit.
	moved map[string]bool
}

func (c *dirContainer) ID() string { return c.id }

func (c *dirContainer) fsys() fs.FS { return c.store.fsys }

func (c *dirContainer) blobPath(rel string) string {
	return filepath.Join(c.dir, filepath.FromSlash(rel))
}

func (c *dirContainer) WriteBlob(rel string, r io.Reader) error {
	return errors.Annotatef(writeStream(c.fsys(), c.blobPath(rel), r), "container %s", c.id)
}

func (c *dirContainer) OpenBlob(rel string) (io.ReadCloser, error) {
	if c.moved[rel] {
		return nil, errors.Annotatef(ErrNotFound, "blob %s in container %s", rel, c.id)
	}
	f, err := c.fsys().Open(c.blobPath(rel))
	if err != nil {
		if c.fsys().IsNotExist(err) {
			return nil, errors.Annotatef(ErrNotFound, "blob %s in container %s", rel, c.id)
		}
		return nil, errors.Annotatef(err, "open blob %s in container %s", rel, c.id)
	}
	return f, nil
}

func (c *dirContainer) HasBlob(rel string) bool {
	return !c.moved[rel] && fs.IsFile(c.fsys(), c.blobPath(rel))
}

// RemoveBlob deletes the blob and prunes ancestor dirs left empty, up
// to the container root.
func (c *dirContainer) RemoveBlob(rel string) error {
	if c.moved[rel] {
		return errors.Annotatef(ErrNotFound, "blob %s in container %s", rel, c.id)
	}
	p := c.blobPath(rel)
	if err := c.fsys().Remove(p); err != nil {
		if c.fsys().IsNotExist(err) {
			return errors.Annotatef(ErrNotFound, "blob %s in container %s", rel, c.id)
		}
		return errors.Annotatef(err, "remove blob %s in container %s", rel, c.id)
	}
	return c.prune(filepath.Dir(p))
}

func (c *dirContainer) prune(dir string) error {
	root := filepath.Clean(c.dir)
	for dir = filepath.Clean(dir); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		entries, err := c.fsys().ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return nil
		}
		if err := c.fsys().Remove(dir); err != nil {
			return errors.Annotatef(err, "prune %s", dir)
		}
	}
	return nil
}

// MoveBlob renames the file when both sides are directory containers.
// Into a zip the blob is copied and only hidden here, since the zip
// holds it in its spool until it commits.
func (c *dirContainer) MoveBlob(rel string, dst Container) error {
	d, ok := dst.(*dirContainer)
	if !ok {
		if err := copyBlob(c, rel, dst); err != nil {
			return err
		}
		if c.moved == nil {
			c.moved = make(map[string]bool)
		}
		c.moved[rel] = true
		return nil
	}
	src, target := c.blobPath(rel), d.blobPath(rel)
	if !c.HasBlob(rel) {
		return errors.Annotatef(ErrNotFound, "blob %s in container %s", rel, c.id)
	}
	if err := c.fsys().MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Trace(err)
	}
	if err := c.fsys().Rename(src, target); err != nil {
		return errors.Annotatef(err, "move blob %s from %s to %s", rel, c.id, d.id)
	}
	return c.prune(filepath.Dir(src))
}

// Blobs lists every stored blob, sorted.
func (c *dirContainer) Blobs() ([]string, error) {
	var out []string
	err := c.walk(func(rel string, _ int64) {
		if rel == snapshot.MetadataName || rel == snapshot.ChecksumName || c.moved[rel] {
			return
		}
		out = append(out, rel)
	})
	sort.Strings(out)
	return out, err
}

func (c *dirContainer) Size() (int64, error) {
	var total int64
	err := c.walk(func(_ string, n int64) { total += n })
	return total, err
}

// walk visits files with an explicit stack.
func (c *dirContainer) walk(fn func(rel string, size int64)) error {
	stack := []string{""}
	for len(stack) > 0 {
		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := c.fsys().ReadDir(filepath.Join(c.dir, filepath.FromSlash(rel)))
		if err != nil {
			return errors.Annotatef(err, "walk container %s", c.id)
		}
		for _, e := range entries {
			child := e.Name()
			if rel != "" {
				child = rel + "/" + child
			}
			if e.IsDir() {
				stack = append(stack, child)
				continue
			}
			if strings.HasPrefix(e.Name(), stagingPrefix) {
				continue
			}
			var size int64
			if info, err := e.Info(); err == nil {
				size = info.Size()
			}
			fn(child, size)
		}
	}
	return nil
}

// WriteMetadata drops the old checksum before replacing state.json, so
// an interruption leaves metadata that is read as unchecked rather than
// mismatched.
func (c *dirContainer) WriteMetadata(data []byte, sum string) error {
	sumPath := filepath.Join(c.dir, snapshot.ChecksumName)
	if err := c.fsys().Remove(sumPath); err != nil && !c.fsys().IsNotExist(err) {
		return errors.Annotatef(err, "container %s", c.id)
	}
	if err := writeStream(c.fsys(), filepath.Join(c.dir, snapshot.MetadataName), strings.NewReader(string(data))); err != nil {
		return errors.Annotatef(err, "container %s", c.id)
	}
	if sum == "" {
		return nil
	}
	return errors.Annotatef(writeStream(c.fsys(), sumPath, strings.NewReader(sum)), "container %s", c.id)
}

func (c *dirContainer) ReadMetadata() ([]byte, string, error) {
	data, err := c.fsys().ReadFile(filepath.Join(c.dir, snapshot.MetadataName))
	if err != nil {
		if c.fsys().IsNotExist(err) {
			return nil, "", errors.Annotatef(ErrNotFound, "metadata of container %s", c.id)
		}
		return nil, "", errors.Annotatef(err, "metadata of container %s", c.id)
	}
	sum, err := c.fsys().ReadFile(filepath.Join(c.dir, snapshot.ChecksumName))
	if err != nil && !c.fsys().IsNotExist(err) {
		return nil, "", errors.Annotatef(err, "checksum of container %s", c.id)
	}
	return data, strings.TrimSpace(string(sum)), nil
}

// Commit publishes a fresh container. Writes to an existing one are
// already in place; blobs moved out are deleted now.
func (c *dirContainer) Commit() error {
	for _, rel := range util.SortedKeys(c.moved) {
		delete(c.moved, rel)
		if err := c.RemoveBlob(rel); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if !c.fresh || c.done {
		return nil
	}
	final := c.store.dirPath(c.id)
	if err := c.fsys().Rename(c.dir, final); err != nil {
		return errors.Annotatef(err, "commit container %s", c.id)
	}
	c.dir = final
	c.done = true
	return nil
}

// Abort discards a fresh container. It is a no-op for existing ones.
func (c *dirContainer) Abort() error {
	if !c.fresh || c.done {
		return nil
	}
	c.done = true
	return errors.Annotatef(c.fsys().RemoveAll(c.dir), "abort container %s", c.id)
}

func (c *dirContainer) Close() error { return nil }
