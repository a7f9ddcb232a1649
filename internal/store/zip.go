package store

import (
	"archive/zip"
	"bytes"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/util"
)

// zipContainer is a single <root>/<id>.zip archive. Zip files cannot
// drop entries in place, so mutations are buffered (new blobs spooled
// under the staging dir) and Commit rewrites the archive, copying
// untouched entries without recompressing them.
type zipContainer struct {
	store *Local
	id    string
	fresh bool
	spool string

	file    fs.File
	entries map[string]*zip.File

	mu      sync.Mutex
	pending map[string]bool
	removed map[string]bool
	meta    []byte
	sum     string
	metaSet bool
}

func newZipContainer(s *Local, id string, fresh bool) (*zipContainer, error) {
	c := &zipContainer{store: s, id: id, fresh: fresh, spool: s.stagingDir(id)}
	c.reset()
	if !fresh {
		if err := c.load(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *zipContainer) fsys() fs.FS { return c.store.fsys }

func (c *zipContainer) reset() {
	c.entries = make(map[string]*zip.File)
	c.pending = make(map[string]bool)
	c.removed = make(map[string]bool)
	c.meta, c.sum, c.metaSet = nil, "", false
}

func (c *zipContainer) load() error {
	path := c.store.zipPath(c.id)
	info, err := c.fsys().Stat(path)
	if err != nil {
		return errors.Annotatef(err, "open container %s", c.id)
	}
	f, err := c.fsys().Open(path)
	if err != nil {
		return errors.Annotatef(err, "open container %s", c.id)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return errors.Annotatef(snapshot.ErrCorruptMetadata, "container %s: %v", c.id, err)
	}
	c.file = f
	for _, zf := range zr.File {
		c.entries[zf.Name] = zf
	}
	return nil
}

func (c *zipContainer) closeFile() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

func (c *zipContainer) ID() string { return c.id }

func (c *zipContainer) spoolPath(rel string) string {
	return filepath.Join(c.spool, filepath.FromSlash(rel))
}

func (c *zipContainer) committed(rel string) bool {
	_, ok := c.entries[rel]
	return ok && !c.removed[rel]
}

func (c *zipContainer) WriteBlob(rel string, r io.Reader) error {
	if err := writeStream(c.fsys(), c.spoolPath(rel), r); err != nil {
		return errors.Annotatef(err, "container %s", c.id)
	}
	c.mu.Lock()
	c.pending[rel] = true
	c.mu.Unlock()
	return nil
}

func (c *zipContainer) OpenBlob(rel string) (io.ReadCloser, error) {
	if c.pending[rel] {
		return c.fsys().Open(c.spoolPath(rel))
	}
	if !c.committed(rel) {
		return nil, errors.Annotatef(ErrNotFound, "blob %s in container %s", rel, c.id)
	}
	r, err := c.entries[rel].Open()
	if err != nil {
		return nil, errors.Annotatef(err, "open blob %s in container %s", rel, c.id)
	}
	return r, nil
}

func (c *zipContainer) HasBlob(rel string) bool {
	return c.pending[rel] || c.committed(rel)
}

func (c *zipContainer) RemoveBlob(rel string) error {
	found := false
	if c.pending[rel] {
		if err := c.fsys().Remove(c.spoolPath(rel)); err != nil && !c.fsys().IsNotExist(err) {
			return errors.Trace(err)
		}
		delete(c.pending, rel)
		found = true
	}
	if c.committed(rel) {
		c.removed[rel] = true
		found = true
	}
	if !found {
		return errors.Annotatef(ErrNotFound, "blob %s in container %s", rel, c.id)
	}
	return nil
}

// MoveBlob copies the blob out; the removal here only lands when this
// container commits.
func (c *zipContainer) MoveBlob(rel string, dst Container) error {
	if err := copyBlob(c, rel, dst); err != nil {
		return err
	}
	return c.RemoveBlob(rel)
}

func (c *zipContainer) Blobs() ([]string, error) {
	set := make(map[string]bool)
	for name := range c.entries {
		if c.committed(name) && name != snapshot.MetadataName && name != snapshot.ChecksumName {
			set[name] = true
		}
	}
	for rel := range c.pending {
		set[rel] = true
	}
	return util.SortedKeys(set), nil
}

func (c *zipContainer) Size() (int64, error) {
	info, err := c.fsys().Stat(c.store.zipPath(c.id))
	if err != nil {
		if c.fsys().IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Trace(err)
	}
	return info.Size(), nil
}

func (c *zipContainer) WriteMetadata(data []byte, sum string) error {
	c.meta = append([]byte(nil), data...)
	c.sum = sum
	c.metaSet = true
	return nil
}

func (c *zipContainer) ReadMetadata() ([]byte, string, error) {
	if c.metaSet {
		return c.meta, c.sum, nil
	}
	data, err := c.readEntry(snapshot.MetadataName)
	if err != nil {
		return nil, "", err
	}
	sum, err := c.readEntry(snapshot.ChecksumName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}
	return data, strings.TrimSpace(string(sum)), nil
}

func (c *zipContainer) readEntry(name string) ([]byte, error) {
	zf, ok := c.entries[name]
	if !ok {
		return nil, errors.Annotatef(ErrNotFound, "%s of container %s", name, c.id)
	}
	r, err := zf.Open()
	if err != nil {
		return nil, errors.Annotatef(err, "%s of container %s", name, c.id)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	return data, errors.Annotatef(err, "%s of container %s", name, c.id)
}

func (c *zipContainer) dirty() bool {
	return c.fresh || len(c.pending) > 0 || len(c.removed) > 0 || c.metaSet
}

// Commit rewrites the archive into a temp file and renames it over the
// committed one.
func (c *zipContainer) Commit() error {
	if !c.dirty() {
		return nil
	}
	w, tmp, err := c.fsys().CreateTempFile(c.store.root, stagingPrefix+c.id+"-*"+zipExt)
	if err != nil {
		return errors.Annotatef(err, "commit container %s", c.id)
	}
	if err := c.rewrite(w); err != nil {
		w.Close()
		_ = c.fsys().Remove(tmp)
		return errors.Annotatef(err, "commit container %s", c.id)
	}
	if err := w.Close(); err != nil {
		_ = c.fsys().Remove(tmp)
		return errors.Annotatef(err, "commit container %s", c.id)
	}
	if err := c.closeFile(); err != nil {
		return errors.Trace(err)
	}
	if err := c.fsys().Rename(tmp, c.store.zipPath(c.id)); err != nil {
		_ = c.fsys().Remove(tmp)
		return errors.Annotatef(err, "commit container %s", c.id)
	}
	if err := c.fsys().RemoveAll(c.spool); err != nil {
		return errors.Trace(err)
	}
	c.fresh = false
	c.reset()
	return c.load()
}

func (c *zipContainer) rewrite(w io.Writer) error {
	zw := zip.NewWriter(w)
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if c.removed[name] || c.pending[name] {
			continue
		}
		if c.metaSet && (name == snapshot.MetadataName || name == snapshot.ChecksumName) {
			continue
		}
		if err := zw.Copy(c.entries[name]); err != nil {
			return errors.Annotatef(err, "copy entry %s", name)
		}
	}
	for _, rel := range util.SortedKeys(c.pending) {
		if err := c.addSpooled(zw, rel); err != nil {
			return err
		}
	}
	if c.metaSet {
		if err := addBytes(zw, snapshot.MetadataName, c.meta); err != nil {
			return err
		}
		if c.sum != "" {
			if err := addBytes(zw, snapshot.ChecksumName, []byte(c.sum)); err != nil {
				return err
			}
		}
	}
	return errors.Trace(zw.Close())
}

func (c *zipContainer) addSpooled(zw *zip.Writer, rel string) error {
	p := c.spoolPath(rel)
	info, err := c.fsys().Stat(p)
	if err != nil {
		return errors.Trace(err)
	}
	f, err := c.fsys().Open(p)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	hdr := &zip.FileHeader{Name: rel, Method: zip.Deflate, Modified: info.ModTime()}
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = io.Copy(fw, f)
	return errors.Annotatef(err, "add entry %s", rel)
}

func addBytes(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = io.Copy(fw, bytes.NewReader(data))
	return errors.Trace(err)
}

// Abort drops every buffered mutation. A fresh container leaves nothing.
func (c *zipContainer) Abort() error {
	err := c.closeFile()
	if rmErr := c.fsys().RemoveAll(c.spool); rmErr != nil && err == nil {
		err = rmErr
	}
	c.reset()
	if !c.fresh {
		if loadErr := c.load(); loadErr != nil && err == nil {
			err = loadErr
		}
	}
	return errors.Trace(err)
}

func (c *zipContainer) Close() error {
	if len(c.pending) > 0 {
		_ = c.fsys().RemoveAll(c.spool)
	}
	return errors.Trace(c.closeFile())
}
