// Package store keeps snapshot containers under a backup root. A
// container is either a plain directory or a zip archive; both hold
// blobs addressed by a relative path plus the record metadata.
package store

import (
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/snapshot"
)

const (
	ErrNotFound       = errors.ConstError("not found")
	ErrStaleReference = errors.ConstError("stale blob reference")
)

// Kind selects the physical layout of new containers.
type Kind string

const (
	Dir Kind = "dir"
	Zip Kind = "zip"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", Dir:
		return Dir, nil
	case Zip:
		return Zip, nil
	}
	return "", errors.NotValidf("container kind %q", s)
}

const (
	stagingPrefix = ".tmp-"
	zipExt        = ".zip"
)

// Store is the set of containers of one backup root.
type Store interface {
	Root() string
	List() ([]string, error)
	Create(id string) (Container, error)
	Open(id string) (Container, error)
	Delete(id string) error
}

// Container holds one record's blobs and metadata. Mutations of an
// existing container become durable on Commit. WriteBlob may be called
// concurrently for distinct paths; everything else is single-caller.
type Container interface {
	ID() string
	WriteBlob(rel string, r io.Reader) error
	OpenBlob(rel string) (io.ReadCloser, error)
	HasBlob(rel string) bool
	RemoveBlob(rel string) error
	MoveBlob(rel string, dst Container) error
	Blobs() ([]string, error)
	WriteMetadata(data []byte, sum string) error
	ReadMetadata() (data []byte, sum string, err error)
	Size() (int64, error)
	Commit() error
	Abort() error
	Close() error
}

// RelPath is abs relative to the filesystem root: the volume is dropped
// along with the leading separator.
func RelPath(abs string) string {
	p := strings.TrimPrefix(abs, filepath.VolumeName(abs))
	p = filepath.ToSlash(p)
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// escapeMark prefixes a top-level blob name that would clash with the
// record metadata. Names already starting with it are marked too.
const escapeMark = "%"

// BlobPath maps an absolute source path to its location in a container.
// A source file at /state.json is stored as %state.json.
func BlobPath(abs string) string {
	rel := RelPath(abs)
	top, _, _ := strings.Cut(rel, "/")
	if top == snapshot.MetadataName || top == snapshot.ChecksumName || strings.HasPrefix(top, escapeMark) {
		return escapeMark + rel
	}
	return rel
}

// Local is a Store on a filesystem root.
type Local struct {
	fsys fs.FS
	root string
	kind Kind
}

// New opens (creating if needed) the backup root. New containers use kind;
// existing containers of either kind are readable.
func New(fsys fs.FS, root string, kind Kind) (*Local, error) {
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Annotatef(err, "create store root %s", root)
	}
	return &Local{fsys: fsys, root: root, kind: kind}, nil
}

func (s *Local) Root() string { return s.root }
func (s *Local) Kind() Kind   { return s.kind }

// List returns the committed container ids, oldest first.
func (s *Local) List() ([]string, error) {
	entries, err := s.fsys.ReadDir(s.root)
	if err != nil {
		return nil, errors.Annotatef(err, "list %s", s.root)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		name := e.Name()
		id := name
		if !e.IsDir() {
			id = strings.TrimSuffix(name, zipExt)
			if id == name {
				continue
			}
		}
		if _, err := snapshot.ParseID(id); err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Create stages a new container. Nothing is visible to List until Commit.
func (s *Local) Create(id string) (Container, error) {
	if s.exists(id) {
		return nil, errors.AlreadyExistsf("container %s", id)
	}
	staging := s.stagingDir(id)
	if err := s.fsys.RemoveAll(staging); err != nil {
		return nil, errors.Trace(err)
	}
	if err := s.fsys.MkdirAll(staging, 0o755); err != nil {
		return nil, errors.Annotatef(err, "stage %s", id)
	}
	if s.kind == Zip {
		return newZipContainer(s, id, true)
	}
	return &dirContainer{store: s, id: id, dir: staging, fresh: true}, nil
}

func (s *Local) Open(id string) (Container, error) {
	switch {
	case s.fsys.IsDir(s.dirPath(id)):
		return &dirContainer{store: s, id: id, dir: s.dirPath(id)}, nil
	case fs.IsFile(s.fsys, s.zipPath(id)):
		return newZipContainer(s, id, false)
	}
	return nil, errors.Annotatef(ErrNotFound, "container %s", id)
}

// Delete removes a committed container. It is first renamed into the
// staging namespace so a crash never leaves a half-deleted container
// behind under its real name.
func (s *Local) Delete(id string) error {
	found := false
	for _, p := range []string{s.dirPath(id), s.zipPath(id)} {
		if !s.fsys.Exists(p) {
			continue
		}
		found = true
		trash := filepath.Join(s.root, stagingPrefix+"del-"+filepath.Base(p))
		if err := s.fsys.Rename(p, trash); err != nil {
			return errors.Annotatef(err, "delete container %s", id)
		}
		if err := s.fsys.RemoveAll(trash); err != nil {
			return errors.Annotatef(err, "delete container %s", id)
		}
	}
	if !found {
		return errors.Annotatef(ErrNotFound, "container %s", id)
	}
	return nil
}

// Sweep removes staging leftovers of interrupted runs. Callers must
// hold the store lock.
func (s *Local) Sweep() ([]string, error) {
	entries, err := s.fsys.ReadDir(s.root)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var removed []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		p := filepath.Join(s.root, e.Name())
		if err := s.fsys.RemoveAll(p); err != nil {
			return removed, errors.Annotatef(err, "sweep %s", p)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

func (s *Local) exists(id string) bool {
	return s.fsys.Exists(s.dirPath(id)) || s.fsys.Exists(s.zipPath(id))
}

func (s *Local) dirPath(id string) string    { return filepath.Join(s.root, id) }
func (s *Local) zipPath(id string) string    { return filepath.Join(s.root, id+zipExt) }
func (s *Local) stagingDir(id string) string { return filepath.Join(s.root, stagingPrefix+id) }

// writeStream copies r into dst through a temp file in the same dir.
func writeStream(fsys fs.FS, dst string, r io.Reader) error {
	dir := filepath.Dir(dst)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return errors.Annotatef(err, "mkdir %s", dir)
	}
	w, tmp, err := fsys.CreateTempFile(dir, stagingPrefix+"*")
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		_ = fsys.Remove(tmp)
		return errors.Annotatef(err, "write %s", dst)
	}
	if err := w.Close(); err != nil {
		_ = fsys.Remove(tmp)
		return errors.Trace(err)
	}
	if err := fsys.Rename(tmp, dst); err != nil {
		_ = fsys.Remove(tmp)
		return errors.Annotatef(err, "write %s", dst)
	}
	return nil
}

// copyBlob copies a blob between containers of different kinds. The
// caller decides when the source copy goes away.
func copyBlob(src Container, rel string, dst Container) error {
	r, err := src.OpenBlob(rel)
	if err != nil {
		return err
	}
	defer r.Close()
	return dst.WriteBlob(rel, r)
}
