package fs

import (
	"io"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"golang.org/x/exp/mmap"
)

const (
	retryAttempts = 5
	retryDelay    = 50 * time.Millisecond
)

// OSFS is a production implementation of FS using the standard library.
// Reads go through a memory-mapped view of the file; renames and removals
// are retried on transient errors.
type OSFS struct {
	Clock clock.Clock
}

func NewOSFS() *OSFS {
	return &OSFS{Clock: clock.WallClock}
}

// mappedFile adapts an mmap view to File.
type mappedFile struct {
	*io.SectionReader
	r *mmap.ReaderAt
}

func (m *mappedFile) Close() error { return m.r.Close() }

func (r *OSFS) Open(path string) (File, error) {
	if m, err := mmap.Open(path); err == nil {
		return &mappedFile{SectionReader: io.NewSectionReader(m, 0, int64(m.Len())), r: m}, nil
	}
	// Files that cannot be mapped (pipes, some network mounts) are read
	// through a plain descriptor.
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *OSFS) Create(path string) (io.WriteCloser, error) {
	f, err := create(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *OSFS) Stat(path string) (os.FileInfo, error) {
	return stat(path)
}

func (r *OSFS) ReadFile(path string) ([]byte, error) {
	return readFile(path)
}

func (r *OSFS) ReadDir(path string) ([]os.DirEntry, error) {
	return readDir(path)
}

func (r *OSFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	return writeFile(path, data, perm)
}

func (r *OSFS) MkdirAll(path string, perm os.FileMode) error {
	return mkdirAll(path, perm)
}

func (r *OSFS) Remove(path string) error {
	return r.withRetry(func() error { return remove(path) })
}

func (r *OSFS) RemoveAll(path string) error {
	return r.withRetry(func() error { return removeAll(path) })
}

func (r *OSFS) Rename(oldPath, newPath string) error {
	return r.withRetry(func() error { return rename(oldPath, newPath) })
}

func (r *OSFS) CreateTempFile(dir, pattern string) (io.WriteCloser, string, error) {
	f, err := createTemp(dir, pattern)
	if err != nil {
		return nil, "", err
	}
	return f, f.Name(), nil
}

func (r *OSFS) Chtimes(path string, mtime time.Time) error {
	return chtimes(path, mtime)
}

func (r *OSFS) IsNotExist(err error) bool {
	return isNotExist(err)
}

func (r *OSFS) IsDir(path string) bool {
	return isDir(path)
}

func (r *OSFS) Exists(path string) bool {
	return exists(path)
}

func (r *OSFS) withRetry(fn func() error) error {
	clk := r.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	err := retry.Call(retry.CallArgs{
		Func:         fn,
		IsFatalError: func(err error) bool { return !isTransient(err) },
		Attempts:     retryAttempts,
		Delay:        retryDelay,
		BackoffFunc:  retry.DoubleDelay,
		Clock:        clk,
	})
	// Callers match on *os.PathError, so strip the retry wrapping.
	return errors.Cause(retry.LastError(err))
}
