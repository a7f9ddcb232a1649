// Package fs abstracts the filesystem operations used by the change
// detector, the snapshot store and the materializer, so they can run
// against the real disk or an in-memory tree in tests.
package fs

import (
	"io"
	"os"
	"time"
)

// File is a readable, seekable handle with random access.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// FS abstracts filesystem operations.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (io.WriteCloser, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	RemoveAll(path string) error
	Rename(oldPath, newPath string) error
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.DirEntry, error)
	CreateTempFile(dir, pattern string) (io.WriteCloser, string, error)
	Chtimes(path string, mtime time.Time) error
	IsNotExist(err error) bool
	Exists(path string) bool
	IsDir(path string) bool
}

// IsFile reports whether path exists and is a regular file.
func IsFile(fsys FS, path string) bool {
	fi, err := fsys.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
