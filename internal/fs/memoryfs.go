package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryFS is a pure in-memory filesystem for tests or lightweight storage.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string]*memFile
	dirs  map[string]time.Time
	seq   int

	// Now stamps modification times of writes. Defaults to time.Now.
	Now func() time.Time
}

type memFile struct {
	data  []byte
	mtime time.Time
}

func NewMemoryFS() *MemoryFS {
	f := &MemoryFS{
		files: make(map[string]*memFile),
		dirs:  make(map[string]time.Time),
		Now:   time.Now,
	}
	f.dirs["/"] = time.Time{}
	f.dirs["."] = time.Time{}
	return f
}

// normalize paths
func clean(p string) string {
	if p == "" {
		return "."
	}
	return path.Clean(filepath.ToSlash(p))
}

func (f *MemoryFS) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

func (f *MemoryFS) ensureDirExists(p string) error {
	if _, ok := f.dirs[p]; !ok {
		return fs.ErrNotExist
	}
	return nil
}

func pathErr(op, p string, err error) error {
	return &fs.PathError{Op: op, Path: p, Err: err}
}

// FS Interface Implementation

func (f *MemoryFS) Open(p string) (File, error) {
	p = clean(p)
	f.mu.RLock()
	defer f.mu.RUnlock()
	mf, ok := f.files[p]
	if !ok {
		return nil, pathErr("open", p, fs.ErrNotExist)
	}
	return &memReadSeekCloser{Reader: bytes.NewReader(mf.data)}, nil
}

type memReadSeekCloser struct {
	*bytes.Reader
}

func (m *memReadSeekCloser) Close() error { return nil }

func (f *MemoryFS) Create(p string) (io.WriteCloser, error) {
	p = clean(p)
	f.mu.RLock()
	err := f.ensureDirExists(path.Dir(p))
	f.mu.RUnlock()
	if err != nil {
		return nil, pathErr("create", p, err)
	}
	buf := &bytes.Buffer{}
	return &memWriteCloser{
		buf: buf,
		onClose: func() {
			f.mu.Lock()
			f.files[p] = &memFile{data: buf.Bytes(), mtime: f.now()}
			f.mu.Unlock()
		},
	}, nil
}

func (f *MemoryFS) ReadFile(p string) ([]byte, error) {
	p = clean(p)
	f.mu.RLock()
	defer f.mu.RUnlock()
	mf, ok := f.files[p]
	if !ok {
		return nil, pathErr("read", p, fs.ErrNotExist)
	}
	return append([]byte(nil), mf.data...), nil
}

func (f *MemoryFS) WriteFile(p string, data []byte, perm os.FileMode) error {
	p = clean(p)
	f.mu.Lock()
	defer f.mu.Unlock()
	dir := path.Dir(p)
	if err := f.ensureDirExists(dir); err != nil {
		return fmt.Errorf("write: dir %q does not exist", dir)
	}
	if _, ok := f.dirs[p]; ok {
		return pathErr("write", p, errors.New("is a directory"))
	}
	f.files[p] = &memFile{data: append([]byte(nil), data...), mtime: f.now()}
	return nil
}

func (f *MemoryFS) MkdirAll(p string, perm os.FileMode) error {
	p = clean(p)
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := "."
	if strings.HasPrefix(p, "/") {
		cur = "/"
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}
		cur = path.Join(cur, seg)
		if _, ok := f.files[cur]; ok {
			return pathErr("mkdir", cur, errors.New("not a directory"))
		}
		if _, ok := f.dirs[cur]; !ok {
			f.dirs[cur] = f.now()
		}
	}
	return nil
}

func (f *MemoryFS) hasChildren(p string) bool {
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}
	for dp := range f.dirs {
		if dp != p && strings.HasPrefix(dp, prefix) {
			return true
		}
	}
	for fp := range f.files {
		if strings.HasPrefix(fp, prefix) {
			return true
		}
	}
	return false
}

func (f *MemoryFS) Remove(p string) error {
	p = clean(p)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[p]; ok {
		delete(f.files, p)
		return nil
	}
	if _, ok := f.dirs[p]; ok {
		if f.hasChildren(p) {
			return pathErr("remove", p, errors.New("directory not empty"))
		}
		delete(f.dirs, p)
		return nil
	}
	return pathErr("remove", p, fs.ErrNotExist)
}

func (f *MemoryFS) RemoveAll(p string) error {
	p = clean(p)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, p)
	delete(f.dirs, p)
	prefix := p + "/"
	for fp := range f.files {
		if strings.HasPrefix(fp, prefix) {
			delete(f.files, fp)
		}
	}
	for dp := range f.dirs {
		if strings.HasPrefix(dp, prefix) {
			delete(f.dirs, dp)
		}
	}
	return nil
}

func (f *MemoryFS) Rename(oldp, newp string) error {
	oldp, newp = clean(oldp), clean(newp)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ensureDirExists(path.Dir(newp)) != nil {
		return pathErr("rename", newp, fs.ErrNotExist)
	}

	// file rename
	if mf, ok := f.files[oldp]; ok {
		if _, isDir := f.dirs[newp]; isDir {
			return pathErr("rename", newp, errors.New("is a directory"))
		}
		delete(f.files, oldp)
		f.files[newp] = mf
		return nil
	}

	// dir rename moves the whole subtree
	if mt, ok := f.dirs[oldp]; ok {
		if _, taken := f.dirs[newp]; taken && f.hasChildren(newp) {
			return pathErr("rename", newp, errors.New("directory not empty"))
		}
		prefix := oldp + "/"
		for fp, mf := range f.files {
			if strings.HasPrefix(fp, prefix) {
				delete(f.files, fp)
				f.files[newp+"/"+strings.TrimPrefix(fp, prefix)] = mf
			}
		}
		for dp, dmt := range f.dirs {
			if strings.HasPrefix(dp, prefix) {
				delete(f.dirs, dp)
				f.dirs[newp+"/"+strings.TrimPrefix(dp, prefix)] = dmt
			}
		}
		delete(f.dirs, oldp)
		f.dirs[newp] = mt
		return nil
	}

	return pathErr("rename", oldp, fs.ErrNotExist)
}

func (f *MemoryFS) Stat(p string) (os.FileInfo, error) {
	p = clean(p)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if mf, ok := f.files[p]; ok {
		return &fakeInfo{name: path.Base(p), size: int64(len(mf.data)), mtime: mf.mtime}, nil
	}
	if mt, ok := f.dirs[p]; ok {
		return &fakeInfo{name: path.Base(p), dir: true, mtime: mt}, nil
	}
	return nil, pathErr("stat", p, fs.ErrNotExist)
}

func (f *MemoryFS) ReadDir(p string) ([]os.DirEntry, error) {
	p = clean(p)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.dirs[p]; !ok {
		return nil, pathErr("readdir", p, fs.ErrNotExist)
	}

	prefix := p + "/"
	switch p {
	case "/":
		prefix = "/"
	case ".":
		prefix = ""
	}

	seen := map[string]bool{}
	var out []os.DirEntry

	// dirs first
	for dp, mt := range f.dirs {
		rest, ok := strings.CutPrefix(dp, prefix)
		if !ok || dp == p || strings.Contains(rest, "/") {
			continue
		}
		if rest != "" && rest != "." && !seen[rest] {
			seen[rest] = true
			out = append(out, fakeDirEntry{info: &fakeInfo{name: rest, dir: true, mtime: mt}})
		}
	}

	// then files
	for fp, mf := range f.files {
		rest, ok := strings.CutPrefix(fp, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		if rest != "" && !seen[rest] {
			seen[rest] = true
			out = append(out, fakeDirEntry{info: &fakeInfo{name: rest, size: int64(len(mf.data)), mtime: mf.mtime}})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (f *MemoryFS) CreateTempFile(dir, pattern string) (io.WriteCloser, string, error) {
	dir = clean(dir)
	f.mu.Lock()
	if err := f.ensureDirExists(dir); err != nil {
		f.mu.Unlock()
		return nil, "", pathErr("createtemp", dir, err)
	}
	f.seq++
	suffix := fmt.Sprintf("%06d", f.seq)
	f.mu.Unlock()

	name := pattern + suffix
	if strings.Contains(pattern, "*") {
		name = strings.Replace(pattern, "*", suffix, 1)
	}
	tmpName := path.Join(dir, name)

	wc, err := f.Create(tmpName)
	if err != nil {
		return nil, "", err
	}
	// Visible immediately, like os.CreateTemp.
	f.mu.Lock()
	f.files[tmpName] = &memFile{mtime: f.now()}
	f.mu.Unlock()
	return wc, tmpName, nil
}

func (f *MemoryFS) Chtimes(p string, mtime time.Time) error {
	p = clean(p)
	f.mu.Lock()
	defer f.mu.Unlock()
	if mf, ok := f.files[p]; ok {
		mf.mtime = mtime
		return nil
	}
	if _, ok := f.dirs[p]; ok {
		f.dirs[p] = mtime
		return nil
	}
	return pathErr("chtimes", p, fs.ErrNotExist)
}

type memWriteCloser struct {
	buf     *bytes.Buffer
	onClose func()
	closed  bool
}

func (m *memWriteCloser) Write(p []byte) (int, error) {
	if m.closed {
		return 0, fs.ErrClosed
	}
	return m.buf.Write(p)
}

func (m *memWriteCloser) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.onClose != nil {
		m.onClose()
	}
	return nil
}

func (f *MemoryFS) IsNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

func (f *MemoryFS) IsDir(p string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.dirs[clean(p)]
	return ok
}

func (f *MemoryFS) Exists(p string) bool {
	p = clean(p)
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, f1 := f.files[p]
	_, d1 := f.dirs[p]
	return f1 || d1
}

// Helpers

type fakeInfo struct {
	name  string
	size  int64
	dir   bool
	mtime time.Time
}

func (f *fakeInfo) Name() string { return f.name }
func (f *fakeInfo) Size() int64  { return f.size }
func (f *fakeInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
func (f *fakeInfo) ModTime() time.Time { return f.mtime }
func (f *fakeInfo) IsDir() bool        { return f.dir }
func (f *fakeInfo) Sys() interface{}   { return nil }

type fakeDirEntry struct {
	info *fakeInfo
}

func (d fakeDirEntry) Name() string               { return d.info.name }
func (d fakeDirEntry) IsDir() bool                { return d.info.dir }
func (d fakeDirEntry) Type() fs.FileMode          { return d.info.Mode().Type() }
func (d fakeDirEntry) Info() (os.FileInfo, error) { return d.info, nil }
