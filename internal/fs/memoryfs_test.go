package fs_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/keshon/codi/internal/fs"
)

func TestMemoryFS_WriteReadFile(t *testing.T) {
	m := fs.NewMemoryFS()

	// Create dirs first
	if err := m.MkdirAll("/dir/sub", 0o755); err != nil {
		t.Fatal(err)
	}

	content := []byte("hello world")
	if err := m.WriteFile("/dir/sub/file.txt", content, 0o644); err != nil {
		t.Fatal(err)
	}

	read, err := m.ReadFile("/dir/sub/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(read, content) {
		t.Fatalf("expected %q, got %q", content, read)
	}
	if !m.IsDir("/dir") || !m.IsDir("/dir/sub") {
		t.Fatal("expected absolute parents to exist")
	}
}

func TestMemoryFS_WriteFileNonExistentDir(t *testing.T) {
	m := fs.NewMemoryFS()
	err := m.WriteFile("/nope/file.txt", []byte("x"), 0o644)
	if err == nil {
		t.Fatal("expected error writing to non-existent dir")
	}
}

func TestMemoryFS_OpenReadAt(t *testing.T) {
	m := fs.NewMemoryFS()
	m.MkdirAll("/d", 0o755)
	m.WriteFile("/d/f", []byte("abcdef"), 0o644)

	f, err := m.Open("/d/f")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	buf := make([]byte, 3)
	if _, err := f.ReadAt(buf, 3); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if string(buf) != "def" {
		t.Fatalf("unexpected read %q", buf)
	}
}

func TestMemoryFS_RemoveRefusesNonEmptyDir(t *testing.T) {
	m := fs.NewMemoryFS()
	m.MkdirAll("/d/e", 0o755)
	m.WriteFile("/d/e/f", []byte("x"), 0o644)

	if err := m.Remove("/d"); err == nil {
		t.Fatal("expected error removing non-empty dir")
	}
	if err := m.Remove("/d/e/f"); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("/d/e"); err != nil {
		t.Fatal(err)
	}
	if m.Exists("/d/e") {
		t.Fatal("dir should be removed")
	}
	if err := m.Remove("/d/e"); !m.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestMemoryFS_RenameDirMovesSubtree(t *testing.T) {
	m := fs.NewMemoryFS()
	m.MkdirAll("/root/.tmp-1/a/b", 0o755)
	m.WriteFile("/root/.tmp-1/a/b/c.txt", []byte("c"), 0o644)

	if err := m.Rename("/root/.tmp-1", "/root/1"); err != nil {
		t.Fatal(err)
	}
	if m.Exists("/root/.tmp-1") {
		t.Fatal("old dir still present")
	}
	data, err := m.ReadFile("/root/1/a/b/c.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "c" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestMemoryFS_ReadDirSortedDirectChildren(t *testing.T) {
	m := fs.NewMemoryFS()
	m.MkdirAll("/r/b/deep", 0o755)
	m.MkdirAll("/r/a", 0o755)
	m.WriteFile("/r/c.txt", []byte("c"), 0o644)
	m.WriteFile("/r/b/deep/x", []byte("x"), 0o644)

	entries, err := m.ReadDir("/r")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{"a", "b", "c.txt"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	if !entries[0].IsDir() || entries[2].IsDir() {
		t.Fatal("wrong entry kinds")
	}
}

func TestMemoryFS_ChtimesAndNow(t *testing.T) {
	m := fs.NewMemoryFS()
	stamp := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return stamp }

	m.MkdirAll("/d", 0o755)
	m.WriteFile("/d/f", []byte("x"), 0o644)
	fi, err := m.Stat("/d/f")
	if err != nil {
		t.Fatal(err)
	}
	if !fi.ModTime().Equal(stamp) {
		t.Fatalf("expected %v, got %v", stamp, fi.ModTime())
	}

	later := stamp.Add(time.Hour)
	if err := m.Chtimes("/d/f", later); err != nil {
		t.Fatal(err)
	}
	fi, _ = m.Stat("/d/f")
	if !fi.ModTime().Equal(later) {
		t.Fatalf("expected %v, got %v", later, fi.ModTime())
	}
}

func TestMemoryFS_CreateTempFile(t *testing.T) {
	m := fs.NewMemoryFS()
	m.MkdirAll("/tmpdir", 0o755)

	w, name, err := m.CreateTempFile("/tmpdir", ".tmp-*.json")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Exists(name) {
		t.Fatalf("temp file %s should be visible before close", name)
	}
	w.Write([]byte("data"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	out, _ := m.ReadFile(name)
	if string(out) != "data" {
		t.Fatalf("expected data, got %q", out)
	}

	_, other, _ := m.CreateTempFile("/tmpdir", ".tmp-*.json")
	if other == name {
		t.Fatal("temp names must be unique")
	}
}

func TestMemoryFS_RemoveAll(t *testing.T) {
	m := fs.NewMemoryFS()
	m.MkdirAll("/x/y", 0o755)
	m.WriteFile("/x/y/z", []byte("z"), 0o644)
	m.MkdirAll("/xy", 0o755)

	if err := m.RemoveAll("/x"); err != nil {
		t.Fatal(err)
	}
	if m.Exists("/x") || m.Exists("/x/y/z") {
		t.Fatal("subtree should be gone")
	}
	if !m.Exists("/xy") {
		t.Fatal("sibling with shared prefix must survive")
	}
}
