package store

import (
	"io"
	"strings"
	"testing"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/fs"
)

func newStore(t *testing.T, kind Kind) (*Local, *fs.MemoryFS) {
	t.Helper()
	mem := fs.NewMemoryFS()
	s, err := New(mem, "/backup", kind)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, mem
}

func readBlob(t *testing.T, c Container, rel string) string {
	t.Helper()
	r, err := c.OpenBlob(rel)
	if err != nil {
		t.Fatalf("OpenBlob(%s): %v", rel, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(b)
}

func forKinds(t *testing.T, fn func(t *testing.T, kind Kind)) {
	for _, k := range []Kind{Dir, Zip} {
		t.Run(string(k), func(t *testing.T) { fn(t, k) })
	}
}

func TestBlobPath(t *testing.T) {
	cases := map[string]string{
		"/home/u/a.txt": "home/u/a.txt",
		"/":             "",
		"/a/../b":       "b",
		"/state.json":   "%state.json",
		"/state.sum":    "%state.sum",
		"/%x/y":         "%%x/y",
		"/d/state.json": "d/state.json",
	}
	for in, want := range cases {
		if got := BlobPath(in); got != want {
			t.Errorf("BlobPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateCommitList(t *testing.T) {
	forKinds(t, func(t *testing.T, kind Kind) {
		s, _ := newStore(t, kind)
		c, err := s.Create("20240101T000000")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := c.WriteBlob("home/u/a.txt", strings.NewReader("alpha")); err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		if err := c.WriteMetadata([]byte(`{}`), "abc"); err != nil {
			t.Fatalf("WriteMetadata: %v", err)
		}

		ids, _ := s.List()
		if len(ids) != 0 {
			t.Fatalf("staged container visible before commit: %v", ids)
		}
		if err := c.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		c.Close()

		ids, _ = s.List()
		if len(ids) != 1 || ids[0] != "20240101T000000" {
			t.Fatalf("List = %v", ids)
		}

		c, err = s.Open(ids[0])
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer c.Close()
		if got := readBlob(t, c, "home/u/a.txt"); got != "alpha" {
			t.Fatalf("blob = %q", got)
		}
		data, sum, err := c.ReadMetadata()
		if err != nil || string(data) != "{}" || sum != "abc" {
			t.Fatalf("metadata = %q %q %v", data, sum, err)
		}
		blobs, _ := c.Blobs()
		if len(blobs) != 1 || blobs[0] != "home/u/a.txt" {
			t.Fatalf("Blobs = %v", blobs)
		}
	})
}

func TestAbortLeavesNothing(t *testing.T) {
	forKinds(t, func(t *testing.T, kind Kind) {
		s, mem := newStore(t, kind)
		c, _ := s.Create("20240101T000000")
		_ = c.WriteBlob("x", strings.NewReader("x"))
		if err := c.Abort(); err != nil {
			t.Fatalf("Abort: %v", err)
		}
		entries, _ := mem.ReadDir("/backup")
		if len(entries) != 0 {
			t.Fatalf("abort left %d entries", len(entries))
		}
	})
}

func TestRemoveBlobPrunesDirs(t *testing.T) {
	s, mem := newStore(t, Dir)
	c, _ := s.Create("20240101T000000")
	_ = c.WriteBlob("a/b/c.txt", strings.NewReader("c"))
	_ = c.WriteBlob("a/keep.txt", strings.NewReader("k"))
	_ = c.Commit()

	if err := c.RemoveBlob("a/b/c.txt"); err != nil {
		t.Fatalf("RemoveBlob: %v", err)
	}
	if mem.Exists("/backup/20240101T000000/a/b") {
		t.Fatalf("empty dir not pruned")
	}
	if !mem.Exists("/backup/20240101T000000/a") {
		t.Fatalf("non-empty dir pruned")
	}
	if err := c.RemoveBlob("a/b/c.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove: %v", err)
	}
}

func TestMoveBlob(t *testing.T) {
	kinds := [][2]Kind{{Dir, Dir}, {Zip, Zip}, {Dir, Zip}, {Zip, Dir}}
	for _, pair := range kinds {
		t.Run(string(pair[0])+"-"+string(pair[1]), func(t *testing.T) {
			mem := fs.NewMemoryFS()
			srcStore, _ := New(mem, "/backup", pair[0])
			dstStore, _ := New(mem, "/backup", pair[1])

			dst, _ := dstStore.Create("20240101T000000")
			_ = dst.WriteBlob("f", strings.NewReader("old"))
			_ = dst.Commit()
			src, _ := srcStore.Create("20240101T000100")
			_ = src.WriteBlob("f", strings.NewReader("new"))
			_ = src.Commit()

			if err := dst.RemoveBlob("f"); err != nil {
				t.Fatalf("remove stale: %v", err)
			}
			if err := src.MoveBlob("f", dst); err != nil {
				t.Fatalf("MoveBlob: %v", err)
			}
			if src.HasBlob("f") {
				t.Fatalf("blob still in source")
			}
			if err := dst.Commit(); err != nil {
				t.Fatalf("commit dst: %v", err)
			}

			reopened, err := dstStore.Open("20240101T000000")
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer reopened.Close()
			if got := readBlob(t, reopened, "f"); got != "new" {
				t.Fatalf("moved blob = %q", got)
			}
		})
	}
}

func TestZipRewriteKeepsUntouched(t *testing.T) {
	s, _ := newStore(t, Zip)
	c, _ := s.Create("20240101T000000")
	_ = c.WriteBlob("keep", strings.NewReader("K"))
	_ = c.WriteBlob("drop", strings.NewReader("D"))
	_ = c.WriteMetadata([]byte("v1"), "")
	_ = c.Commit()

	if err := c.RemoveBlob("drop"); err != nil {
		t.Fatalf("RemoveBlob: %v", err)
	}
	_ = c.WriteMetadata([]byte("v2"), "s2")
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	c.Close()

	c, _ = s.Open("20240101T000000")
	defer c.Close()
	if c.HasBlob("drop") || readBlob(t, c, "keep") != "K" {
		t.Fatalf("rewrite lost or kept wrong entries")
	}
	data, sum, _ := c.ReadMetadata()
	if string(data) != "v2" || sum != "s2" {
		t.Fatalf("metadata %q %q", data, sum)
	}
}

func TestDeleteAndSweep(t *testing.T) {
	s, mem := newStore(t, Dir)
	c, _ := s.Create("20240101T000000")
	_ = c.Commit()
	if _, err := s.Create("20240101T000100"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Delete("20240101T000000"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("20240101T000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}

	removed, err := s.Sweep()
	if err != nil || len(removed) != 1 {
		t.Fatalf("Sweep = %v %v", removed, err)
	}
	entries, _ := mem.ReadDir("/backup")
	if len(entries) != 0 {
		t.Fatalf("leftovers: %d", len(entries))
	}
}

func TestListIgnoresForeignNames(t *testing.T) {
	s, mem := newStore(t, Dir)
	_ = mem.MkdirAll("/backup/not-a-record", 0o755)
	_ = mem.WriteFile("/backup/notes.zip", nil, 0o644)
	_ = mem.WriteFile("/backup/.merge-intent.json", nil, 0o644)
	_ = mem.MkdirAll("/backup/20240101T000000", 0o755)
	ids, err := s.List()
	if err != nil || len(ids) != 1 {
		t.Fatalf("List = %v %v", ids, err)
	}
}

func TestIntent(t *testing.T) {
	s, _ := newStore(t, Dir)
	if in, err := s.ReadIntent(); err != nil || in != nil {
		t.Fatalf("empty intent = %v %v", in, err)
	}
	want := Intent{Base: "20240101T000000", Update: "20240101T000100", Edited: "20240101T000100"}
	if err := s.WriteIntent(want); err != nil {
		t.Fatalf("WriteIntent: %v", err)
	}
	got, err := s.ReadIntent()
	if err != nil || got == nil || *got != want {
		t.Fatalf("ReadIntent = %+v %v", got, err)
	}
	if err := s.ClearIntent(); err != nil {
		t.Fatalf("ClearIntent: %v", err)
	}
	if err := s.ClearIntent(); err != nil {
		t.Fatalf("ClearIntent twice: %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	s, _ := newStore(t, Zip)
	if _, err := s.Open("20240101T000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open missing: %v", err)
	}
	if _, err := ParseKind("tar"); err == nil {
		t.Fatalf("ParseKind accepted tar")
	}
}

func TestMoveIntoZipKeepsSourceUntilCommit(t *testing.T) {
	mem := fs.NewMemoryFS()
	dirStore, _ := New(mem, "/backup", Dir)
	zipStore, _ := New(mem, "/backup", Zip)

	src, _ := dirStore.Create("20240101T000100")
	_ = src.WriteBlob("f", strings.NewReader("new"))
	_ = src.Commit()
	dst, _ := zipStore.Create("20240101T000000")
	_ = dst.Commit()

	src, _ = dirStore.Open("20240101T000100")
	dst, _ = zipStore.Open("20240101T000000")
	if err := src.MoveBlob("f", dst); err != nil {
		t.Fatalf("MoveBlob: %v", err)
	}
	if src.HasBlob("f") {
		t.Fatal("moved blob still visible in source")
	}
	if blobs, _ := src.Blobs(); len(blobs) != 0 {
		t.Fatalf("source lists %v", blobs)
	}

	// the zip has not committed: a fresh reader still finds the blob
	// in the source and nothing in the destination
	again, _ := dirStore.Open("20240101T000100")
	if !again.HasBlob("f") || readBlob(t, again, "f") != "new" {
		t.Fatal("source blob lost before the destination committed")
	}
	if z, _ := zipStore.Open("20240101T000000"); z.HasBlob("f") {
		t.Fatal("destination holds an uncommitted blob")
	}

	if err := dst.Commit(); err != nil {
		t.Fatalf("commit dst: %v", err)
	}
	if err := src.Commit(); err != nil {
		t.Fatalf("commit src: %v", err)
	}
	if again, _ := dirStore.Open("20240101T000100"); again.HasBlob("f") {
		t.Fatal("source blob kept after both sides committed")
	}
}

func TestSourceNamedLikeMetadata(t *testing.T) {
	forKinds(t, func(t *testing.T, kind Kind) {
		s, _ := newStore(t, kind)
		c, err := s.Create("20240101T000000")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := c.WriteBlob(BlobPath("/state.json"), strings.NewReader("user data")); err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		if err := c.WriteMetadata([]byte(`{"created":"x"}`), ""); err != nil {
			t.Fatalf("WriteMetadata: %v", err)
		}
		if err := c.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		c.Close()

		c, err = s.Open("20240101T000000")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer c.Close()
		data, _, err := c.ReadMetadata()
		if err != nil || string(data) != `{"created":"x"}` {
			t.Fatalf("metadata = %q, %v", data, err)
		}
		if got := readBlob(t, c, BlobPath("/state.json")); got != "user data" {
			t.Fatalf("blob = %q", got)
		}
		blobs, _ := c.Blobs()
		if len(blobs) != 1 || blobs[0] != "%state.json" {
			t.Fatalf("blobs = %v", blobs)
		}
	})
}
