package verify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/hashing"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
)

func hashOf(t *testing.T, s string) string {
	t.Helper()
	h, err := hashing.Reader(hashing.SHA256, strings.NewReader(s))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

func TestStreamReportsEveryProblem(t *testing.T) {
	mem := fs.NewMemoryFS()
	st, err := store.New(mem, "/backup", store.Dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	r := snapshot.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), snapshot.Base)
	c, err := st.Create(r.ID())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	blobs := map[string]string{"/d/ok": "fine", "/d/bad": "original", "/d/lost": "lost", "/d/extra": "stray"}
	for p, content := range blobs {
		if err := c.WriteBlob(store.BlobPath(p), strings.NewReader(content)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	r.Files["/d/ok"] = snapshot.FileEntry{Hash: hashOf(t, "fine")}
	r.Files["/d/bad"] = snapshot.FileEntry{Hash: hashOf(t, "something else")}
	r.Files["/d/lost"] = snapshot.FileEntry{Hash: hashOf(t, "lost")}
	r.Files["/d/gone"] = snapshot.Tombstone()
	if err := c.RemoveBlob(store.BlobPath("/d/lost")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	data, sum, _ := snapshot.Encode(r)
	if err := c.WriteMetadata(data, sum); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	c.Close()

	h := snapshot.NewHistory(r)
	if n := Count(h); n != 3 {
		t.Fatalf("Count = %d", n)
	}
	out, errCh := Stream(context.Background(), st, h, hashing.SHA256, 2)
	got := map[string]Status{}
	for chk := range out {
		got[chk.Blob] = chk.Status
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream: %v", err)
	}
	want := map[string]Status{"d/ok": OK, "d/bad": Damaged, "d/lost": Missing, "d/extra": Orphan}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for b, s := range want {
		if got[b] != s {
			t.Fatalf("%s: got %s want %s", b, got[b], s)
		}
	}
}

func TestStreamMissingContainer(t *testing.T) {
	mem := fs.NewMemoryFS()
	st, _ := store.New(mem, "/backup", store.Dir)
	h := snapshot.NewHistory(snapshot.NewRecord(time.Now(), snapshot.Base))
	out, errCh := Stream(context.Background(), st, h, hashing.SHA256, 1)
	for range out {
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected error for missing container")
	}
}
