package util

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/keshon/codi/internal/fs"
)

func TestWriteJSONAtomic(t *testing.T) {
	mem := fs.NewMemoryFS()
	if err := WriteJSON(mem, "/store/meta/x.json", map[string]int{"a": 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var got map[string]int
	if err := ReadJSON(mem, "/store/meta/x.json", &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got["a"] != 1 {
		t.Fatalf("got %v", got)
	}
	entries, _ := mem.ReadDir("/store/meta")
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]bool{"b": true, "a": true, "c": false})
	if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Fatalf("keys %v", keys)
	}
}

func TestParallel(t *testing.T) {
	var n atomic.Int32
	in := []int{1, 2, 3, 4, 5, 6}
	if err := Parallel(in, 2, func(int) error { n.Add(1); return nil }); err != nil {
		t.Fatalf("Parallel: %v", err)
	}
	if n.Load() != int32(len(in)) {
		t.Fatalf("ran %d of %d", n.Load(), len(in))
	}

	boom := errors.New("boom")
	err := Parallel(in, 0, func(x int) error {
		if x == 4 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
