package hashing_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/hashing"
)

func TestReaderKnownDigests(t *testing.T) {
	tests := []struct {
		algo string
		want string
	}{
		{hashing.SHA256, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{hashing.Blake2b, "324dcf027dd4a30a932c441f365a25e86b173defa4b8e58948253471b81b72cf"},
	}
	for _, tt := range tests {
		got, err := hashing.Reader(tt.algo, strings.NewReader("hello"))
		if err != nil {
			t.Fatalf("%s: %v", tt.algo, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.algo, tt.want, got)
		}
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	if hashing.Supported("md5") {
		t.Fatal("md5 must not be supported")
	}
	if _, err := hashing.Reader("md5", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestFileLargerThanChunk(t *testing.T) {
	m := fs.NewMemoryFS()
	m.MkdirAll("/d", 0o755)
	data := bytes.Repeat([]byte("0123456789abcdef"), 200_000) // > 1 MiB
	m.WriteFile("/d/big", data, 0o644)

	fromFile, err := hashing.File(m, hashing.SHA256, "/d/big")
	if err != nil {
		t.Fatal(err)
	}
	fromReader, _ := hashing.Reader(hashing.SHA256, bytes.NewReader(data))
	if fromFile != fromReader {
		t.Fatalf("digest mismatch: %s vs %s", fromFile, fromReader)
	}
}

func TestTeeMatchesReader(t *testing.T) {
	tee, err := hashing.NewTee(hashing.Blake2b, strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if _, err := io.Copy(&out, tee); err != nil {
		t.Fatal(err)
	}
	want, _ := hashing.Reader(hashing.Blake2b, strings.NewReader("payload"))
	if tee.Sum() != want {
		t.Fatalf("expected %s, got %s", want, tee.Sum())
	}
	if out.String() != "payload" {
		t.Fatalf("tee altered data: %q", out.String())
	}
}
