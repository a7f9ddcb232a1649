// Package hashing computes content digests of tracked files.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"

	"github.com/juju/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/keshon/codi/internal/fs"
)

const (
	SHA256  = "sha256"
	Blake2b = "blake2b"

	DefaultAlgorithm = SHA256

	// chunkSize bounds memory use for arbitrarily large files.
	chunkSize = 1 << 20
)

// Supported reports whether name is a known algorithm.
func Supported(name string) bool {
	switch name {
	case SHA256, Blake2b:
		return true
	}
	return false
}

// New returns a fresh hash.Hash for the named algorithm.
func New(name string) (hash.Hash, error) {
	switch name {
	case "", SHA256:
		return sha256.New(), nil
	case Blake2b:
		return blake2b.New256(nil)
	}
	return nil, errors.NotSupportedf("hash algorithm %q", name)
}

// Reader hashes everything r yields, reading it in fixed-size chunks.
func Reader(algorithm string, r io.Reader) (string, error) {
	h, err := New(algorithm)
	if err != nil {
		return "", err
	}
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File hashes the file at path.
func File(fsys fs.FS, algorithm, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", errors.Annotatef(err, "hash %q", path)
	}
	defer f.Close()
	sum, err := Reader(algorithm, f)
	if err != nil {
		return "", errors.Annotatef(err, "hash %q", path)
	}
	return sum, nil
}

// Tee wraps r so that everything read through it is hashed. Sum returns
// the digest of the bytes read so far.
type Tee struct {
	r io.Reader
	h hash.Hash
}

func NewTee(algorithm string, r io.Reader) (*Tee, error) {
	h, err := New(algorithm)
	if err != nil {
		return nil, err
	}
	return &Tee{r: r, h: h}, nil
}

func (t *Tee) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.h.Write(p[:n])
	}
	return n, err
}

func (t *Tee) Sum() string { return hex.EncodeToString(t.h.Sum(nil)) }
