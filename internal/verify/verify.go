// Package verify checks that every live entry of every record can be
// read back from its container with the recorded content hash.
package verify

import (
	"context"
	"sort"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/hashing"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
	"github.com/keshon/codi/internal/util"
)

type Status int

const (
	OK Status = iota
	Missing
	Damaged
	// Orphan is a blob no entry of its record points at.
	Orphan
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Missing:
		return "missing"
	case Damaged:
		return "damaged"
	case Orphan:
		return "orphan"
	}
	return "unknown"
}

// Check is the result for one blob.
type Check struct {
	Record string
	Path   string
	Blob   string
	Status Status
	Err    error
}

// Opener is the part of the store verification reads from.
type Opener interface {
	Open(id string) (store.Container, error)
}

// Count returns how many checks Stream will emit for live entries.
func Count(h *snapshot.History) int {
	n := 0
	for _, r := range h.Records() {
		n += r.LiveFiles()
	}
	return n
}

// Stream verifies records concurrently and streams results. Orphan
// blobs are reported after the live entries of their record.
func Stream(ctx context.Context, st Opener, h *snapshot.History, algorithm string, workers int) (<-chan Check, <-chan error) {
	out := make(chan Check, 128)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		err := util.Parallel(h.Records(), workers, func(r *snapshot.Record) error {
			return checkRecord(ctx, st, r, algorithm, out)
		})
		if err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

func checkRecord(ctx context.Context, st Opener, r *snapshot.Record, algorithm string, out chan<- Check) error {
	c, err := st.Open(r.ID())
	if err != nil {
		return errors.Annotatef(err, "verify record %s", r.ID())
	}
	defer c.Close()

	referenced := make(map[string]bool)
	for _, p := range util.SortedKeys(r.Files) {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		e := r.Files[p]
		if e.IsTombstone() {
			continue
		}
		rel := store.BlobPath(p)
		referenced[rel] = true
		chk := Check{Record: r.ID(), Path: p, Blob: rel}
		chk.Status, chk.Err = checkBlob(c, rel, e.Hash, algorithm)
		out <- chk
	}

	blobs, err := c.Blobs()
	if err != nil {
		return errors.Annotatef(err, "list blobs of %s", r.ID())
	}
	sort.Strings(blobs)
	for _, b := range blobs {
		if !referenced[b] {
			out <- Check{Record: r.ID(), Blob: b, Status: Orphan}
		}
	}
	return nil
}

func checkBlob(c store.Container, rel, want, algorithm string) (Status, error) {
	if !c.HasBlob(rel) {
		return Missing, nil
	}
	rc, err := c.OpenBlob(rel)
	if err != nil {
		return Missing, err
	}
	defer rc.Close()
	got, err := hashing.Reader(algorithm, rc)
	if err != nil {
		return Damaged, err
	}
	if got != want {
		return Damaged, nil
	}
	return OK, nil
}
