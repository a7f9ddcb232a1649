// Package resolve reconstructs the tracked tree as of a past instant
// and restores it from the store.
package resolve

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
	"github.com/keshon/codi/internal/util"
)

// Location says where the content of a path lives at the queried
// instant. Absent marks a path deleted as of then.
type Location struct {
	Record       string
	Blob         string
	Hash         string
	LastModified time.Time
	Absent       bool
}

// View is the resolved state at an instant.
type View struct {
	At      time.Time
	Files   map[string]Location
	Folders []string
}

// Paths returns the resolved file paths, sorted.
func (v *View) Paths() []string { return util.SortedKeys(v.Files) }

// ParseTime accepts a record id stamp (UTC) or RFC 3339.
func ParseTime(s string) (time.Time, error) {
	if t, err := snapshot.ParseID(s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.NotValidf("timestamp %q (want %s or RFC 3339)", s, snapshot.IDLayout)
}

// Peek folds the records created at or before at, newest first. The
// first entry seen for a path decides it; tombstones and removed
// folders shadow older entries.
func Peek(h *snapshot.History, at time.Time) *View {
	v := &View{At: at, Files: make(map[string]Location)}
	folders := make(map[string]bool)
	for _, r := range h.Records() {
		if r.Created.After(at) {
			continue
		}
		for p, e := range r.Files {
			if _, seen := v.Files[p]; seen {
				continue
			}
			if e.IsTombstone() {
				v.Files[p] = Location{Record: r.ID(), Absent: true}
				continue
			}
			v.Files[p] = Location{
				Record:       r.ID(),
				Blob:         store.BlobPath(p),
				Hash:         e.Hash,
				LastModified: e.LastModified,
			}
		}
		for p, present := range r.Folders {
			if _, seen := folders[p]; !seen {
				folders[p] = present
			}
		}
	}
	for p, present := range folders {
		if present {
			v.Folders = append(v.Folders, p)
		}
	}
	sort.Strings(v.Folders)
	return v
}

// Under reports whether path is prefix itself or lies below it. An
// empty prefix selects everything.
func Under(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	path, prefix = filepath.ToSlash(path), filepath.ToSlash(prefix)
	if path == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(path, prefix)
}
