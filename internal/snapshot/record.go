// Package snapshot models backup records and the ordered history they
// form, and encodes a record's metadata for its container.
package snapshot

import (
	"time"
)

// IDLayout formats a record's creation instant into its container id.
const IDLayout = "20060102T150405"

// FileEntry is the state of one file as of a record. An empty Hash is a
// tombstone: the path was deleted as of the record's creation.
type FileEntry struct {
	Hash         string
	LastModified time.Time
}

// Tombstone returns the deletion marker.
func Tombstone() FileEntry { return FileEntry{} }

func (e FileEntry) IsTombstone() bool { return e.Hash == "" }

// Record describes one backup run, later possibly widened by compaction.
type Record struct {
	Created time.Time
	Edited  time.Time
	Tier    Tier
	Files   map[string]FileEntry
	Folders map[string]bool

	dirty bool
}

// NewRecord returns an empty record created (and edited) at created.
func NewRecord(created time.Time, tier Tier) *Record {
	created = Stamp(created)
	return &Record{
		Created: created,
		Edited:  created,
		Tier:    tier,
		Files:   make(map[string]FileEntry),
		Folders: make(map[string]bool),
	}
}

// Stamp normalizes t to the second-resolution UTC instant records use.
func Stamp(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Second)
}

// ID is the container id of the record.
func (r *Record) ID() string { return FormatID(r.Created) }

// FormatID renders t in the container id layout.
func FormatID(t time.Time) string { return t.UTC().Format(IDLayout) }

// ParseID parses a container id back into an instant.
func ParseID(id string) (time.Time, error) {
	return time.ParseInLocation(IDLayout, id, time.UTC)
}

// Empty reports whether the record carries no changes.
func (r *Record) Empty() bool { return len(r.Files) == 0 && len(r.Folders) == 0 }

func (r *Record) MarkDirty()  { r.dirty = true }
func (r *Record) Dirty() bool { return r.dirty }
func (r *Record) ClearDirty() { r.dirty = false }

// LiveFiles counts non-tombstone entries.
func (r *Record) LiveFiles() int {
	n := 0
	for _, e := range r.Files {
		if !e.IsTombstone() {
			n++
		}
	}
	return n
}

// Clone deep-copies the record, dirty flag included.
func (r *Record) Clone() *Record {
	c := *r
	c.Files = make(map[string]FileEntry, len(r.Files))
	for p, e := range r.Files {
		c.Files[p] = e
	}
	c.Folders = make(map[string]bool, len(r.Folders))
	for p, v := range r.Folders {
		c.Folders[p] = v
	}
	return &c
}
