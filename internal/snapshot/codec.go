package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/zeebo/xxh3"
)

// ErrCorruptMetadata marks a record that cannot be trusted. History is
// never loaded partially around it.
const ErrCorruptMetadata = errors.ConstError("corrupt snapshot metadata")

const (
	MetadataName = "state.json"
	ChecksumName = "state.sum"
)

// wire layout of state.json; key names match archives written by the
// earlier codi releases so they stay readable.
type wireRecord struct {
	Created string               `json:"created"`
	Edited  string               `json:"edited"`
	Tier    Tier                 `json:"type"`
	Files   map[string]wireEntry `json:"files"`
	Folders map[string]bool      `json:"folders"`
}

type wireEntry struct {
	Hash   string `json:"hash"`
	Edited string `json:"edited"`
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return FormatID(t)
}

func parseStamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return ParseID(s)
}

// Checksum is the hex xxh3-128 digest guarding state.json.
func Checksum(data []byte) string {
	b := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(b[:])
}

// Encode renders r's metadata and its checksum.
func Encode(r *Record) ([]byte, string, error) {
	w := wireRecord{
		Created: formatStamp(r.Created),
		Edited:  formatStamp(r.Edited),
		Tier:    r.Tier,
		Files:   make(map[string]wireEntry, len(r.Files)),
		Folders: r.Folders,
	}
	if w.Folders == nil {
		w.Folders = map[string]bool{}
	}
	for p, e := range r.Files {
		w.Files[p] = wireEntry{Hash: e.Hash, Edited: formatStamp(e.LastModified)}
	}
	data, err := json.MarshalIndent(w, "", "    ")
	if err != nil {
		return nil, "", errors.Annotatef(err, "encode record %s", r.ID())
	}
	return data, Checksum(data), nil
}

// Decode parses metadata. An empty sum skips verification (archives
// written before checksums existed).
func Decode(data []byte, sum string) (*Record, error) {
	if sum != "" && Checksum(data) != sum {
		return nil, errors.Annotatef(ErrCorruptMetadata, "checksum mismatch")
	}
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Annotatef(ErrCorruptMetadata, "parse: %v", err)
	}
	created, err := parseStamp(w.Created)
	if err != nil || created.IsZero() {
		return nil, errors.Annotatef(ErrCorruptMetadata, "created %q", w.Created)
	}
	edited, err := parseStamp(w.Edited)
	if err != nil {
		return nil, errors.Annotatef(ErrCorruptMetadata, "edited %q", w.Edited)
	}
	if edited.IsZero() {
		edited = created
	}
	r := &Record{
		Created: created,
		Edited:  edited,
		Tier:    w.Tier,
		Files:   make(map[string]FileEntry, len(w.Files)),
		Folders: w.Folders,
	}
	if r.Folders == nil {
		r.Folders = make(map[string]bool)
	}
	for p, we := range w.Files {
		mod, err := parseStamp(we.Edited)
		if err != nil {
			return nil, errors.Annotatef(ErrCorruptMetadata, "file %q edited %q", p, we.Edited)
		}
		r.Files[p] = FileEntry{Hash: we.Hash, LastModified: mod}
	}
	return r, nil
}
