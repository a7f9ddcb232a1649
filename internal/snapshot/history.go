package snapshot

import (
	"sort"
)

// History is the ordered set of records, newest first. It is owned by
// one run and handed to each component explicitly.
type History struct {
	records []*Record
}

// NewHistory orders records newest first.
func NewHistory(records ...*Record) *History {
	h := &History{records: append([]*Record(nil), records...)}
	sort.SliceStable(h.records, func(i, j int) bool {
		return h.records[i].Created.After(h.records[j].Created)
	})
	return h
}

func (h *History) Len() int { return len(h.records) }

// At returns the i-th newest record.
func (h *History) At(i int) *Record { return h.records[i] }

// Records returns a copy of the ordered slice, safe to iterate while
// the history is being mutated.
func (h *History) Records() []*Record { return append([]*Record(nil), h.records...) }

// Newest returns the most recent record, or nil.
func (h *History) Newest() *Record {
	if len(h.records) == 0 {
		return nil
	}
	return h.records[0]
}

// Insert places r at its ordered position.
func (h *History) Insert(r *Record) {
	i := sort.Search(len(h.records), func(i int) bool {
		return !h.records[i].Created.After(r.Created)
	})
	h.records = append(h.records, nil)
	copy(h.records[i+1:], h.records[i:])
	h.records[i] = r
}

// RemoveAt drops the i-th newest record.
func (h *History) RemoveAt(i int) {
	h.records = append(h.records[:i], h.records[i+1:]...)
}

// Find returns the record with the given container id.
func (h *History) Find(id string) (*Record, int) {
	for i, r := range h.records {
		if r.ID() == id {
			return r, i
		}
	}
	return nil, -1
}

// LatestFile returns the newest entry recorded for path and the record
// holding it.
func (h *History) LatestFile(path string) (FileEntry, *Record, bool) {
	for _, r := range h.records {
		if e, ok := r.Files[path]; ok {
			return e, r, true
		}
	}
	return FileEntry{}, nil, false
}

// LatestFolder returns the newest presence flag for path.
func (h *History) LatestFolder(path string) (present, known bool) {
	for _, r := range h.records {
		if p, ok := r.Folders[path]; ok {
			return p, true
		}
	}
	return false, false
}

// State is the newest-wins view over a set of records.
type State struct {
	Files   map[string]FileEntry
	Folders map[string]bool
}

// Aggregate folds every record, newest first, keeping the first entry
// seen for each path.
func (h *History) Aggregate() State {
	st := State{Files: make(map[string]FileEntry), Folders: make(map[string]bool)}
	for _, r := range h.records {
		for p, e := range r.Files {
			if _, seen := st.Files[p]; !seen {
				st.Files[p] = e
			}
		}
		for p, present := range r.Folders {
			if _, seen := st.Folders[p]; !seen {
				st.Folders[p] = present
			}
		}
	}
	return st
}

// Dirty returns the records whose metadata must be rewritten.
func (h *History) Dirty() []*Record {
	var out []*Record
	for _, r := range h.records {
		if r.Dirty() {
			out = append(out, r)
		}
	}
	return out
}
