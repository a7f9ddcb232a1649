package backup

import (
	"github.com/juju/errors"

	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
)

// ErrMergePending means a merge was interrupted. Until a backup run
// replays it, some containers may not match their metadata.
const ErrMergePending = errors.ConstError("unfinished merge")

// LoadSettled loads the history for read-only use, refusing a store
// with a pending merge intent.
func LoadSettled(st *store.Local) (*snapshot.History, error) {
	in, err := st.ReadIntent()
	if err != nil {
		return nil, err
	}
	if in != nil {
		return nil, errors.Annotatef(ErrMergePending, "%s into %s, run backup to finish it", in.Update, in.Base)
	}
	return LoadHistory(st)
}

// LoadHistory reads every committed container's metadata. A single
// unreadable record fails the whole load.
func LoadHistory(st store.Store) (*snapshot.History, error) {
	ids, err := st.List()
	if err != nil {
		return nil, errors.Trace(err)
	}
	records := make([]*snapshot.Record, 0, len(ids))
	for _, id := range ids {
		r, err := loadRecord(st, id)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return snapshot.NewHistory(records...), nil
}

func loadRecord(st store.Store, id string) (*snapshot.Record, error) {
	c, err := st.Open(id)
	if err != nil {
		return nil, errors.Annotatef(err, "load record %s", id)
	}
	defer c.Close()
	data, sum, err := c.ReadMetadata()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.Annotatef(snapshot.ErrCorruptMetadata, "record %s: no %s", id, snapshot.MetadataName)
		}
		return nil, errors.Annotatef(err, "load record %s", id)
	}
	r, err := snapshot.Decode(data, sum)
	if err != nil {
		return nil, errors.Annotatef(err, "record %s", id)
	}
	if r.ID() != id {
		return nil, errors.Annotatef(snapshot.ErrCorruptMetadata, "record %s claims creation %s", id, r.ID())
	}
	return r, nil
}

// Persist rewrites the metadata of every dirty record and clears the flags.
func Persist(st store.Store, h *snapshot.History) (int, error) {
	n := 0
	for _, r := range h.Dirty() {
		if err := persistRecord(st, r); err != nil {
			return n, err
		}
		r.ClearDirty()
		n++
	}
	return n, nil
}

func persistRecord(st store.Store, r *snapshot.Record) error {
	c, err := st.Open(r.ID())
	if err != nil {
		return errors.Annotatef(err, "persist record %s", r.ID())
	}
	defer c.Close()
	data, sum, err := snapshot.Encode(r)
	if err != nil {
		return err
	}
	if err := c.WriteMetadata(data, sum); err != nil {
		return errors.Annotatef(err, "persist record %s", r.ID())
	}
	return errors.Annotatef(c.Commit(), "persist record %s", r.ID())
}
