package retention

import (
	"sort"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
)

// mergePair folds update into base and drops update from h and from
// the store. Every blob the fold needs is checked before anything
// moves, so a stale reference fails the pair with both containers
// untouched. The folded state is built on a copy of base and only
// swapped in once base's container has committed.
//
// An IO error after the first move leaves the intent file in place;
// readers refuse the store until Replay finishes the pair.
//
// With resume set the blob moves of an earlier, interrupted attempt may
// already have happened; missing blobs that are found where the merge
// would have put them are accepted.
func (e *Engine) mergePair(h *snapshot.History, update, base *snapshot.Record, resume bool) (int, error) {
	e.log.Info("merging", "update", update.ID(), "base", base.ID(), "tier", base.Tier.String())

	baseC, err := e.store.Open(base.ID())
	if err != nil {
		return 0, errors.Annotatef(err, "merge %s into %s", update.ID(), base.ID())
	}
	defer baseC.Close()
	updC, err := e.store.Open(update.ID())
	if err != nil {
		return 0, errors.Annotatef(err, "merge %s into %s", update.ID(), base.ID())
	}
	defer updC.Close()

	if err := checkFold(update, base, updC, baseC, resume); err != nil {
		return 0, errors.Annotatef(err, "merge %s into %s", update.ID(), base.ID())
	}
	intent := store.Intent{Base: base.ID(), Update: update.ID(), Edited: snapshot.FormatID(update.Edited)}
	if err := e.store.WriteIntent(intent); err != nil {
		return 0, err
	}

	merged := base.Clone()
	forgotten, err := e.fold(update, merged, updC, baseC, resume)
	if err != nil {
		_ = baseC.Abort()
		return 0, errors.Annotatef(err, "merge %s into %s", update.ID(), base.ID())
	}

	data, sum, err := snapshot.Encode(merged)
	if err != nil {
		return 0, err
	}
	if err := baseC.WriteMetadata(data, sum); err != nil {
		return 0, errors.Trace(err)
	}
	if err := baseC.Commit(); err != nil {
		return 0, errors.Trace(err)
	}
	merged.ClearDirty()
	*base = *merged

	updC.Close()
	if err := e.store.Delete(update.ID()); err != nil {
		return forgotten, errors.Annotatef(err, "drop merged %s", update.ID())
	}
	if _, ui := h.Find(update.ID()); ui >= 0 {
		h.RemoveAt(ui)
	}
	return forgotten, e.store.ClearIntent()
}

// checkFold verifies that every blob fold will move or remove is where
// the records say it is.
func checkFold(update, base *snapshot.Record, updC, baseC store.Container, resume bool) error {
	for _, p := range sortedPaths(update.Files) {
		entry := update.Files[p]
		rel := store.BlobPath(p)
		prior, had := base.Files[p]
		hadLive := had && !prior.IsTombstone()

		if !entry.IsTombstone() && !updC.HasBlob(rel) {
			if resume && baseC.HasBlob(rel) {
				continue
			}
			return errors.Annotatef(store.ErrStaleReference, "blob for %s missing from %s", p, update.ID())
		}
		if hadLive && !resume && !baseC.HasBlob(rel) {
			return errors.Annotatef(store.ErrStaleReference, "blob for %s missing from %s", p, base.ID())
		}
	}
	return nil
}

func sortedPaths(files map[string]snapshot.FileEntry) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// fold applies update's entries to base and moves blobs accordingly.
func (e *Engine) fold(update, base *snapshot.Record, updC, baseC store.Container, resume bool) (int, error) {
	forgotten := 0
	for _, p := range sortedPaths(update.Files) {
		entry := update.Files[p]
		rel := store.BlobPath(p)
		prior, had := base.Files[p]
		hadLive := had && !prior.IsTombstone()

		if entry.IsTombstone() {
			if base.Tier == snapshot.Base {
				delete(base.Files, p)
				forgotten++
			} else {
				base.Files[p] = entry
			}
			if hadLive {
				if err := e.dropBlob(baseC, rel, p, resume); err != nil {
					return forgotten, err
				}
			}
			continue
		}

		if resume && !updC.HasBlob(rel) && baseC.HasBlob(rel) {
			// moved before the interruption
			base.Files[p] = entry
			continue
		}
		if !updC.HasBlob(rel) {
			return forgotten, errors.Annotatef(store.ErrStaleReference, "blob for %s missing from %s", p, update.ID())
		}
		if hadLive {
			if err := e.dropBlob(baseC, rel, p, resume); err != nil {
				return forgotten, err
			}
		}
		if err := updC.MoveBlob(rel, baseC); err != nil {
			return forgotten, errors.Annotatef(err, "move %s", p)
		}
		base.Files[p] = entry
		e.log.Debug("moved blob", "path", p, "from", update.ID(), "to", base.ID())
	}

	for p, present := range update.Folders {
		if base.Tier == snapshot.Base && !present {
			delete(base.Folders, p)
			continue
		}
		base.Folders[p] = present
	}

	base.Edited = update.Edited
	base.MarkDirty()
	return forgotten, nil
}

func (e *Engine) dropBlob(c store.Container, rel, path string, resume bool) error {
	err := c.RemoveBlob(rel)
	switch {
	case err == nil:
		e.log.Debug("removed stale blob", "path", path, "record", c.ID())
		return nil
	case errors.Is(err, store.ErrNotFound) && resume:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return errors.Annotatef(store.ErrStaleReference, "blob for %s missing from %s", path, c.ID())
	}
	return errors.Annotatef(err, "remove %s", path)
}
