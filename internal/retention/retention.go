// Package retention promotes records through coarser tiers as they age
// and compacts neighbouring records of the same tier into one.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
)

// Store is what compaction needs from the snapshot store.
type Store interface {
	Open(id string) (store.Container, error)
	Delete(id string) error
	WriteIntent(store.Intent) error
	ReadIntent() (*store.Intent, error)
	ClearIntent() error
}

type Engine struct {
	store  Store
	policy Policy
	log    *slog.Logger
}

func New(s Store, policy Policy, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, policy: policy, log: log}
}

// Stats counts what a pass changed.
type Stats struct {
	Promotions int
	Merges     int
	// Forgotten counts tombstones dropped by merges into Base.
	Forgotten int
}

// Run promotes each tier from finest to coarsest and compacts the tier
// just promoted into. Any merge failure stops the pass.
func (e *Engine) Run(ctx context.Context, h *snapshot.History, now time.Time) (Stats, error) {
	var st Stats
	for _, t := range promotable {
		st.Promotions += e.promote(h, t, now)
		if err := e.compact(ctx, h, t.Next(), &st); err != nil {
			return st, err
		}
	}
	return st, nil
}

// promote scans newest first. Finer records are passed over; the scan
// ends at the first record coarser than t.
func (e *Engine) promote(h *snapshot.History, t snapshot.Tier, now time.Time) int {
	threshold := e.policy.Threshold(t)
	n := 0
	for _, r := range h.Records() {
		if r.Tier < t {
			continue
		}
		if r.Tier > t {
			break
		}
		if now.After(r.Created.Add(threshold)) {
			r.Tier = t.Next()
			r.MarkDirty()
			n++
			e.log.Debug("promoted", "record", r.ID(), "tier", r.Tier.String())
		}
	}
	return n
}

// compact walks from the oldest record toward the newest. Coarser
// records are passed over, the walk ends at the first finer one. Each
// record of tier t absorbs its newer neighbours while they stay inside
// its merge window.
func (e *Engine) compact(ctx context.Context, h *snapshot.History, t snapshot.Tier, st *Stats) error {
	i := h.Len() - 1
	for i > 0 {
		base := h.At(i)
		if base.Tier > t {
			i--
			continue
		}
		if base.Tier < t {
			return nil
		}
		for i > 0 {
			update := h.At(i - 1)
			if update.Tier != t || !e.policy.shouldMerge(t, base, update) {
				break
			}
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			forgotten, err := e.mergePair(h, update, base, false)
			if err != nil {
				return err
			}
			st.Merges++
			st.Forgotten += forgotten
			i--
		}
		i--
	}
	return nil
}

// Replay finishes a merge interrupted by a crash. It must run before
// anything else touches the loaded history.
func (e *Engine) Replay(ctx context.Context, h *snapshot.History) (bool, error) {
	in, err := e.store.ReadIntent()
	if err != nil || in == nil {
		return false, err
	}
	base, _ := h.Find(in.Base)
	update, ui := h.Find(in.Update)

	switch {
	case update == nil:
		e.log.Info("merge intent already complete", "base", in.Base, "update", in.Update)
	case base == nil:
		return false, errors.Annotatef(store.ErrStaleReference, "merge intent names missing base %s", in.Base)
	case snapshot.FormatID(base.Edited) == in.Edited:
		e.log.Info("finishing committed merge", "base", in.Base, "update", in.Update)
		if err := e.store.Delete(update.ID()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, errors.Trace(err)
		}
		h.RemoveAt(ui)
	default:
		e.log.Warn("redoing interrupted merge", "base", in.Base, "update", in.Update)
		if err := ctx.Err(); err != nil {
			return false, errors.Trace(err)
		}
		if _, err := e.mergePair(h, update, base, true); err != nil {
			return false, err
		}
		return true, nil
	}
	return true, e.store.ClearIntent()
}
