package retention

import (
	"time"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/snapshot"
)

// Policy holds how many windows a record spends in each tier before it
// is promoted, and the merge windows used when compacting a tier.
type Policy struct {
	Counts map[snapshot.Tier]int
	// MergeWindows overrides DefaultMergeWindow per tier.
	MergeWindows map[snapshot.Tier]time.Duration
}

// DefaultPolicy keeps an hour of minute records, a day of hourly ones,
// a week of daily ones, a month of weekly ones, a year of monthly ones
// and two yearly ones.
func DefaultPolicy() Policy {
	return Policy{Counts: map[snapshot.Tier]int{
		snapshot.Minute: 60,
		snapshot.Hour:   24,
		snapshot.Day:    7,
		snapshot.Week:   4,
		snapshot.Month:  12,
		snapshot.Year:   2,
	}}
}

// promotable lists the tiers a record can be promoted out of.
var promotable = []snapshot.Tier{
	snapshot.Minute, snapshot.Hour, snapshot.Day, snapshot.Week, snapshot.Month, snapshot.Year,
}

func (p Policy) Validate() error {
	for _, t := range promotable {
		if p.Counts[t] < 1 {
			return errors.NotValidf("retention for %s tier must be positive, got %d", t, p.Counts[t])
		}
	}
	for t, w := range p.MergeWindows {
		if t == snapshot.Minute || !t.Valid() {
			return errors.NotValidf("merge window for %s tier", t)
		}
		if w <= 0 {
			return errors.NotValidf("merge window for %s tier must be positive, got %s", t, w)
		}
	}
	return nil
}

// Threshold is the age past which a record leaves tier t: the windows
// of t and every finer tier added up.
func (p Policy) Threshold(t snapshot.Tier) time.Duration {
	var total time.Duration
	for _, tier := range promotable {
		if tier > t {
			break
		}
		total += time.Duration(p.Counts[tier]) * tier.Unit()
	}
	return total
}

// DefaultMergeWindow is one tier unit less a minute. Base has none.
func DefaultMergeWindow(t snapshot.Tier) time.Duration {
	if t == snapshot.Minute || t == snapshot.Base {
		return 0
	}
	return t.Unit() - time.Minute
}

// MergeWindow returns the window for compacting tier t; unbounded is
// true for Base, which merges unconditionally.
func (p Policy) MergeWindow(t snapshot.Tier) (window time.Duration, unbounded bool) {
	if t == snapshot.Base {
		return 0, true
	}
	if w, ok := p.MergeWindows[t]; ok {
		return w, false
	}
	return DefaultMergeWindow(t), false
}

// shouldMerge reports whether newer falls inside older's merge window.
func (p Policy) shouldMerge(t snapshot.Tier, older, newer *snapshot.Record) bool {
	window, unbounded := p.MergeWindow(t)
	if unbounded {
		return true
	}
	return newer.Edited.Before(older.Created.Add(window))
}
