package snapshot

import (
	"time"

	"github.com/juju/errors"
)

// Tier is the retention coarseness of a record. Tiers are totally
// ordered from Minute (finest) to Base (the root of history).
type Tier int

const (
	Minute Tier = iota
	Hour
	Day
	Week
	Month
	Year
	Base
)

const day = 24 * time.Hour

var tierNames = [...]string{"minute", "hour", "day", "week", "month", "year", "base"}

// short tags used by earlier state files
var tierAliases = map[string]Tier{
	"min": Minute, "h": Hour, "d": Day, "w": Week, "m": Month, "y": Year, "b": Base,
}

// Tiers lists every tier from finest to coarsest.
func Tiers() []Tier {
	return []Tier{Minute, Hour, Day, Week, Month, Year, Base}
}

func (t Tier) Valid() bool { return t >= Minute && t <= Base }

func (t Tier) String() string {
	if !t.Valid() {
		return "unknown"
	}
	return tierNames[t]
}

// Next returns the next coarser tier. Base is terminal.
func (t Tier) Next() Tier {
	if t >= Base {
		return Base
	}
	return t + 1
}

// Unit is the length of one retention window of the tier. Months and
// years are fixed 28- and 336-day spans.
func (t Tier) Unit() time.Duration {
	switch t {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return day
	case Week:
		return 7 * day
	case Month:
		return 28 * day
	case Year:
		return 12 * 28 * day
	}
	return 0
}

// ParseTier accepts the long names and the short tags.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if s == name {
			return Tier(i), nil
		}
	}
	if t, ok := tierAliases[s]; ok {
		return t, nil
	}
	return 0, errors.NotValidf("tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, errors.NotValidf("tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
