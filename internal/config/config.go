// Package config loads the backup configuration from YAML, TOML or
// JSON and validates it.
package config

import (
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/hashing"
	"github.com/keshon/codi/internal/retention"
	"github.com/keshon/codi/internal/snapshot"
	"github.com/keshon/codi/internal/store"
)

const ErrInvalid = errors.ConstError("invalid configuration")

const (
	DefaultSchedule    = "@every 15m"
	DefaultLockTimeout = 10 * time.Second
	DefaultDebounce    = 2 * time.Second
	DefaultLogLevel    = "info"
)

// unsetCount marks a retention key absent from the file, so an
// explicit 0 still reaches Validate.
const unsetCount = math.MinInt

// Retention is the number of windows a record spends in each tier.
type Retention struct {
	Minutes int `yaml:"minutes" toml:"minutes" json:"minutes"`
	Hours   int `yaml:"hours" toml:"hours" json:"hours"`
	Days    int `yaml:"days" toml:"days" json:"days"`
	Weeks   int `yaml:"weeks" toml:"weeks" json:"weeks"`
	Months  int `yaml:"months" toml:"months" json:"months"`
	Years   int `yaml:"years" toml:"years" json:"years"`
}

type Config struct {
	Destination string   `yaml:"destination" toml:"destination" json:"destination"`
	Container   string   `yaml:"container" toml:"container" json:"container"`
	Hash        string   `yaml:"hash" toml:"hash" json:"hash"`
	Sources     []string `yaml:"sources" toml:"sources" json:"sources"`
	// Folders is the legacy name for Sources.
	Folders []string `yaml:"folders" toml:"folders" json:"folders"`
	Ignore  []string `yaml:"ignore" toml:"ignore" json:"ignore"`

	Retention `yaml:",inline"`
	Nested    *Retention `yaml:"retention" toml:"retention" json:"retention"`

	MergeWindows map[string]Duration `yaml:"merge_windows" toml:"merge_windows" json:"merge_windows"`

	Workers     int      `yaml:"workers" toml:"workers" json:"workers"`
	LockTimeout Duration `yaml:"lock_timeout" toml:"lock_timeout" json:"lock_timeout"`
	Journal     *bool    `yaml:"journal" toml:"journal" json:"journal"`

	Schedule string   `yaml:"schedule" toml:"schedule" json:"schedule"`
	WatchFS  bool     `yaml:"watch_fs" toml:"watch_fs" json:"watch_fs"`
	Debounce Duration `yaml:"debounce" toml:"debounce" json:"debounce"`

	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	// Path is the file the config was read from.
	Path string `yaml:"-" toml:"-" json:"-"`
}

// Default returns the configuration values used for unset keys.
func Default() Config {
	p := retention.DefaultPolicy()
	return Config{
		Container: string(store.Dir),
		Hash:      hashing.DefaultAlgorithm,
		Retention: Retention{
			Minutes: p.Counts[snapshot.Minute],
			Hours:   p.Counts[snapshot.Hour],
			Days:    p.Counts[snapshot.Day],
			Weeks:   p.Counts[snapshot.Week],
			Months:  p.Counts[snapshot.Month],
			Years:   p.Counts[snapshot.Year],
		},
		Workers:     runtime.NumCPU(),
		LockTimeout: Duration(DefaultLockTimeout),
		Schedule:    DefaultSchedule,
		Debounce:    Duration(DefaultDebounce),
		LogLevel:    DefaultLogLevel,
	}
}

// fill copies defaults into unset fields and folds aliases.
func (c *Config) fill() {
	d := Default()
	if c.Container == "" {
		c.Container = d.Container
	}
	if c.Hash == "" {
		c.Hash = d.Hash
	}
	if len(c.Sources) == 0 {
		c.Sources = c.Folders
	}
	c.Folders = nil
	if c.Nested != nil {
		overlay(&c.Retention, *c.Nested)
		c.Nested = nil
	}
	// zero and negative values are left for Validate
	fillInt(&c.Minutes, d.Minutes)
	fillInt(&c.Hours, d.Hours)
	fillInt(&c.Days, d.Days)
	fillInt(&c.Weeks, d.Weeks)
	fillInt(&c.Months, d.Months)
	fillInt(&c.Years, d.Years)
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = d.LockTimeout
	}
	if c.Journal == nil {
		on := true
		c.Journal = &on
	}
	if c.Schedule == "" {
		c.Schedule = d.Schedule
	}
	if c.Debounce == 0 {
		c.Debounce = d.Debounce
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

func unsetRetention() Retention {
	return Retention{unsetCount, unsetCount, unsetCount, unsetCount, unsetCount, unsetCount}
}

func overlay(dst *Retention, src Retention) {
	for _, f := range []struct {
		dst *int
		src int
	}{
		{&dst.Minutes, src.Minutes}, {&dst.Hours, src.Hours}, {&dst.Days, src.Days},
		{&dst.Weeks, src.Weeks}, {&dst.Months, src.Months}, {&dst.Years, src.Years},
	} {
		if f.src != unsetCount {
			*f.dst = f.src
		}
	}
}

func fillInt(v *int, def int) {
	if *v == unsetCount {
		*v = def
	}
}

// Validate reports every problem found, annotated onto ErrInvalid.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Destination) == "" {
		problems = append(problems, "destination is required")
	}
	if len(c.Sources) == 0 {
		problems = append(problems, "at least one source is required")
	}
	if _, err := store.ParseKind(c.Container); err != nil {
		problems = append(problems, err.Error())
	}
	if !hashing.Supported(c.Hash) {
		problems = append(problems, "unsupported hash "+c.Hash)
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be positive")
	}
	if c.LockTimeout < 0 || c.Debounce < 0 {
		problems = append(problems, "durations must not be negative")
	}
	if _, err := c.Policy(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return errors.Annotatef(ErrInvalid, "%s", strings.Join(problems, "; "))
	}
	return nil
}

// Policy builds the retention policy.
func (c *Config) Policy() (retention.Policy, error) {
	p := retention.Policy{Counts: map[snapshot.Tier]int{
		snapshot.Minute: c.Minutes,
		snapshot.Hour:   c.Hours,
		snapshot.Day:    c.Days,
		snapshot.Week:   c.Weeks,
		snapshot.Month:  c.Months,
		snapshot.Year:   c.Years,
	}}
	if len(c.MergeWindows) > 0 {
		p.MergeWindows = make(map[snapshot.Tier]time.Duration, len(c.MergeWindows))
		for name, w := range c.MergeWindows {
			t, err := snapshot.ParseTier(name)
			if err != nil {
				return p, errors.Annotate(err, "merge_windows")
			}
			p.MergeWindows[t] = time.Duration(w)
		}
	}
	return p, p.Validate()
}

func (c *Config) JournalEnabled() bool { return c.Journal == nil || *c.Journal }

// Duration accepts Go duration strings ("90s", "1h30m").
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return errors.NotValidf("duration %q", string(b))
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
