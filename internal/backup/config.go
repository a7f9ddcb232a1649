package backup

import (
	"time"

	"github.com/keshon/codi/internal/config"
	"github.com/keshon/codi/internal/store"
)

// OptionsFromConfig maps a loaded configuration onto engine options.
// Clock, logger, progress and journal are left to the caller.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	kind, err := store.ParseKind(cfg.Container)
	if err != nil {
		return Options{}, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Root:        cfg.Destination,
		Kind:        kind,
		Sources:     cfg.Sources,
		Ignore:      cfg.Ignore,
		Algorithm:   cfg.Hash,
		Workers:     cfg.Workers,
		Policy:      policy,
		LockTimeout: time.Duration(cfg.LockTimeout),
	}, nil
}
