package store

import (
	"path/filepath"

	"github.com/juju/errors"

	"github.com/keshon/codi/internal/util"
)

const intentName = ".merge-intent.json"

// Intent records a pair merge in flight: Update is being folded into Base.
type Intent struct {
	Base   string `json:"base"`
	Update string `json:"update"`
	// Edited is the update's edited stamp; once the base carries it the
	// merge has been committed.
	Edited string `json:"edited"`
}

func (s *Local) intentPath() string { return filepath.Join(s.root, intentName) }

func (s *Local) WriteIntent(in Intent) error {
	return errors.Annotatef(util.WriteJSON(s.fsys, s.intentPath(), in), "write merge intent")
}

// ReadIntent returns the pending intent, or nil when none is recorded.
func (s *Local) ReadIntent() (*Intent, error) {
	var in Intent
	if err := util.ReadJSON(s.fsys, s.intentPath(), &in); err != nil {
		if s.fsys.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "read merge intent")
	}
	return &in, nil
}

func (s *Local) ClearIntent() error {
	if err := s.fsys.Remove(s.intentPath()); err != nil && !s.fsys.IsNotExist(err) {
		return errors.Annotatef(err, "clear merge intent")
	}
	return nil
}
