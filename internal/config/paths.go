package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

const (
	EnvConfig   = "CODI_CONFIG"
	DefaultFile = "codi.yaml"
)

// ResolvePath picks the config file: the flag value, then $CODI_CONFIG,
// then ./codi.yaml.
func ResolvePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfig)); env != "" {
		return env
	}
	return DefaultFile
}

// resolvePaths makes destination and sources absolute. Relative paths
// are taken from the config file's directory.
func (c *Config) resolvePaths(base string) error {
	var err error
	if c.Destination != "" {
		if c.Destination, err = absPath(base, c.Destination); err != nil {
			return err
		}
	}
	for i, s := range c.Sources {
		if c.Sources[i], err = absPath(base, s); err != nil {
			return err
		}
	}
	return nil
}

func absPath(base, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Annotatef(err, "expand %s", p)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	abs, err := filepath.Abs(p)
	return abs, errors.Trace(err)
}
