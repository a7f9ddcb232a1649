package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/keshon/codi/internal/fs"
)

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}

// Load reads, fills and validates the config at path. The format
// follows the extension; anything but .toml and .json is read as YAML.
func Load(fsys fs.FS, path string) (*Config, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "read config")
	}
	expanded := []byte(expandEnvVars(string(data)))

	nested := unsetRetention()
	cfg := Config{Retention: unsetRetention(), Nested: &nested}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(expanded), &cfg); err != nil {
			return nil, errors.Annotatef(ErrInvalid, "parse %s: %v", path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(expanded))
		if err := dec.Decode(&cfg); err != nil {
			return nil, errors.Annotatef(ErrInvalid, "parse %s: %v", path, err)
		}
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Annotatef(ErrInvalid, "parse %s: %v", path, err)
		}
	}

	cfg.Path = path
	cfg.fill()
	if err := cfg.resolvePaths(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
