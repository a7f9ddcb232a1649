// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const EnvLevel = "CODI_LOG_LEVEL"

// Options carries the level candidates in precedence order.
type Options struct {
	Flag    string
	Config  string
	Verbose bool
	Output  io.Writer
}

// Setup installs the default logger. The level comes from the flag,
// then $CODI_LOG_LEVEL, then the config file. Verbose forces debug. An
// invalid flag is an error; invalid env or config values fall back to
// info and are reported in the returned warning.
func Setup(opts Options) (*slog.Logger, string, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	env := os.Getenv(EnvLevel)
	raw, source := selectLevel(opts.Flag, env, opts.Config)

	var warning string
	level, err := ParseLevel(raw)
	if err != nil {
		switch source {
		case "flag":
			return nil, "", fmt.Errorf("invalid --log-level %q", opts.Flag)
		case "env":
			warning = fmt.Sprintf("warning: invalid %s=%q; defaulting to info", EnvLevel, env)
		case "config":
			warning = fmt.Sprintf("warning: invalid log_level=%q; defaulting to info", opts.Config)
		}
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, warning, nil
}

func selectLevel(flagLevel, envLevel, configLevel string) (string, string) {
	if strings.TrimSpace(flagLevel) != "" {
		return flagLevel, "flag"
	}
	if strings.TrimSpace(envLevel) != "" {
		return envLevel, "env"
	}
	if strings.TrimSpace(configLevel) != "" {
		return configLevel, "config"
	}
	return "", "default"
}

// ParseLevel accepts slog level names, "warning" and numeric levels.
// Empty means info.
func ParseLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}
