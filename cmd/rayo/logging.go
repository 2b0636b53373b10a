package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
)

// setupLogging installs the process logger. With debug it writes to stderr;
// otherwise it appends to cfg.LogFile (default ~/.rayo/rayo.log) so the
// terminal stays clean.
func setupLogging(cfg *config.Config, debug bool) (*slog.Logger, func(), error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var (
		w       io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if debug {
		level = slog.LevelDebug
	} else {
		path := cfg.LogFile
		if path == "" {
			p, err := config.UserConfigPath()
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(filepath.Dir(p), "rayo.log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, errors.Wrapf(err, "could not create log directory")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "could not open log file '%s'", path)
		}
		w = f
		closeFn = func() { f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, errors.New("invalid log_level '%s' (expected debug, info, warn or error)", s)
	}
	return level, nil
}
