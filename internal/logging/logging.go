// Package logging builds the slog logger used by hostbridge: text to stderr
// by default, or JSON to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler built by New. Zero values mean info level,
// text on Stderr and 10 MB files.
type Options struct {
	Level     string
	File      string
	MaxSizeMB int
	// MaxFiles < 0 keeps 5 backups; 0 keeps none.
	MaxFiles int
	Stderr   io.Writer
}

// ParseLevel accepts debug, info, warn and error, case-insensitively. The
// empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level: %s", s)
}

// New builds a logger from opts. The returned closer releases the log file,
// if any, and must be called once the logger is no longer used.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if opts.File == "" {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nopCloser{}, nil
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxFiles := opts.MaxFiles
	if maxFiles < 0 {
		maxFiles = 5
	}
	w, err := NewRotatingFileWriter(opts.File, maxSize, maxFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts)), w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
