// Package logging builds the process logger: zerolog to stderr, optionally
// pretty-printed, optionally teed into a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. Zero values select defaults.
type Options struct {
	Level string
	// Pretty selects zerolog.ConsoleWriter for the console output.
	Pretty bool
	// File, when set, receives JSON lines rotated by lumberjack.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console defaults to os.Stderr.
	Console io.Writer
}

// Option mutates Options.
type Option func(*Options)

func WithLevel(level string) Option  { return func(o *Options) { o.Level = level } }
func WithPretty(pretty bool) Option  { return func(o *Options) { o.Pretty = pretty } }
func WithConsole(w io.Writer) Option { return func(o *Options) { o.Console = w } }
func WithLogFile(path string) Option { return func(o *Options) { o.File = path } }
func WithRotation(sizeMB, backups, ageDays int) Option {
	return func(o *Options) {
		o.MaxSizeMB, o.MaxBackups, o.MaxAgeDays = sizeMB, backups, ageDays
	}
}

// ParseLevel maps a configured level name to zerolog. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "off", "disabled":
		return zerolog.Disabled, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

// New builds a logger. The returned closer flushes and closes the rotated
// file, if any; it is never nil.
func New(opts ...Option) (zerolog.Logger, io.Closer, error) {
	o := Options{Console: os.Stderr}
	for _, fn := range opts {
		fn(&o)
	}
	lvl, err := ParseLevel(o.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	console := o.Console
	if o.Pretty {
		console = zerolog.ConsoleWriter{Out: o.Console, TimeFormat: time.RFC3339}
	}
	var (
		w      io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0o755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(console, lj)
		closer = lj
	}
	l := zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "dermd").Logger()
	return l, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
