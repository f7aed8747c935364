// ABOUTME: Root zerolog logger for the binaries
// ABOUTME: Writes to the console, a rotated log file, or both
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jrick/logrotate/rotator"
	"github.com/rs/zerolog"
)

const (
	rotateThresholdKB = 1024
	maxLogFiles       = 8
)

// Options selects where log output goes.
type Options struct {
	Level string // zerolog level name, "info" when empty
	File  string // rotated log file, none when empty
	JSON  bool   // JSON on the console instead of the human format
	Quiet bool   // no console output; useful when a TUI owns the terminal
	// Console overrides os.Stderr
	Console io.Writer
}

// backend fans writes out to the console and the rotator. A failing
// rotator never stops console output.
type backend struct {
	mu      sync.Mutex
	console io.Writer
	rotator *rotator.Rotator
}

func (b *backend) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.console != nil {
		_, _ = b.console.Write(p)
	}
	if b.rotator != nil {
		_, _ = b.rotator.Write(p)
	}
	return len(p), nil
}

// Logger is the root logger together with the resources it holds.
type Logger struct {
	zerolog.Logger
	rotator *rotator.Rotator
}

// New builds the root logger.
func New(opts Options) (*Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	b := &backend{}
	if !opts.Quiet {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		if opts.JSON {
			b.console = console
		} else {
			b.console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.TimeOnly}
		}
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		r, err := rotator.New(opts.File, rotateThresholdKB, false, maxLogFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %w", err)
		}
		b.rotator = r
	}

	var w io.Writer = b
	if b.console == nil && b.rotator == nil {
		w = io.Discard
	}
	return &Logger{
		Logger:  zerolog.New(w).Level(level).With().Timestamp().Logger(),
		rotator: b.rotator,
	}, nil
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}
