// Package logging builds the component loggers used across the daemon.
//
// Each component gets a stdlib logger with a bracketed prefix. When a
// log file is configured, output goes through a size-rotated file;
// otherwise it goes to stderr.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the shared log destination.
type Options struct {
	// File enables rotated file logging when non-empty.
	File string

	// MaxSizeMB is the rotation threshold per file.
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep.
	MaxBackups int
}

// Sink builds the shared writer for all component loggers.
func Sink(opts Options) io.Writer {
	if opts.File == "" {
		return os.Stderr
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
}

// Component returns a logger writing to w with a "[name] " prefix.
func Component(w io.Writer, name string) *log.Logger {
	return log.New(w, "["+name+"] ", log.LstdFlags)
}
