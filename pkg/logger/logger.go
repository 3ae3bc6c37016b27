// Package logger configures the standard library logger, optionally teeing
// output into a size-rotated file.
package logger

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output goes.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu     sync.RWMutex
	output io.Writer = os.Stdout
	closer io.Closer
)

// Setup points the global logger (and every logger made by New afterwards) at
// stdout, plus a rotating file when opts.File is set.
func Setup(opts Options) io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		closer.Close()
		closer = nil
	}

	w := io.Writer(os.Stdout)
	if opts.File != "" {
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = 50
		}
		if opts.MaxBackups <= 0 {
			opts.MaxBackups = 5
		}
		if opts.MaxAgeDays <= 0 {
			opts.MaxAgeDays = 30
		}
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		closer = rotating
		w = io.MultiWriter(os.Stdout, rotating)
	}

	output = w
	log.SetOutput(w)
	return w
}

// New returns a logger with a "[component] " prefix.
func New(component string) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.New(output, "["+component+"] ", log.LstdFlags)
}

// Discard is a logger for tests.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Close flushes and closes the rotating file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}
