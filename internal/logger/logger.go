/*
Copyright © 2025 Docker, Inc.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package logger holds the process wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global logger instance. It discards everything until Init is called.
	Log = zerolog.Nop()

	// fileWriter is the optional rotated file sink.
	fileWriter *lumberjack.Logger
)

// Options configures the global logger.
type Options struct {
	// Level is a zerolog level name (debug, info, warn, error).
	Level string
	// File, when set, receives JSON log lines in addition to the console.
	File string
	// MaxSizeMB bounds the log file before it is rotated. Defaults to 10.
	MaxSizeMB int
	// Console is the human readable sink. Defaults to stderr.
	Console io.Writer
	// NoColor disables ANSI colors on the console.
	NoColor bool
}

// Init (re)initializes the global logger.
func Init(opts Options) error {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("unable to parse log level: %w", err)
		}
		level = parsed
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	}

	if err := CloseFileWriter(); err != nil {
		return err
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		fileWriter = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			LocalTime:  true,
		}
		output = io.MultiWriter(output, fileWriter)
	}

	Log = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return nil
}

// CloseFileWriter closes the file sink if there is one.
func CloseFileWriter() error {
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// FilePath returns the current log file, or an empty string.
func FilePath() string {
	if fileWriter != nil {
		return fileWriter.Filename
	}
	return ""
}

func Debug() *zerolog.Event { return Log.Debug() }

func Info() *zerolog.Event { return Log.Info() }

func Warn() *zerolog.Event { return Log.Warn() }

func Error() *zerolog.Event { return Log.Error() }

// WithField returns a child logger carrying key=value on every entry.
func WithField(key string, value any) zerolog.Logger {
	return Log.With().Interface(key, value).Logger()
}
