package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	Level  string
	Format string
	File   string
	Writer io.Writer
}

type Logger struct {
	base   zerolog.Logger
	closer io.Closer
}

// New returns an info-level logger writing to stdout in the given format.
func New(format string) *Logger {
	logger, err := Open(Options{Format: format})
	if err != nil {
		return &Logger{base: zerolog.New(os.Stdout).With().Timestamp().Logger()}
	}
	return logger
}

// Open builds a logger from options. When File is set, entries are written to
// both the primary writer and the file.
func Open(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	out := formatWriter(writer, opts.Format)
	var closer io.Closer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	base := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{base: base, closer: closer}, nil
}

func formatWriter(w io.Writer, format string) io.Writer {
	if strings.EqualFold(format, "text") {
		return zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	return w
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.write(zerolog.DebugLevel, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.write(zerolog.InfoLevel, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.write(zerolog.WarnLevel, msg, fields...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.write(zerolog.ErrorLevel, msg, fields...)
}

// With returns a child logger that always carries the given fields.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return nil
	}
	ctx := l.base.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Logger{base: ctx.Logger()}
}

func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) write(level zerolog.Level, msg string, fields ...Field) {
	if l == nil {
		return
	}
	event := l.base.WithLevel(level)
	if event == nil {
		return
	}
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			event = event.AnErr(f.Key, err)
			continue
		}
		event = event.Interface(f.Key, f.Value)
	}
	event.Msg(msg)
}

type Field struct {
	Key   string
	Value interface{}
}
