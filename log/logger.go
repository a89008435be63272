// Package log provides the leveled logger shared by the accessor and
// the container backends. By default nothing is emitted below Info;
// a rotated log file can be attached for long-running embedders.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFormat = "2006-01-02 15:04:05"

// Logger writes leveled, name-prefixed lines. Child loggers created
// with Named share the parent's sink and level.
type Logger struct {
	mu     *sync.Mutex
	writer io.Writer
	name   string
	level  LogLevel
	color  bool
}

// Rotation configures the attached log file.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Option configures a logger.
type Option func(*config)

type config struct {
	level    LogLevel
	writer   io.Writer
	file     string
	rotation Rotation
	noColor  bool
}

// WithLevel sets the minimum level that is emitted.
func WithLevel(level LogLevel) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithWriter replaces the default stdout sink and disables colors.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writer = w
		c.noColor = true
	}
}

// WithFile attaches a rotated log file alongside the terminal sink.
func WithFile(path string, rotation Rotation) Option {
	return func(c *config) {
		c.file = path
		c.rotation = rotation
	}
}

// WithoutColor disables the level colors on the terminal sink.
func WithoutColor() Option {
	return func(c *config) {
		c.noColor = true
	}
}

// New creates a logger with the given root name.
func New(name string, opts ...Option) *Logger {
	cfg := config{
		level: Info,
		rotation: Rotation{
			MaxSizeMB:  64,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	writer := cfg.writer
	if writer == nil {
		writer = os.Stdout
	}

	if cfg.file != "" {
		writer = io.MultiWriter(writer, &lumberjack.Logger{
			Filename:   cfg.file,
			MaxSize:    cfg.rotation.MaxSizeMB,
			MaxBackups: cfg.rotation.MaxBackups,
			MaxAge:     cfg.rotation.MaxAgeDays,
			Compress:   cfg.rotation.Compress,
		})
	}

	return &Logger{
		mu:     &sync.Mutex{},
		writer: writer,
		name:   name,
		level:  cfg.level,
		color:  !cfg.noColor,
	}
}

// Noop returns a logger that discards everything. Backends fall back
// to it when no logger is configured.
func Noop() *Logger {
	return &Logger{
		mu:     &sync.Mutex{},
		writer: io.Discard,
		level:  levelOff,
	}
}

// Named returns a child logger with name appended to the prefix,
// writing through the parent's sink.
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "/" + name
	}

	return &Logger{
		mu:     l.mu,
		writer: l.writer,
		name:   name,
		level:  l.level,
		color:  l.color,
	}
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}

	line := fmt.Sprintf("[%s] %-5s [%s] %s",
		time.Now().Format(timeFormat), level, l.name, fmt.Sprintf(msg, args...))

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.color {
		fmt.Fprintf(l.writer, "%s%s\033[0m\n", level.color(), line)
	} else {
		fmt.Fprintln(l.writer, line)
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(Debug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(Info, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(Warn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(Error, msg, args...)
}
