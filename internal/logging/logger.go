// Package logging provides the compiler and runtime's operational
// logger, distinct from the SIR diagnostic surface (internal/diag),
// which is reserved for errors shown to the SIR author (spec.md
// §4.9). Adapted from the teacher's kernel/utils/logger.go, dropping
// the WASM/js console bridge since sircc never targets js/wasm.
package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
	Fatal: "FATAL",
}

var levelColors = map[Level]string{
	Debug: "\033[36m",
	Info:  "\033[32m",
	Warn:  "\033[33m",
	Error: "\033[31m",
	Fatal: "\033[35m",
}

const colorReset = "\033[0m"

// ParseLevel maps SIRCC_LOG_LEVEL's accepted spellings to a Level,
// defaulting to Info for anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return Debug
	case "WARN", "WARNING":
		return Warn
	case "ERROR":
		return Error
	case "FATAL":
		return Fatal
	default:
		return Info
	}
}

// Logger is a small leveled, component-tagged logger writing
// formatted text lines to an io.Writer (spec.md §4.9).
type Logger struct {
	mu         sync.Mutex
	level      Level
	component  string
	output     io.Writer
	colorize   bool
	showCaller bool
	timeFormat string
}

// Config configures a new Logger.
type Config struct {
	Level      Level
	Component  string
	Output     io.Writer
	Colorize   bool
	ShowCaller bool
	TimeFormat string
}

// New creates a logger from config, filling in sensible defaults.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "15:04:05.000"
	}
	return &Logger{
		level:      cfg.Level,
		component:  cfg.Component,
		output:     cfg.Output,
		colorize:   cfg.Colorize,
		showCaller: cfg.ShowCaller,
		timeFormat: cfg.TimeFormat,
	}
}

// Default builds a logger for component at Info level, colorized,
// writing to stderr.
func Default(component string) *Logger {
	return New(Config{
		Level:     Info,
		Component: component,
		Output:    os.Stderr,
		Colorize:  true,
	})
}

// With returns a derived logger tagged with a sub-component name,
// e.g. logger.With("aio-worker").
func (l *Logger) With(component string) *Logger {
	return &Logger{
		level:      l.level,
		component:  component,
		output:     l.output,
		colorize:   l.colorize,
		showCaller: l.showCaller,
		timeFormat: l.timeFormat,
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

// Fatal logs at Fatal and exits the process with status 1.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.log(Fatal, msg, fields...)
	os.Exit(1)
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var b strings.Builder
	if l.colorize {
		b.WriteString(levelColors[level])
	}
	b.WriteString("[")
	b.WriteString(time.Now().Format(l.timeFormat))
	b.WriteString("] [")
	b.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	b.WriteString("] ")
	if l.component != "" {
		b.WriteString("[")
		b.WriteString(l.component)
		b.WriteString("] ")
	}
	b.WriteString(msg)

	for i, f := range fields {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(" ")
		}
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.format())
	}

	if l.showCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			parts := strings.Split(file, "/")
			b.WriteString(fmt.Sprintf(" (%s:%d)", parts[len(parts)-1], line))
		}
	}

	if l.colorize {
		b.WriteString(colorReset)
	}
	b.WriteString("\n")
	l.output.Write([]byte(b.String()))
}

// Field is a structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

func (f Field) format() string {
	switch v := f.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func Str(k, v string) Field       { return Field{Key: k, Value: v} }
func Int(k string, v int) Field   { return Field{Key: k, Value: v} }
func Err(err error) Field         { return Field{Key: "err", Value: err} }
func Dur(k string, d time.Duration) Field { return Field{Key: k, Value: d} }
