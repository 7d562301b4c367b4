package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
)

var levelColors = map[Level]string{
	WarnLevel:  ColorYellow,
	ErrorLevel: ColorRed,
	FatalLevel: ColorBold + ColorRed,
}

// DefaultLogger writes one line per entry through the standard log package.
// Debug and Info go to the out writer; Warn, Error and Fatal go to errOut,
// colored when the logger was built for a terminal.
type DefaultLogger struct {
	out     *log.Logger
	errOut  *log.Logger
	level   *Level
	fields  Fields
	colored bool
}

// NewDefaultLogger logs to stdout and stderr, with colors if stdout is a
// terminal.
func NewDefaultLogger() *DefaultLogger {
	return NewWriterLogger(os.Stdout, os.Stderr, stdoutIsTerminal())
}

// NewWriterLogger creates a logger writing Debug/Info to out and Warn/Error/Fatal to errOut.
func NewWriterLogger(out, errOut io.Writer, colors bool) *DefaultLogger {
	level := InfoLevel
	return &DefaultLogger{
		out:     log.New(out, "", log.LstdFlags),
		errOut:  log.New(errOut, "", log.LstdFlags),
		level:   &level,
		fields:  Fields{},
		colored: colors,
	}
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func merge(sets ...Fields) Fields {
	merged := Fields{}
	for _, f := range sets {
		maps.Copy(merged, f)
	}
	return merged
}

// line renders "[LEVEL] msg: err k=v ..." with keys sorted.
func (d *DefaultLogger) line(level Level, err error, msg string, extra []Fields) string {
	var b strings.Builder
	b.WriteString("[" + level.String() + "] " + msg)
	if err != nil {
		b.WriteString(": " + err.Error())
	}

	fields := merge(append([]Fields{d.fields}, extra...)...)
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}

	if color, ok := levelColors[level]; ok && d.colored {
		return color + b.String() + ColorReset
	}
	return b.String()
}

func (d *DefaultLogger) emit(level Level, err error, msg string, extra []Fields) {
	if level < *d.level {
		return
	}
	dst := d.out
	if level >= WarnLevel {
		dst = d.errOut
	}
	dst.Println(d.line(level, err, msg, extra))
}

func (d *DefaultLogger) Debug(msg string, fields ...Fields) { d.emit(DebugLevel, nil, msg, fields) }
func (d *DefaultLogger) Info(msg string, fields ...Fields)  { d.emit(InfoLevel, nil, msg, fields) }
func (d *DefaultLogger) Warn(msg string, fields ...Fields)  { d.emit(WarnLevel, nil, msg, fields) }

func (d *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	d.emit(ErrorLevel, err, msg, fields)
}

// Fatal logs and exits with status 1 regardless of the configured level.
func (d *DefaultLogger) Fatal(err error, msg string, fields ...Fields) {
	d.errOut.Println(d.line(FatalLevel, err, msg, fields))
	os.Exit(1)
}

// WithFields returns a child logger. Children share the parent's level, so
// SetLevel on the root logger also applies to loggers derived earlier.
func (d *DefaultLogger) WithFields(fields Fields) Logger {
	child := *d
	child.fields = merge(d.fields, fields)
	return &child
}

func (d *DefaultLogger) WithContext(ctx context.Context) Logger {
	fields, ok := fieldsFromContext(ctx)
	if !ok {
		return d
	}
	return d.WithFields(fields)
}

func (d *DefaultLogger) SetLevel(level Level) {
	*d.level = level
}

// NoOpLogger discards everything; tests and embedders that want silence use it.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Fields)            {}
func (n *NoOpLogger) Info(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Warn(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Error(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) Fatal(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) WithFields(fields Fields) Logger               { return n }
func (n *NoOpLogger) WithContext(ctx context.Context) Logger        { return n }
func (n *NoOpLogger) SetLevel(level Level)                          {}
