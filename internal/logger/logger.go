// Package logger provides leveled, structured logging for the mosaic
// pipeline. Output is text or JSON, selected at startup; every long-running
// stage logs through the package-level functions so the level and format
// can be changed in one place.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is a log severity. Messages below the configured level are dropped.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a config string to a Level. Matching is case-insensitive
// and "warning" is accepted for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Format selects the wire shape of each log line.
type Format int8

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat maps a config string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// Fields carries structured key/value context for one log line.
type Fields = map[string]interface{}

// Logger writes leveled log lines to a single destination. The zero value
// is not usable; construct with New.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	format    Format
	component string
	exit      func(int)
}

// New returns a logger writing to out at the given level and format.
func New(out io.Writer, level Level, format Format) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{out: out, level: level, format: format, exit: os.Exit}
}

// WithComponent returns a logger that stamps every line with a component
// name. The child shares the parent's destination and level.
func (l *Logger) WithComponent(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{out: l.out, level: l.level, format: l.format, component: name, exit: l.exit}
}

// SetLevel changes the minimum severity that is written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetFormat changes the output shape.
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	l.format = format
	l.mu.Unlock()
}

type line struct {
	Time      string `json:"time"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) emit(level Level, msg string, err error, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	ln := line{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Component: l.component,
		Message:   msg,
		Fields:    fields,
	}
	if err != nil {
		ln.Error = err.Error()
	}

	switch l.format {
	case FormatJSON:
		buf, marshalErr := json.Marshal(ln)
		if marshalErr != nil {
			fmt.Fprintf(l.out, `{"time":%q,"level":"ERROR","message":"log marshal failed: %v"}`+"\n", ln.Time, marshalErr)
			break
		}
		l.out.Write(append(buf, '\n'))
	default:
		l.out.Write([]byte(formatText(ln)))
	}

	if level == LevelFatal {
		l.exit(1)
	}
}

// formatText renders one line as "time LEVEL [component] message k=v err".
// Field keys are sorted so output is stable.
func formatText(ln line) string {
	var b strings.Builder
	b.WriteString(ln.Time)
	b.WriteByte(' ')
	b.WriteString(ln.Level)
	if ln.Component != "" {
		b.WriteString(" [")
		b.WriteString(ln.Component)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(ln.Message)

	if len(ln.Fields) > 0 {
		keys := make([]string, 0, len(ln.Fields))
		for k := range ln.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, ln.Fields[k])
		}
	}
	if ln.Error != "" {
		fmt.Fprintf(&b, " error=%q", ln.Error)
	}
	b.WriteByte('\n')
	return b.String()
}

func first(fields []Fields) Fields {
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}

// Debug logs at debug level with optional structured fields.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.emit(LevelDebug, msg, nil, first(fields))
}

// Info logs at info level with optional structured fields.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.emit(LevelInfo, msg, nil, first(fields))
}

// Warn logs at warn level with optional structured fields.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.emit(LevelWarn, msg, nil, first(fields))
}

// Error logs at error level. err may be nil when the message stands alone.
func (l *Logger) Error(msg string, err error, fields ...Fields) {
	l.emit(LevelError, msg, err, first(fields))
}

// Fatal logs at fatal level and terminates the process.
func (l *Logger) Fatal(msg string, err error, fields ...Fields) {
	l.emit(LevelFatal, msg, err, first(fields))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, args...), nil, nil)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, args...), nil, nil)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.emit(LevelWarn, fmt.Sprintf(format, args...), nil, nil)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(LevelError, fmt.Sprintf(format, args...), nil, nil)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.emit(LevelFatal, fmt.Sprintf(format, args...), nil, nil)
}
