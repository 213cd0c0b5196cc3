package logger

import "os"

// std is the process-wide logger used by the package-level functions.
// It starts at info/text and is reconfigured by Setup or the LOG_LEVEL
// and LOG_FORMAT environment variables.
var std = New(os.Stderr, LevelInfo, FormatText)

func init() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if level, err := ParseLevel(v); err == nil {
			std.SetLevel(level)
		}
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		if format, err := ParseFormat(v); err == nil {
			std.SetFormat(format)
		}
	}
}

// Setup reconfigures the process-wide logger from config strings. An
// unknown level or format is reported and the previous setting kept.
func Setup(level, format string) error {
	lv, err := ParseLevel(level)
	if err != nil {
		return err
	}
	fm, err := ParseFormat(format)
	if err != nil {
		return err
	}
	std.SetLevel(lv)
	std.SetFormat(fm)
	return nil
}

// Default returns the process-wide logger, for callers that want a
// component-scoped child.
func Default() *Logger { return std }

// SetDefault replaces the process-wide logger. Intended for tests.
func SetDefault(l *Logger) { std = l }

func Debug(msg string, fields ...Fields) { std.Debug(msg, fields...) }
func Info(msg string, fields ...Fields)  { std.Info(msg, fields...) }
func Warn(msg string, fields ...Fields)  { std.Warn(msg, fields...) }

func Error(msg string, err error, fields ...Fields) { std.Error(msg, err, fields...) }
func Fatal(msg string, err error, fields ...Fields) { std.Fatal(msg, err, fields...) }

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }
