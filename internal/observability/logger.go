// Package observability provides the logging surface shared by every
// component of the batch operation core.
package observability

import (
	"fmt"
	"log"
	"os"
	"time"
)

// StandardLogger is a logger implementation that uses the standard log package.
type StandardLogger struct {
	prefix string
	level  LogLevel
	logger *log.Logger
}

// NewStandardLogger creates a new StandardLogger with the given prefix.
func NewStandardLogger(prefix string) Logger {
	// Write to stderr so callers piping stdout elsewhere still see operational logs.
	return &StandardLogger{
		prefix: prefix,
		level:  LogLevelInfo,
		logger: log.New(os.Stderr, "", 0),
	}
}

// WithLevel returns a new logger with the specified log level.
func (l *StandardLogger) WithLevel(level LogLevel) *StandardLogger {
	return &StandardLogger{prefix: l.prefix, level: level, logger: l.logger}
}

func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelDebug) {
		l.log(LogLevelDebug, msg, fields)
	}
}

func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelInfo) {
		l.log(LogLevelInfo, msg, fields)
	}
}

func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelWarn) {
		l.log(LogLevelWarn, msg, fields)
	}
}

func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LogLevelError, msg, fields)
}

func (l *StandardLogger) Fatal(msg string, fields map[string]interface{}) {
	l.log(LogLevelFatal, msg, fields)
	os.Exit(1)
}

// WithPrefix returns a new logger with the given prefix.
func (l *StandardLogger) WithPrefix(prefix string) Logger {
	return &StandardLogger{prefix: prefix, level: l.level, logger: l.logger}
}

// With returns a new logger with the given fields folded into the prefix.
// The underlying implementation is line-oriented, so fields are carried
// forward as a prefix annotation rather than structured state.
func (l *StandardLogger) With(fields map[string]interface{}) Logger {
	if len(fields) == 0 {
		return l
	}
	return &StandardLogger{prefix: l.prefix + l.formatFields(fields), level: l.level, logger: l.logger}
}

func (l *StandardLogger) formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	result := ""
	for k, v := range fields {
		result += fmt.Sprintf(" %s=%v", k, v)
	}
	return result
}

func (l *StandardLogger) levelEnabled(level LogLevel) bool {
	levelHierarchy := map[LogLevel]int{
		LogLevelDebug: 0,
		LogLevelInfo:  1,
		LogLevelWarn:  2,
		LogLevelError: 3,
		LogLevelFatal: 4,
	}
	return levelHierarchy[level] >= levelHierarchy[l.level]
}

func (l *StandardLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	logPrefix := fmt.Sprintf("%s [%s] [%s]", timestamp, level, l.prefix)
	fieldsStr := l.formatFields(fields)
	l.logger.Printf("%s %s%s", logPrefix, msg, fieldsStr)
	if level == LogLevelFatal {
		os.Exit(1)
	}
}

func (l *StandardLogger) Debugf(format string, args ...interface{}) {
	if l.levelEnabled(LogLevelDebug) {
		l.log(LogLevelDebug, fmt.Sprintf(format, args...), nil)
	}
}

func (l *StandardLogger) Infof(format string, args ...interface{}) {
	if l.levelEnabled(LogLevelInfo) {
		l.log(LogLevelInfo, fmt.Sprintf(format, args...), nil)
	}
}

func (l *StandardLogger) Warnf(format string, args ...interface{}) {
	if l.levelEnabled(LogLevelWarn) {
		l.log(LogLevelWarn, fmt.Sprintf(format, args...), nil)
	}
}

func (l *StandardLogger) Errorf(format string, args ...interface{}) {
	l.log(LogLevelError, fmt.Sprintf(format, args...), nil)
}

func (l *StandardLogger) Fatalf(format string, args ...interface{}) {
	l.log(LogLevelFatal, fmt.Sprintf(format, args...), nil)
}

// NoopLogger is a logger that does nothing. It is the zero-configuration
// default for callers that don't want batch-core log output.
type NoopLogger struct{}

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Fatal(msg string, fields map[string]interface{}) {}

func (l *NoopLogger) Debugf(format string, args ...interface{}) {}
func (l *NoopLogger) Infof(format string, args ...interface{})  {}
func (l *NoopLogger) Warnf(format string, args ...interface{})  {}
func (l *NoopLogger) Errorf(format string, args ...interface{}) {}
func (l *NoopLogger) Fatalf(format string, args ...interface{}) {}

func (l *NoopLogger) WithPrefix(prefix string) Logger           { return l }
func (l *NoopLogger) With(fields map[string]interface{}) Logger { return l }

// NewNoopLogger creates a new NoopLogger.
func NewNoopLogger() Logger { return &NoopLogger{} }

// NewLogger creates a new logger with the given prefix. This is the primary
// logger factory used throughout the batch core.
func NewLogger(prefix string) Logger {
	if prefix == "" {
		prefix = "batchcore"
	}
	return NewStandardLogger(prefix)
}
