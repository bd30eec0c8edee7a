/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package log provides structured logging for the broker and its collaborators.
// It wraps github.com/ssgreg/logf behind the FieldLogger interface.
package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a single key-value pair of a log entry.
type Field = logf.Field

// CloseFunc flushes buffered entries and releases the output. It must be called before the daemon exits.
type CloseFunc logf.ChannelWriterCloseFunc

// Field constructors.
var (
	// Error returns a Field with the "error" key.
	Error = logf.Error
	// String returns a Field with the given key and string value.
	String = logf.String
	// Bytes returns a Field with the given key and raw bytes (e.g. a stack trace).
	Bytes = logf.Bytes
	// Int returns a Field with the given key and int value.
	Int = logf.Int
	// Int64 returns a Field with the given key and int64 value.
	Int64 = logf.Int64
	// Duration returns a Field with the given key and time.Duration value.
	Duration = logf.Duration
)

// DurationIn returns a Field with the "duration" key and val expressed in whole units (e.g. milliseconds).
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", val.Nanoseconds()/unit.Nanoseconds())
}

// FieldLogger writes structured log entries.
type FieldLogger interface {
	With(...Field) FieldLogger
	WithLevel(level Level) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})
}

// LogfAdapter implements FieldLogger on top of logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{Logger: logf.NewDisabledLogger()}
}

// NewLogger creates a logger writing asynchronously to the configured output.
// Every entry carries the "pid" field.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, openOutput(cfg)),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(toLogfLevel(cfg.Level), channel).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		// Skip the adapter's own frame.
		logger = logger.WithCaller().WithCallerSkip(1)
	}
	return &LogfAdapter{Logger: logger}, CloseFunc(closeFunc)
}

// With returns a logger that adds the given fields to every entry.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.With(fs...)}
}

// WithLevel returns a logger that also drops entries below the given level.
// The level can only be raised this way.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.WithLevel(toLogfLevel(level))}
}

// Debug logs at "debug" level.
func (l *LogfAdapter) Debug(s string, fields ...Field) { l.Logger.Debug(s, fields...) }

// Info logs at "info" level.
func (l *LogfAdapter) Info(s string, fields ...Field) { l.Logger.Info(s, fields...) }

// Warn logs at "warn" level.
func (l *LogfAdapter) Warn(s string, fields ...Field) { l.Logger.Warn(s, fields...) }

// Error logs at "error" level.
func (l *LogfAdapter) Error(s string, fields ...Field) { l.Logger.Error(s, fields...) }

// Debugf logs a formatted message at "debug" level.
func (l *LogfAdapter) Debugf(format string, args ...interface{}) { l.logFormatted(LevelDebug, format, args) }

// Infof logs a formatted message at "info" level.
func (l *LogfAdapter) Infof(format string, args ...interface{}) { l.logFormatted(LevelInfo, format, args) }

// Warnf logs a formatted message at "warn" level.
func (l *LogfAdapter) Warnf(format string, args ...interface{}) { l.logFormatted(LevelWarn, format, args) }

// Errorf logs a formatted message at "error" level.
func (l *LogfAdapter) Errorf(format string, args ...interface{}) { l.logFormatted(LevelError, format, args) }

// logFormatted formats the message only if the level is enabled.
func (l *LogfAdapter) logFormatted(level Level, format string, args []interface{}) {
	l.Logger.AtLevel(toLogfLevel(level), func(logFunc logf.LogFunc) {
		logFunc(fmt.Sprintf(format, args...))
	})
}

func toLogfLevel(level Level) logf.Level {
	switch level {
	case LevelError:
		return logf.LevelError
	case LevelWarn:
		return logf.LevelWarn
	case LevelDebug:
		return logf.LevelDebug
	default:
		return logf.LevelInfo
	}
}

func openOutput(cfg *Config) io.Writer {
	switch cfg.Output {
	case OutputFile:
		rotation := cfg.File.Rotation
		return &lumberjack.Logger{
			Filename:   resolvePlaceholders(cfg.File.Path),
			MaxSize:    int(rotation.MaxSize / 1024 / 1024),
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
			LocalTime:  rotation.LocalTimeInNames,
		}
	case OutputStderr:
		return os.Stderr
	default:
		return os.Stdout
	}
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{NoColor: &noColor, EncodeTime: logf.RFC3339NanoTimeEncoder})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		FieldKeyTime: "time",
	}))
}

// resolvePlaceholders expands {{starttime}} and {{pid}} in the log file path,
// so several daemon instances on one host never share a file.
func resolvePlaceholders(filePath string) string {
	return strings.NewReplacer(
		"{{starttime}}", time.Now().Format("200601021504"),
		"{{pid}}", strconv.Itoa(os.Getpid()),
	).Replace(filePath)
}
