/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"os"

	"github.com/ssgreg/logf"
)

// LogfAdapter implements FieldLogger on top of *logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

// NewDisabledLogger returns a logger that drops every entry.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger creates an asynchronous logger writing to the output selected in cfg.
// The returned CloseFunc must be called on exit, otherwise buffered entries are lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(logfLevel(cfg.Level), channel).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		// Skip the adapter frame.
		logger = logger.WithCaller().WithCallerSkip(1)
	}
	return &LogfAdapter{logger}, CloseFunc(closeFunc)
}

func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

func (l *LogfAdapter) Debug(s string, fields ...Field) { l.Logger.Debug(s, fields...) }
func (l *LogfAdapter) Info(s string, fields ...Field)  { l.Logger.Info(s, fields...) }
func (l *LogfAdapter) Warn(s string, fields ...Field)  { l.Logger.Warn(s, fields...) }
func (l *LogfAdapter) Error(s string, fields ...Field) { l.Logger.Error(s, fields...) }

func (l *LogfAdapter) Debugf(format string, args ...interface{}) { l.printf(LevelDebug, format, args) }
func (l *LogfAdapter) Infof(format string, args ...interface{})  { l.printf(LevelInfo, format, args) }
func (l *LogfAdapter) Warnf(format string, args ...interface{})  { l.printf(LevelWarn, format, args) }
func (l *LogfAdapter) Errorf(format string, args ...interface{}) { l.printf(LevelError, format, args) }

// printf formats the message only when the level is enabled.
func (l *LogfAdapter) printf(level Level, format string, args []interface{}) {
	l.AtLevel(level, func(logFunc LogFunc) {
		logFunc(fmt.Sprintf(format, args...))
	})
}

// AtLevel calls fn with a LogFunc bound to level if that level is enabled.
func (l *LogfAdapter) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.Logger.AtLevel(logfLevel(level), fn)
}

// WithLevel returns a logger that additionally drops entries below level.
// The level can only be raised this way.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.WithLevel(logfLevel(level))}
}

var logfLevels = map[Level]logf.Level{
	LevelError: logf.LevelError,
	LevelWarn:  logf.LevelWarn,
	LevelInfo:  logf.LevelInfo,
	LevelDebug: logf.LevelDebug,
}

func logfLevel(level Level) logf.Level {
	if l, ok := logfLevels[level]; ok {
		return l
	}
	return logf.LevelInfo
}
