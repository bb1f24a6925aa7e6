/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package log wraps ssgreg/logf into the FieldLogger interface used across the gateway.
package log

import (
	"time"

	"github.com/ssgreg/logf"
)

// Field is a typed key-value pair attached to a log entry.
type Field = logf.Field

// LogFunc logs a message at a level bound by FieldLogger.AtLevel.
// nolint: revive
type LogFunc = logf.LogFunc

// CloseFunc flushes and stops the asynchronous writer created by NewLogger.
type CloseFunc logf.ChannelWriterCloseFunc

// Field constructors.
var (
	Error    = logf.Error
	String   = logf.String
	Int      = logf.Int
	Int64    = logf.Int64
	Float64  = logf.Float64
	Bool     = logf.Bool
	Bytes    = logf.Bytes
	Duration = logf.Duration
)

// Millis returns a Field with the duration expressed in fractional milliseconds.
// Queue wait and time-to-first-token are logged this way.
func Millis(key string, val time.Duration) Field {
	return Float64(key, float64(val.Microseconds())/1000)
}

// FieldLogger writes structured log entries.
type FieldLogger interface {
	With(...Field) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	AtLevel(Level, func(LogFunc))
	WithLevel(level Level) FieldLogger
}
