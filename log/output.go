/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newAppender(cfg *Config) logf.Appender {
	var w io.Writer
	switch cfg.Output {
	case OutputFile:
		rotation := cfg.File.Rotation
		w = &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path),
			MaxSize:    int(rotation.MaxSize / (1 << 20)),
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
		}
	case OutputStderr:
		w = os.Stderr
	default:
		w = os.Stdout
	}
	return newAppenderWithWriter(cfg, w)
}

func newAppenderWithWriter(cfg *Config, w io.Writer) logf.Appender {
	var encodeErr logf.ErrorEncoder
	if cfg.Error.NoVerbose || cfg.Error.VerboseSuffix != "" {
		encodeErr = logf.NewErrorEncoder(logf.ErrorEncoderConfig{
			NoVerboseField:     cfg.Error.NoVerbose,
			VerboseFieldSuffix: cfg.Error.VerboseSuffix,
		})
	}
	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:     &noColor,
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: encodeErr,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  encodeErr,
	}))
}

// expandFilePath substitutes {{pid}} and {{starttime}} in the log file path,
// so several gateway replicas may share a log directory.
func expandFilePath(path string) string {
	return strings.NewReplacer(
		"{{pid}}", strconv.Itoa(os.Getpid()),
		"{{starttime}}", time.Now().Format("200601021504"),
	).Replace(path)
}
