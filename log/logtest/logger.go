/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"

	"github.com/acronis/inference-gateway/log"
)

// syncWriter encodes entries synchronously, so nothing is lost when a test ends.
type syncWriter struct {
	mu      sync.Mutex
	encoder logf.Encoder
	out     io.Writer
}

//nolint:gocritic
func (w *syncWriter) WriteEntry(e logf.Entry) {
	var buf logf.Buffer
	if err := w.encoder.Encode(&buf, e); err != nil {
		return
	}
	w.mu.Lock()
	_, _ = w.out.Write(buf.Data)
	w.mu.Unlock()
}

// NewLogger returns a debug-level JSON logger writing to stderr.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOutput(os.Stderr)
}

// NewLoggerWithOutput is like NewLogger but writes to out.
func NewLoggerWithOutput(out io.Writer) log.FieldLogger {
	w := &syncWriter{
		encoder: logf.NewJSONEncoder(logf.JSONEncoderConfig{FieldKeyTime: "time", EncodeTime: logf.RFC3339NanoTimeEncoder}),
		out:     out,
	}
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}
}
