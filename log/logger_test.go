/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ssgreg/logf"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gateway.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = logPath
	cfg.Level = LevelInfo

	logger, closeFn := NewLogger(cfg)
	logger.Debug("hidden")
	logger.With(String("endpoint", "/v1/models")).Info("request handled", Int("status", 200))
	logger.Error("backend unavailable", Error(errors.New("connection refused")))
	closeFn()

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, entries, 2)

	require.Equal(t, "info", entries[0]["level"])
	require.Equal(t, "request handled", entries[0]["msg"])
	require.Equal(t, "/v1/models", entries[0]["endpoint"])
	require.EqualValues(t, 200, entries[0]["status"])
	require.EqualValues(t, os.Getpid(), entries[0]["pid"])

	require.Equal(t, "error", entries[1]["level"])
	require.Equal(t, "connection refused", entries[1]["error"])
}

func TestLogfAdapter_WithLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gateway.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = logPath
	cfg.Level = LevelDebug

	logger, closeFn := NewLogger(cfg)
	warnLogger := logger.WithLevel(LevelWarn)
	warnLogger.Infof("skipped %d", 1)
	warnLogger.Warnf("queue is %s", "full")
	closeFn()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.NotContains(t, string(data), "skipped")
	require.Contains(t, string(data), `"msg":"queue is full"`)
}

func TestMillis(t *testing.T) {
	f := Millis("queue_wait_ms", 1500*time.Microsecond)
	require.Equal(t, "queue_wait_ms", f.Key)
}

func TestTextFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = FormatText
	cfg.NoColor = true

	var buf bytes.Buffer
	channel, closeFn := logf.NewChannelWriter(logf.ChannelWriterConfig{Appender: newAppenderWithWriter(cfg, &buf)})
	logger := &LogfAdapter{logf.NewLogger(logf.LevelDebug, channel)}
	logger.Warn("queue rejected", String("endpoint", "/v1/chat/completions"))
	closeFn()

	require.Contains(t, buf.String(), "queue rejected")
	require.Contains(t, buf.String(), "/v1/chat/completions")
}

func TestExpandFilePath(t *testing.T) {
	got := expandFilePath("/var/log/gateway-{{pid}}-{{starttime}}.log")
	require.Equal(t, fmt.Sprintf("/var/log/gateway-%d-", os.Getpid()), got[:len(got)-len("200601021504.log")])
	require.NotContains(t, got, "{{")
}
