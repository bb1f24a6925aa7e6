/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/inference-gateway/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		check   func(t *testing.T, cfg *Config)
		wantErr string
	}{
		{
			name:    "defaults",
			cfgData: ``,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, LevelInfo, cfg.Level)
				require.Equal(t, FormatJSON, cfg.Format)
				require.Equal(t, OutputStdout, cfg.Output)
				require.EqualValues(t, DefaultFileRotationMaxSizeBytes, cfg.File.Rotation.MaxSize)
				require.Equal(t, DefaultFileRotationMaxBackups, cfg.File.Rotation.MaxBackups)
				require.Equal(t, defaultErrorVerboseSuffix, cfg.Error.VerboseSuffix)
			},
		},
		{
			name: "custom values",
			cfgData: `
log:
  level: DEBUG
  format: text
  output: file
  addCaller: true
  file:
    path: /var/log/gateway.log
    rotation:
      maxSize: 100M
      maxBackups: 3
      compress: true
`,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, LevelDebug, cfg.Level)
				require.Equal(t, FormatText, cfg.Format)
				require.Equal(t, OutputFile, cfg.Output)
				require.True(t, cfg.AddCaller)
				require.Equal(t, "/var/log/gateway.log", cfg.File.Path)
				require.EqualValues(t, 100*1024*1024, cfg.File.Rotation.MaxSize)
				require.Equal(t, 3, cfg.File.Rotation.MaxBackups)
				require.True(t, cfg.File.Rotation.Compress)
			},
		},
		{
			name:    "unknown level",
			cfgData: "log:\n  level: trace\n",
			wantErr: `log.level: unknown value "trace", should be one of [error warn info debug]`,
		},
		{
			name:    "file output without path",
			cfgData: "log:\n  output: file\n",
			wantErr: `log.file.path: cannot be empty when "file" output is used`,
		},
		{
			name:    "too small rotation size",
			cfgData: "log:\n  file:\n    rotation:\n      maxSize: 1K\n",
			wantErr: "log.file.rotation.maxSize: should be >= 1M",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestConfig_KeyPrefix(t *testing.T) {
	require.Equal(t, "log", NewConfig().KeyPrefix())
	require.Equal(t, "gateway.log", NewConfig(WithKeyPrefix("gateway.log")).KeyPrefix())
	require.Equal(t, LevelInfo, NewDefaultConfig().Level)
}
