/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/inference-gateway/config"
	"github.com/acronis/inference-gateway/httpclient"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, cfg *Config) {
				want := NewDefaultConfig()
				require.Equal(t, want.BaseURL, cfg.BaseURL)
				require.Equal(t, want.UserAgent, cfg.UserAgent)
				require.Equal(t, want.StreamBufferSize, cfg.StreamBufferSize)
				require.Equal(t, want.MaxErrorBodySize, cfg.MaxErrorBodySize)
				require.Equal(t, want.HealthCheck, cfg.HealthCheck)
				require.False(t, cfg.StartupProbe.Enabled)
				require.Zero(t, cfg.HTTPClient.Timeouts.Request)
				require.Equal(t, httpclient.DefaultDialTimeout, cfg.HTTPClient.Timeouts.Dial)
			},
		},
		{
			name: "base URL from legacy env var with trailing slash",
			env:  map[string]string{BaseURLEnvVar: "http://localhost:9000/"},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "http://localhost:9000", cfg.BaseURL)
			},
		},
		{
			name: "custom values",
			yaml: `
backend:
  baseURL: https://llm.internal
  timeouts:
    dial: 1s
    request: 2m
  streamBufferSize: 4K
  maxErrorBodySize: 64K
  healthCheck:
    enabled: false
  startupProbe:
    enabled: true
    maxAttempts: 3
    initialInterval: 100ms
`,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "https://llm.internal", cfg.BaseURL)
				require.Equal(t, 2*time.Minute, cfg.HTTPClient.Timeouts.Request)
				require.Equal(t, time.Second, cfg.HTTPClient.Timeouts.Dial)
				require.EqualValues(t, 4*1024, cfg.StreamBufferSize)
				require.EqualValues(t, 64*1024, cfg.MaxErrorBodySize)
				require.False(t, cfg.HealthCheck.Enabled)
				require.Equal(t, StartupProbeConfig{Enabled: true, MaxAttempts: 3, InitialInterval: 100 * time.Millisecond}, cfg.StartupProbe)
			},
		},
		{
			name:    "invalid base URL",
			yaml:    "backend:\n  baseURL: llama-backend:8080\n",
			wantErr: "backend.baseURL: must be an absolute http(s) URL",
		},
		{
			name:    "zero health check interval",
			yaml:    "backend:\n  healthCheck:\n    interval: 0s\n",
			wantErr: "backend.healthCheck.interval: must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.yaml), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
