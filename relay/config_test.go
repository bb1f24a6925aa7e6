/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/inference-gateway/config"
	"github.com/acronis/inference-gateway/internal/ratelimit"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		want    Config
		wantErr string
	}{
		{
			name: "defaults",
			want: Config{},
		},
		{
			name: "max concurrency from environment",
			env:  map[string]string{MaxConcurrencyEnvVar: "4"},
			want: Config{MaxConcurrency: 4},
		},
		{
			name: "custom",
			yaml: `
gateway:
  maxConcurrency: 2
  backlogLimit: 16
  backlogTimeout: 30s
  retryAfter: 5s
  rateLimit:
    enabled: true
    alg: sliding_window
    rate: 100
    period: 1m
    byClientIP: true
`,
			want: Config{
				MaxConcurrency: 2,
				BacklogLimit:   16,
				BacklogTimeout: 30 * time.Second,
				RetryAfter:     5 * time.Second,
				RateLimit: ratelimit.Config{
					Enabled:    true,
					Alg:        ratelimit.AlgSlidingWindow,
					Rate:       100,
					Period:     time.Minute,
					ByClientIP: true,
					MaxKeys:    ratelimit.DefaultMaxKeys,
				},
			},
		},
		{
			name:    "negative concurrency",
			yaml:    "gateway:\n  maxConcurrency: -1\n",
			wantErr: "gateway.maxConcurrency: cannot be negative",
		},
		{
			name:    "negative backlog timeout",
			yaml:    "gateway:\n  backlogTimeout: -1s\n",
			wantErr: "gateway.backlogTimeout: cannot be negative",
		},
		{
			name:    "invalid rate limit",
			yaml:    "gateway:\n  rateLimit:\n    enabled: true\n    rate: 0\n",
			wantErr: "gateway.rateLimit.rate: must be positive",
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
			tt.want.keyPrefix = cfgDefaultKeyPrefix
			require.Equal(t, tt.want, *cfg)
		})
	}
}
