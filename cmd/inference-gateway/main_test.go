/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/inference-gateway/internal/ratelimit"
	"github.com/acronis/inference-gateway/log"
)

func TestLoadAppConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadAppConfig("", "")
		require.NoError(t, err)
		require.Equal(t, "http://llama-backend:8080", cfg.Backend.BaseURL)
		require.Zero(t, cfg.Gateway.MaxConcurrency)
		require.Equal(t, ":8080", cfg.Server.Address)
		require.False(t, cfg.ProfServer.Enabled)
	})

	t.Run("legacy environment variables", func(t *testing.T) {
		t.Setenv("BACKEND_BASE_URL", "http://127.0.0.1:9000/")
		t.Setenv("GATEWAY_MAX_CONCURRENCY", "3")
		t.Setenv("INFERENCE_GATEWAY_LOG_LEVEL", "debug")
		cfg, err := loadAppConfig("", "")
		require.NoError(t, err)
		require.Equal(t, "http://127.0.0.1:9000", cfg.Backend.BaseURL)
		require.Equal(t, 3, cfg.Gateway.MaxConcurrency)
		require.Equal(t, log.LevelDebug, cfg.Log.Level)
	})

	t.Run("config and dotenv files", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte(`
server:
  address: ":9090"
gateway:
  maxConcurrency: 2
  rateLimit:
    enabled: true
    rate: 10
`), 0o600))
		envPath := filepath.Join(dir, "gateway.env")
		require.NoError(t, os.WriteFile(envPath, []byte("INFERENCE_GATEWAY_BACKEND_TIMEOUTS_REQUEST=2m\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("INFERENCE_GATEWAY_BACKEND_TIMEOUTS_REQUEST") })

		cfg, err := loadAppConfig(cfgPath, envPath)
		require.NoError(t, err)
		require.Equal(t, ":9090", cfg.Server.Address)
		require.Equal(t, 2, cfg.Gateway.MaxConcurrency)
		require.Equal(t, ratelimit.AlgLeakyBucket, cfg.Gateway.RateLimit.Alg)
		require.Equal(t, time.Second, cfg.Gateway.RateLimit.Period)
		require.Equal(t, 2*time.Minute, cfg.Backend.HTTPClient.Timeouts.Request)
	})

	t.Run("missing dotenv file", func(t *testing.T) {
		_, err := loadAppConfig("", filepath.Join(t.TempDir(), "missing.env"))
		require.Error(t, err)
	})
}
