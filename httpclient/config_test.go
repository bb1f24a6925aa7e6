/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/inference-gateway/config"
)

func TestConfig_Timeouts(t *testing.T) {
	const cfgData = `
timeouts:
  dial: 2s
  responseHeader: 30s
  request: 2m
`
	dp := config.NewViperAdapter()
	require.NoError(t, dp.SetFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML))
	cfg := &Config{}
	cfg.SetProviderDefaults(dp)
	require.NoError(t, cfg.Set(dp))

	want := TimeoutsConfig{Dial: 2 * time.Second, ResponseHeader: 30 * time.Second, Request: 2 * time.Minute}
	require.Equal(t, want, cfg.Timeouts)

	// Struct tags must match the keys, so the section can be decoded as a whole too.
	var decoded TimeoutsConfig
	require.NoError(t, dp.UnmarshalKey("timeouts", &decoded, config.WithErrorUnused()))
	require.Equal(t, want, decoded)
}

func TestConfig_NegativeRequestTimeout(t *testing.T) {
	dp := config.NewViperAdapter()
	require.NoError(t, dp.SetFromReader(bytes.NewBufferString("timeouts:\n  request: -1s\n"), config.DataTypeYAML))
	cfg := &Config{}
	cfg.SetProviderDefaults(dp)
	require.EqualError(t, cfg.Set(dp), "timeouts.request: cannot be negative")
}
