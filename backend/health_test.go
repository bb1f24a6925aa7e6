/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"context"
	"errors"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/log/logtest"
)

func logtestLogger() log.FieldLogger {
	return logtest.NewLogger()
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthProber(t *testing.T) {
	pinger := &mockPinger{}
	logger := logtest.NewRecorder()
	prober := NewHealthProber(pinger, logger, HealthProberOpts{})

	require.True(t, prober.IsUp(), "backend is considered available before the first check")
	require.Equal(t, float64(1), promtestutil.ToFloat64(prober.upGauge))

	pinger.err = errors.New("connection refused")
	require.NoError(t, prober.Run(context.Background()))
	require.False(t, prober.IsUp())
	require.Equal(t, float64(0), promtestutil.ToFloat64(prober.upGauge))
	_, found := logger.FindEntry("backend became unavailable")
	require.True(t, found)

	pinger.err = nil
	require.NoError(t, prober.Run(context.Background()))
	require.True(t, prober.IsUp())
	require.Equal(t, float64(1), promtestutil.ToFloat64(prober.upGauge))
	_, found = logger.FindEntry("backend became available")
	require.True(t, found)
}

func TestHealthProber_ShutdownKeepsState(t *testing.T) {
	pinger := &mockPinger{err: context.Canceled}
	prober := NewHealthProber(pinger, logtest.NewLogger(), HealthProberOpts{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, prober.Run(ctx))
	require.True(t, prober.IsUp())
}
