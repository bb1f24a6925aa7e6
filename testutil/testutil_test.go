/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsHelpers(t *testing.T) {
	histVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "queue_wait_seconds"}, []string{"endpoint"})
	hist := histVec.WithLabelValues("/v1/chat/completions")
	hist.Observe(0.5)
	hist.Observe(1.5)
	RequireSamplesCountInHistogram(t, hist, 2)
	require.True(t, AssertHistogramSum(t, hist, func(sum float64) bool { return sum == 2 }))

	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cancels_total"}, []string{"endpoint"})
	counterVec.WithLabelValues("/v1/chat/completions").Add(3)
	RequireCounterValue(t, counterVec.WithLabelValues("/v1/chat/completions"), 3)
}

func TestRequireErrorInRecorder(t *testing.T) {
	resp := httptest.NewRecorder()
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(http.StatusServiceUnavailable)
	_, _ = resp.WriteString(`{"error":{"domain":"InferenceGateway","code":"serviceUnavailable"}}`)
	RequireErrorInRecorder(t, resp, http.StatusServiceUnavailable, "InferenceGateway", "serviceUnavailable")
}

func TestWaitListeningServer(t *testing.T) {
	addr := GetLocalAddrWithFreeTCPPort()
	require.Error(t, WaitListeningServer(addr, 30*time.Millisecond))

	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	require.NoError(t, WaitListeningServer(addr, time.Second))
}

func TestChannelHelpers(t *testing.T) {
	errs := make(chan error, 1)
	RequireNoErrorInChannel(t, errs)

	done := make(chan int, 1)
	done <- 42
	require.Equal(t, 42, RequireSignal(t, done, time.Second))

	errs <- errors.New("unexpected")
	require.Len(t, errs, 1)
}
