/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/inference-gateway/config"
	"github.com/acronis/inference-gateway/httpserver/middleware"
	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/log/logtest"
	"github.com/acronis/inference-gateway/testutil"
)

type capturedRequest struct {
	userAgent string
	requestID string
}

func newTestServer(t *testing.T, status int) (*httptest.Server, chan capturedRequest) {
	t.Helper()
	captured := make(chan capturedRequest, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		captured <- capturedRequest{userAgent: r.UserAgent(), requestID: r.Header.Get(middleware.HeaderRequestID)}
		rw.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestNewWithOpts(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK)

	collector := NewPrometheusMetricsCollector("")
	logger := logtest.NewRecorder()
	cfg := NewDefaultConfig()
	cfg.Log.Mode = LoggingModeAll
	cfg.Log.SlowRequestThreshold = 0
	client, err := NewWithOpts(cfg, Opts{
		UserAgent:      "inference-gateway/test",
		RequestType:    "backend",
		LoggerProvider: func(ctx context.Context) log.FieldLogger { return logger },
		Collector:      collector,
	})
	require.NoError(t, err)
	require.Zero(t, client.Timeout)

	ctx := middleware.NewContextWithRequestID(context.Background(), "req-1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/models", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	got := testutil.RequireSignal(t, captured, time.Second)
	require.Equal(t, "inference-gateway/test", got.userAgent)
	require.Equal(t, "req-1", got.requestID)

	hist := collector.Durations.WithLabelValues("backend", strings.TrimPrefix(srv.URL, "http://"), "GET /v1/models", "200")
	testutil.AssertSamplesCountInHistogram(t, hist, 1)

	entry, found := logger.FindEntryByFilter(func(e logtest.RecordedEntry) bool {
		return strings.HasPrefix(e.Text, "client http request GET /v1/models completed")
	})
	require.True(t, found)
	statusField, found := entry.FindField("client_status")
	require.True(t, found)
	require.EqualValues(t, http.StatusOK, statusField.Int)
}

func TestLoggingRoundTripper_Modes(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusServiceUnavailable)
	okSrv, _ := newTestServer(t, http.StatusOK)

	tests := []struct {
		name      string
		mode      LoggingMode
		url       string
		wantLevel log.Level
		wantFound bool
	}{
		{name: "failed mode logs failed request", mode: LoggingModeFailed, url: srv.URL, wantLevel: log.LevelWarn, wantFound: true},
		{name: "failed mode skips successful request", mode: LoggingModeFailed, url: okSrv.URL, wantFound: false},
		{name: "none mode skips failed request", mode: LoggingModeNone, url: srv.URL, wantFound: false},
		{name: "all mode logs successful request", mode: LoggingModeAll, url: okSrv.URL, wantLevel: log.LevelInfo, wantFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logtest.NewRecorder()
			rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "backend", LoggingRoundTripperOpts{Mode: tt.mode})
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			req.RequestURI = ""
			req = req.WithContext(middleware.NewContextWithLogger(req.Context(), logger))
			resp, err := rt.RoundTrip(req)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())

			entries := logger.Entries()
			if !tt.wantFound {
				require.Empty(t, entries)
				return
			}
			require.Len(t, entries, 1)
			require.Equal(t, tt.wantLevel, entries[0].Level)
		})
	}
}

func TestRateLimitingRoundTripper(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK)

	_, err := NewRateLimitingRoundTripper(http.DefaultTransport, 0)
	require.Error(t, err)

	rt, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 1, RateLimitingRoundTripperOpts{
		WaitTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	doReq := func() error {
		req, reqErr := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader([]byte("{}")))
		require.NoError(t, reqErr)
		resp, rtErr := rt.RoundTrip(req)
		if rtErr == nil {
			require.NoError(t, resp.Body.Close())
		}
		return rtErr
	}
	require.NoError(t, doReq())
	err = doReq()
	var waitErr *RateLimitingWaitError
	require.ErrorAs(t, err, &waitErr)
}

func TestUserAgentRoundTripper(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK)

	rt := &UserAgentRoundTripper{Delegate: http.DefaultTransport, UserAgent: "gw", UpdateStrategy: UserAgentUpdateStrategyAppend}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "client/1.0")
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "client/1.0 gw", testutil.RequireSignal(t, captured, time.Second).userAgent)
	require.Equal(t, "client/1.0", req.Header.Get("User-Agent"), "original request must not be modified")
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			yaml: ``,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, DefaultDialTimeout, cfg.Timeouts.Dial)
				require.True(t, cfg.Log.Enabled)
				require.Equal(t, LoggingModeFailed, cfg.Log.Mode)
				require.True(t, cfg.Metrics.Enabled)
				require.False(t, cfg.RateLimits.Enabled)
			},
		},
		{
			name: "custom values",
			yaml: `
timeouts:
  dial: 1s
  responseHeader: 30s
rateLimits:
  enabled: true
  limit: 100
  burst: 10
log:
  mode: all
metrics:
  enabled: false
`,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, time.Second, cfg.Timeouts.Dial)
				require.Equal(t, 30*time.Second, cfg.Timeouts.ResponseHeader)
				require.Equal(t, RateLimitConfig{Enabled: true, Limit: 100, Burst: 10}, cfg.RateLimits)
				require.Equal(t, LoggingModeAll, cfg.Log.Mode)
				require.False(t, cfg.Metrics.Enabled)
			},
		},
		{
			name:    "invalid log mode",
			yaml:    "log:\n  mode: sometimes\n",
			wantErr: "log.mode",
		},
		{
			name:    "non-positive rate limit",
			yaml:    "rateLimits:\n  enabled: true\n  limit: 0\n",
			wantErr: "rateLimits.limit: must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
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

func TestPrometheusMetricsCollector_MustRegisterWith(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewPrometheusMetricsCollector("gw")
	collector.MustRegisterWith(reg)
	collector.RequestDuration("backend", "localhost", "GET /", "200", time.Now())
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "gw_http_client_request_duration_seconds", families[0].GetName())
}
