/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/inference-gateway/httpserver/middleware"
	"github.com/acronis/inference-gateway/log/logtest"
	"github.com/acronis/inference-gateway/restapi"
	"github.com/acronis/inference-gateway/testutil"
)

const testErrDomain = "TestDomain"

func startTestServer(t *testing.T, cfg *Config, opts Opts) (*HTTPServer, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	opts.Listener = ln
	opts.ErrorDomain = testErrDomain

	srv := New(cfg, logtest.NewLogger(), opts)
	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.Eventually(t, func() bool { return srv.GetPort() != 0 }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		require.NoError(t, srv.Stop(true))
		testutil.RequireNoErrorInChannel(t, fatalErr)
	})
	return srv, fmt.Sprintf("http://127.0.0.1:%d", srv.GetPort())
}

func TestHTTPServer(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Limits.MaxBodySizeBytes = 16
	cfg.CORS = CORSConfig{Enabled: true, AllowedOrigins: []string{"https://chat.example.com"}}

	var gotStartTime time.Time
	_, baseURL := startTestServer(t, cfg, Opts{
		APIRoutes: []APIRoute{func(router chi.Router) {
			router.Post("/v1/echo", func(rw http.ResponseWriter, r *http.Request) {
				gotStartTime = middleware.GetRequestStartTimeFromContext(r.Context())
				body, err := io.ReadAll(r.Body)
				if err != nil {
					rw.WriteHeader(http.StatusRequestEntityTooLarge)
					return
				}
				_, _ = rw.Write(body)
			})
			router.Get("/v1/panic", func(http.ResponseWriter, *http.Request) {
				panic("boom")
			})
		}},
		HealthCheckContext: NewBackendHealthCheck(staticBackendStatus(false)),
	})

	t.Run("api route", func(t *testing.T) {
		resp, err := http.Post(baseURL+"/v1/echo", "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "hello", string(body))
		require.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID))
		require.NotEmpty(t, resp.Header.Get(middleware.HeaderInternalRequestID))
		require.False(t, gotStartTime.IsZero())
	})

	t.Run("request id is propagated", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/echo", strings.NewReader("hi"))
		require.NoError(t, err)
		req.Header.Set(middleware.HeaderRequestID, "client-req-1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, "client-req-1", resp.Header.Get(middleware.HeaderRequestID))
	})

	t.Run("request body is too large", func(t *testing.T) {
		resp, err := http.Post(baseURL+"/v1/echo", "text/plain", bytes.NewReader(make([]byte, 17)))
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		testutil.RequireErrorInResponse(t, resp, http.StatusRequestEntityTooLarge, testErrDomain, restapi.ErrCodeRequestTooLarge)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/v1/panic")
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		testutil.RequireErrorInResponse(t, resp, http.StatusInternalServerError, testErrDomain, restapi.ErrCodeInternal)
	})

	t.Run("not found", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/v1/unknown")
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		testutil.RequireErrorInResponse(t, resp, http.StatusNotFound, testErrDomain, restapi.ErrCodeNotFound)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/v1/echo")
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		testutil.RequireErrorInResponse(t, resp, http.StatusMethodNotAllowed, testErrDomain, restapi.ErrCodeMethodNotAllowed)
	})

	t.Run("health-check", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/healthz")
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"components":{"backend":false}}`, string(body))
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/metrics")
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "go_goroutines")
	})

	t.Run("CORS preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, baseURL+"/v1/echo", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://chat.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, "https://chat.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestHTTPServer_StopWaitsForInFlightRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handlerStarted := make(chan struct{})
	srv := New(NewDefaultConfig(), logtest.NewLogger(), Opts{
		Listener: ln,
		APIRoutes: []APIRoute{func(router chi.Router) {
			router.Get("/v1/slow", func(rw http.ResponseWriter, _ *http.Request) {
				close(handlerStarted)
				time.Sleep(100 * time.Millisecond)
				_, _ = rw.Write([]byte("done"))
			})
		}},
	})
	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.Eventually(t, func() bool { return srv.GetPort() != 0 }, time.Second, 5*time.Millisecond)

	respCh := make(chan string, 1)
	go func() {
		resp, getErr := http.Get(fmt.Sprintf("http://127.0.0.1:%d/v1/slow", srv.GetPort()))
		if getErr != nil {
			respCh <- getErr.Error()
			return
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		respCh <- string(body)
	}()
	testutil.RequireSignal(t, handlerStarted, time.Second)

	require.NoError(t, srv.Stop(true))
	require.Equal(t, "done", testutil.RequireSignal(t, respCh, time.Second))
	testutil.RequireNoErrorInChannel(t, fatalErr)
}
