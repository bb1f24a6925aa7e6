/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/inference-gateway/httpserver/middleware"
	"github.com/acronis/inference-gateway/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

var availableLoggingModes = []string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging requests.
// Note that for streaming responses it measures the time until response headers are received.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	ReqType  string
	Opts     LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider is a function that provides a context-specific logger.
	// middleware.GetLoggerFromContext is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed. "all" is used by default.
	Mode LoggingMode

	// SlowRequestThreshold is a threshold for slow requests.
	// Successful requests faster than it are not logged.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that log requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that log requests with options.
func NewLoggingRoundTripperWithOpts(delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, ReqType: reqType, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return middleware.GetLoggerFromContext(ctx)
}

// RoundTrip adds logging capabilities to the HTTP transport.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.AddTimeSlotDurationInMs(fmt.Sprintf("external_request_%s_ms", rt.ReqType), elapsed)
	}

	logger := rt.getLogger(ctx)
	if logger == nil {
		return resp, err
	}
	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	if !failed && (rt.Opts.Mode == LoggingModeFailed || elapsed < rt.Opts.SlowRequestThreshold) {
		return resp, err
	}

	fields := []log.Field{
		log.String("client_type", rt.ReqType),
		log.String("client_method", r.Method),
		log.String("client_url", r.URL.String()),
		log.Int64("client_duration_ms", elapsed.Milliseconds()),
	}
	if err != nil {
		logger.Error(fmt.Sprintf("client http request %s %s failed", r.Method, r.URL.Path), append(fields, log.Error(err))...)
		return resp, err
	}
	fields = append(fields, log.Int("client_status", resp.StatusCode))
	if failed {
		logger.Warn(fmt.Sprintf("client http request %s %s completed with status %d",
			r.Method, r.URL.Path, resp.StatusCode), fields...)
	} else {
		logger.Info(fmt.Sprintf("client http request %s %s completed in %.3fs",
			r.Method, r.URL.Path, elapsed.Seconds()), fields...)
	}
	return resp, err
}
