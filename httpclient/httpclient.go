/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/acronis/inference-gateway/log"
)

const defaultKeepAlive = 30 * time.Second

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// UserAgent is a user agent string.
	UserAgent string

	// RequestType is a type of request (e.g. "inference-backend"). It's used in logs and metrics.
	RequestType string

	// Delegate is the next RoundTripper in the chain.
	// If not set, a clone of http.DefaultTransport with configured timeouts is used.
	Delegate http.RoundTripper

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector.
	Collector MetricsCollector
}

// New wraps delegate transports with logging, metrics, rate limiting, user agent, request id
// and returns an error if any occurs.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts wraps delegate transports with options
// logging, metrics, rate limiting, user agent, request id
// and returns an error if any occurs.
// The returned client has no total timeout, since it would cut long-lived streaming responses.
// Callers should bound non-streaming requests via the context.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	var err error
	delegate := opts.Delegate
	if delegate == nil {
		delegate = NewTransport(cfg.Timeouts)
	}

	if cfg.Log.Enabled {
		logOpts := cfg.Log.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, logOpts)
	}

	if cfg.Metrics.Enabled {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.Collector,
		})
	}

	if cfg.RateLimits.Enabled {
		delegate, err = NewRateLimitingRoundTripperWithOpts(delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts())
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	return &http.Client{Transport: delegate}, nil
}

// MustWithOpts wraps delegate transports with options
// logging, metrics, rate limiting, user agent, request id
// and panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}

// NewTransport returns a clone of http.DefaultTransport with the given timeouts applied.
// Transparent compression is disabled so SSE chunks are delivered as soon as they are received.
func NewTransport(timeouts TimeoutsConfig) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if timeouts.Dial > 0 {
		dialer := &net.Dialer{Timeout: timeouts.Dial, KeepAlive: defaultKeepAlive}
		tr.DialContext = dialer.DialContext
	}
	tr.ResponseHeaderTimeout = timeouts.ResponseHeader
	tr.DisableCompression = true
	return tr
}
