/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/acronis/inference-gateway/httpserver/middleware"
)

// RequestIDRoundTripper sets X-Request-ID header in outgoing requests, so backend logs may be correlated with ours.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper
	Opts     RequestIDRoundTripperOpts
}

// RequestIDRoundTripperOpts represents an options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider returns the request id for the given context.
	// middleware.GetRequestIDFromContext is used by default.
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support and options.
func NewRequestIDRoundTripperWithOpts(delegate http.RoundTripper, opts RequestIDRoundTripperOpts) http.RoundTripper {
	if opts.RequestIDProvider == nil {
		opts.RequestIDProvider = middleware.GetRequestIDFromContext
	}
	return &RequestIDRoundTripper{Delegate: delegate, Opts: opts}
}

// RoundTrip adds X-Request-ID header to the request if it's not set yet.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(middleware.HeaderRequestID) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	requestID := rt.Opts.RequestIDProvider(r.Context())
	if requestID == "" {
		return rt.Delegate.RoundTrip(r)
	}
	r = r.Clone(r.Context()) // Per RoundTripper contract.
	r.Header.Set(middleware.HeaderRequestID, requestID)
	return rt.Delegate.RoundTrip(r)
}
