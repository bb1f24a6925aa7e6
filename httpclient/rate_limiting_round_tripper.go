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

	"golang.org/x/time/rate"
)

// Defaults for RateLimitingRoundTripperOpts.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperOpts holds optional parameters of RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
}

// RateLimitingRoundTripper delays outgoing requests so that no more than RateLimit requests per second
// reach the backend (token bucket). It smooths bursts that an unlimited admission gate lets through.
// A request that cannot get a token within WaitTimeout fails with *RateLimitingWaitError.
type RateLimitingRoundTripper struct {
	Delegate    http.RoundTripper
	RateLimit   int
	Burst       int
	WaitTimeout time.Duration

	limiter *rate.Limiter
}

// NewRateLimitingRoundTripper is NewRateLimitingRoundTripperWithOpts with default options.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a RateLimitingRoundTripper. Zero options take default values.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	switch {
	case rateLimit <= 0:
		return nil, fmt.Errorf("rate limit must be positive, got %d", rateLimit)
	case opts.Burst < 0:
		return nil, fmt.Errorf("burst cannot be negative, got %d", opts.Burst)
	}
	rt := &RateLimitingRoundTripper{
		Delegate:    delegate,
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
	}
	if rt.Burst == 0 {
		rt.Burst = DefaultRateLimitingBurst
	}
	if rt.WaitTimeout == 0 {
		rt.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	rt.limiter = rate.NewLimiter(rate.Limit(rateLimit), rt.Burst)
	return rt, nil
}

// RoundTrip waits for a token and passes the request to Delegate.
// The wait timeout bounds only the wait, the request itself keeps its own context.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	waitCtx, cancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	err := rt.limiter.Wait(waitCtx)
	cancel()
	if err == nil {
		return rt.Delegate.RoundTrip(r)
	}

	if r.Body != nil {
		_ = r.Body.Close() // RoundTripper must close the body even on errors.
	}
	if ctxErr := r.Context().Err(); ctxErr != nil {
		// The client went away while waiting.
		return nil, ctxErr
	}
	return nil, &RateLimitingWaitError{Inner: err}
}

// RateLimitingWaitError means the request did not get a token in time.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return "client side rate limiting wait failed: " + e.Inner.Error()
}

// Unwrap returns the underlying error.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
