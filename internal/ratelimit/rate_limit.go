/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

func (r Rate) validate() error {
	if r.Count <= 0 || r.Duration <= 0 {
		return fmt.Errorf("rate should be positive, got %d per %s", r.Count, r.Duration)
	}
	return nil
}

// Limiter interface defines the rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Alg is a rate limiting algorithm.
type Alg string

// Rate limiting algorithms.
const (
	AlgLeakyBucket   Alg = "leaky_bucket"
	AlgSlidingWindow Alg = "sliding_window"
)

// DefaultMaxKeys is the default number of keys for which the state is tracked.
const DefaultMaxKeys = 10000

// New creates a Limiter for the given configuration.
func New(cfg *Config) (Limiter, error) {
	maxKeys := cfg.MaxKeys
	if !cfg.ByClientIP {
		maxKeys = 0
	} else if maxKeys == 0 {
		maxKeys = DefaultMaxKeys
	}
	rate := Rate{Count: cfg.Rate, Duration: cfg.Period}
	switch cfg.Alg {
	case AlgLeakyBucket, "":
		if maxKeys == 0 {
			maxKeys = 1
		}
		return NewLeakyBucketLimiter(rate, cfg.Burst, maxKeys)
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(rate, maxKeys)
	default:
		return nil, fmt.Errorf("unknown rate limiting algorithm %q", cfg.Alg)
	}
}
