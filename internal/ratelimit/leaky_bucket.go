/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// LeakyBucketLimiter limits requests with GCRA (generic cell rate algorithm, https://brandur.org/rate-limiting#gcra).
// Each key has its own bucket kept in an in-memory LRU store.
type LeakyBucketLimiter struct {
	gcra *throttled.GCRARateLimiterCtx
}

var _ Limiter = (*LeakyBucketLimiter)(nil)

// NewLeakyBucketLimiter creates a LeakyBucketLimiter.
// maxBurst requests may be admitted above the rate at once, state is kept for up to maxKeys keys.
func NewLeakyBucketLimiter(maxRate Rate, maxBurst, maxKeys int) (*LeakyBucketLimiter, error) {
	if err := maxRate.validate(); err != nil {
		return nil, err
	}
	store, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create GCRA store: %w", err)
	}
	quota := throttled.RateQuota{MaxRate: throttled.PerDuration(maxRate.Count, maxRate.Duration), MaxBurst: maxBurst}
	gcra, err := throttled.NewGCRARateLimiterCtx(store, quota)
	if err != nil {
		return nil, fmt.Errorf("create GCRA limiter: %w", err)
	}
	return &LeakyBucketLimiter{gcra: gcra}, nil
}

// Allow takes one request from the key's bucket.
func (l *LeakyBucketLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	limited, res, err := l.gcra.RateLimitCtx(ctx, key, 1)
	if err != nil {
		return false, 0, fmt.Errorf("GCRA rate limit: %w", err)
	}
	if limited {
		return false, res.RetryAfter, nil
	}
	return true, 0, nil
}
