/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
	lru "github.com/hashicorp/golang-lru"
)

// SlidingWindowLimiter counts requests in a sliding window of maxRate.Duration.
// Per-key windows are kept in an LRU cache, so old clients are evicted when maxKeys is reached.
type SlidingWindowLimiter struct {
	getLimiter func(key string) *slidingwindow.Limiter
	maxRate    Rate
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// If maxKeys is 0, a single window is shared by all keys.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	if err := maxRate.validate(); err != nil {
		return nil, err
	}
	newLimiter := func() *slidingwindow.Limiter {
		lim, _ := slidingwindow.NewLimiter(
			maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return lim
	}

	if maxKeys == 0 {
		lim := newLimiter()
		return &SlidingWindowLimiter{
			maxRate:    maxRate,
			getLimiter: func(_ string) *slidingwindow.Limiter { return lim },
		}, nil
	}

	store, err := lru.New(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		getLimiter: func(key string) *slidingwindow.Limiter {
			if lim, ok := store.Get(key); ok {
				return lim.(*slidingwindow.Limiter)
			}
			lim := newLimiter()
			if prev, found, _ := store.PeekOrAdd(key, lim); found {
				return prev.(*slidingwindow.Limiter)
			}
			return lim
		},
	}, nil
}

// Allow counts the request in the key's window.
// When rejected, retryAfter points to the start of the next window.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.getLimiter(key).Allow() {
		return true, 0, nil
	}
	now := time.Now()
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}
