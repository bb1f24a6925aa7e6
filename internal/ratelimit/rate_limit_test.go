/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/acronis/inference-gateway/config"
)

type LeakyBucketLimiterTestSuite struct {
	suite.Suite
}

func TestLeakyBucketLimiter(t *testing.T) {
	suite.Run(t, new(LeakyBucketLimiterTestSuite))
}

func (ts *LeakyBucketLimiterTestSuite) TestAllowSequential() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 2, Duration: time.Second}, 1, 100)
	ts.Require().NoError(err)
	ctx := context.Background()

	// Rate + burst.
	for i := 0; i < 2; i++ {
		allow, _, allowErr := limiter.Allow(ctx, "client-1")
		ts.NoError(allowErr)
		ts.True(allow)
	}
	allow, retryAfter, err := limiter.Allow(ctx, "client-1")
	ts.NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))

	allow, _, err = limiter.Allow(ctx, "client-2")
	ts.NoError(err)
	ts.True(allow, "keys are limited independently")
}

func (ts *LeakyBucketLimiterTestSuite) TestInvalidRate() {
	_, err := NewLeakyBucketLimiter(Rate{Count: 0, Duration: time.Second}, 1, 1)
	ts.Error(err)
}

type SlidingWindowLimiterTestSuite struct {
	suite.Suite
}

func TestSlidingWindowLimiter(t *testing.T) {
	suite.Run(t, new(SlidingWindowLimiterTestSuite))
}

func (ts *SlidingWindowLimiterTestSuite) TestAllowPerKey() {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 2, Duration: time.Minute}, 100)
	ts.Require().NoError(err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allow, retryAfter, allowErr := limiter.Allow(ctx, "client-1")
		ts.NoError(allowErr)
		ts.True(allow)
		ts.Zero(retryAfter)
	}
	allow, retryAfter, err := limiter.Allow(ctx, "client-1")
	ts.NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))
	ts.LessOrEqual(retryAfter, time.Minute)

	allow, _, err = limiter.Allow(ctx, "client-2")
	ts.NoError(err)
	ts.True(allow)
}

func (ts *SlidingWindowLimiterTestSuite) TestGlobalWindow() {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 1, Duration: time.Minute}, 0)
	ts.Require().NoError(err)
	ctx := context.Background()

	allow, _, err := limiter.Allow(ctx, "client-1")
	ts.NoError(err)
	ts.True(allow)
	allow, _, err = limiter.Allow(ctx, "client-2")
	ts.NoError(err)
	ts.False(allow, "window is shared when keys are not tracked")
}

func TestNew(t *testing.T) {
	lim, err := New(&Config{Enabled: true, Alg: AlgSlidingWindow, Rate: 1, Period: time.Second})
	require.NoError(t, err)
	require.IsType(t, &SlidingWindowLimiter{}, lim)

	lim, err = New(&Config{Enabled: true, Rate: 1, Period: time.Second, ByClientIP: true})
	require.NoError(t, err)
	require.IsType(t, &LeakyBucketLimiter{}, lim)

	_, err = New(&Config{Enabled: true, Alg: "token_bucket", Rate: 1, Period: time.Second})
	require.ErrorContains(t, err, "unknown rate limiting algorithm")
}

func TestConfig(t *testing.T) {
	load := func(yaml string) (*Config, error) {
		cfg := &Config{}
		dp := config.NewViperAdapter()
		if err := dp.SetFromReader(bytes.NewBufferString(yaml), config.DataTypeYAML); err != nil {
			return nil, err
		}
		cfg.SetProviderDefaults(dp)
		return cfg, cfg.Set(dp)
	}

	cfg, err := load("enabled: true\nrate: 10\nbyClientIP: true\n")
	require.NoError(t, err)
	require.Equal(t, Config{
		Enabled: true, Alg: AlgLeakyBucket, Rate: 10, Period: time.Second, ByClientIP: true, MaxKeys: DefaultMaxKeys,
	}, *cfg)

	cfg, err = load("enabled: true\nrate: 10\nbyClientIP: true\ntrustForwardedHeaders: true\n")
	require.NoError(t, err)
	require.True(t, cfg.TrustForwardedHeaders)

	cfg, err = load("enabled: false\nrate: -1\n")
	require.NoError(t, err)
	require.False(t, cfg.Enabled)

	_, err = load("enabled: true\nrate: 0\n")
	require.ErrorContains(t, err, "rate: must be positive")

	_, err = load("enabled: true\nrate: 1\nalg: fixed_window\n")
	require.ErrorContains(t, err, "alg")
}
