/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertSamplesCountInHistogram asserts that the histogram (or a single curried child of a HistogramVec)
// contains the specified number of samples.
func AssertSamplesCountInHistogram(t assert.TestingT, hist prometheus.Observer, wantSamplesCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	metric, ok := hist.(prometheus.Metric)
	if !assert.True(t, ok, "observer is not a prometheus.Metric") {
		return false
	}
	var m dto.Metric
	if !assert.NoError(t, metric.Write(&m)) {
		return false
	}
	return assert.Equal(t, wantSamplesCount, int(m.GetHistogram().GetSampleCount()))
}

// RequireSamplesCountInHistogram calls AssertSamplesCountInHistogram and fails test immediately in case of error.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Observer, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertSamplesCountInHistogram(t, hist, wantSamplesCount) {
		t.FailNow()
	}
}

// AssertHistogramSum asserts the sum of all samples observed by the histogram.
func AssertHistogramSum(t assert.TestingT, hist prometheus.Observer, cmp func(sum float64) bool) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	metric, ok := hist.(prometheus.Metric)
	if !assert.True(t, ok, "observer is not a prometheus.Metric") {
		return false
	}
	var m dto.Metric
	if !assert.NoError(t, metric.Write(&m)) {
		return false
	}
	sum := m.GetHistogram().GetSampleSum()
	return assert.True(t, cmp(sum), "unexpected histogram sum %v", sum)
}

// AssertCounterValue asserts the value of a counter or gauge.
func AssertCounterValue(t assert.TestingT, collector prometheus.Collector, want float64) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	return assert.Equal(t, want, promtestutil.ToFloat64(collector))
}

// RequireCounterValue calls AssertCounterValue and fails test immediately in case of error.
func RequireCounterValue(t require.TestingT, collector prometheus.Collector, want float64) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertCounterValue(t, collector, want) {
		t.FailNow()
	}
}
