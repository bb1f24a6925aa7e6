/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelEndpoint = "endpoint"
	metricsLabelMethod   = "method"
	metricsLabelStatus   = "status"
	metricsLabelStream   = "stream"
)

// DefaultDurationBuckets is default buckets into which observations of request durations are counted.
// Generation requests may last for minutes.
var DefaultDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300, 600}

// DefaultQueueWaitBuckets is default buckets into which observations of admission queue waits are counted.
var DefaultQueueWaitBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// DefaultTTFTBuckets is default buckets into which observations of time-to-first-token are counted.
var DefaultTTFTBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20, 30, 60}

// MetricsCollector is a sink for relay metrics. Implementations must be safe for concurrent use.
type MetricsCollector interface {
	IncInFlight(endpoint string)
	DecInFlight(endpoint string)
	ObserveQueueWait(endpoint string, d time.Duration)
	ObserveTTFT(endpoint string, d time.Duration)
	IncCancels(endpoint string)
	// ObserveRequest records the single terminal observation of a request.
	ObserveRequest(endpoint, method string, status int, stream bool, d time.Duration)
}

// PrometheusMetricsOpts represents an options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	DurationBuckets  []float64
	QueueWaitBuckets []float64
	TTFTBuckets      []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics is a MetricsCollector that exposes metrics in Prometheus.
type PrometheusMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        *prometheus.GaugeVec
	CancelsTotal    *prometheus.CounterVec
	QueueWait       *prometheus.HistogramVec
	StreamTTFT      *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts is a more configurable version of creating PrometheusMetrics.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	bucketsOrDefault := func(buckets, def []float64) []float64 {
		if buckets == nil {
			return def
		}
		return buckets
	}
	requestLabels := []string{metricsLabelEndpoint, metricsLabelMethod, metricsLabelStatus, metricsLabelStream}
	endpointLabels := []string{metricsLabelEndpoint}

	return &PrometheusMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "requests_total",
			Help:        "Total number of completed requests by terminal status.",
			ConstLabels: opts.ConstLabels,
		}, requestLabels),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "request_duration_seconds",
			Help:        "A histogram of the request durations.",
			Buckets:     bucketsOrDefault(opts.DurationBuckets, DefaultDurationBuckets),
			ConstLabels: opts.ConstLabels,
		}, requestLabels),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "inflight_requests",
			Help:        "Current number of requests being served (including the ones waiting for admission).",
			ConstLabels: opts.ConstLabels,
		}, endpointLabels),
		CancelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "cancels_total",
			Help:        "Total number of requests canceled by clients.",
			ConstLabels: opts.ConstLabels,
		}, endpointLabels),
		QueueWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "queue_wait_seconds",
			Help:        "A histogram of the time requests waited for admission.",
			Buckets:     bucketsOrDefault(opts.QueueWaitBuckets, DefaultQueueWaitBuckets),
			ConstLabels: opts.ConstLabels,
		}, endpointLabels),
		StreamTTFT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "stream_ttft_seconds",
			Help:        "A histogram of the time from request start to the first streamed chunk.",
			Buckets:     bucketsOrDefault(opts.TTFTBuckets, DefaultTTFTBuckets),
			ConstLabels: opts.ConstLabels,
		}, endpointLabels),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		pm.RequestsTotal, pm.RequestDuration, pm.InFlight, pm.CancelsTotal, pm.QueueWait, pm.StreamTTFT,
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	pm.MustRegisterWith(prometheus.DefaultRegisterer)
}

// MustRegisterWith registers metrics in the given registry.
func (pm *PrometheusMetrics) MustRegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(pm.collectors()...)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

// IncInFlight increments the number of in-flight requests.
func (pm *PrometheusMetrics) IncInFlight(endpoint string) {
	pm.InFlight.WithLabelValues(endpoint).Inc()
}

// DecInFlight decrements the number of in-flight requests.
func (pm *PrometheusMetrics) DecInFlight(endpoint string) {
	pm.InFlight.WithLabelValues(endpoint).Dec()
}

// ObserveQueueWait observes the admission wait.
func (pm *PrometheusMetrics) ObserveQueueWait(endpoint string, d time.Duration) {
	pm.QueueWait.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveTTFT observes time-to-first-token of a streaming request.
func (pm *PrometheusMetrics) ObserveTTFT(endpoint string, d time.Duration) {
	pm.StreamTTFT.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncCancels increments the number of requests canceled by clients.
func (pm *PrometheusMetrics) IncCancels(endpoint string) {
	pm.CancelsTotal.WithLabelValues(endpoint).Inc()
}

// ObserveRequest increments the requests counter and observes the request duration.
func (pm *PrometheusMetrics) ObserveRequest(endpoint, method string, status int, stream bool, d time.Duration) {
	labels := prometheus.Labels{
		metricsLabelEndpoint: endpoint,
		metricsLabelMethod:   method,
		metricsLabelStatus:   strconv.Itoa(status),
		metricsLabelStream:   strconv.FormatBool(stream),
	}
	pm.RequestsTotal.With(labels).Inc()
	pm.RequestDuration.With(labels).Observe(d.Seconds())
}

// DisabledMetrics is a MetricsCollector that does nothing.
type DisabledMetrics struct{}

var _ MetricsCollector = DisabledMetrics{}

// IncInFlight implements MetricsCollector.
func (DisabledMetrics) IncInFlight(string) {}

// DecInFlight implements MetricsCollector.
func (DisabledMetrics) DecInFlight(string) {}

// ObserveQueueWait implements MetricsCollector.
func (DisabledMetrics) ObserveQueueWait(string, time.Duration) {}

// ObserveTTFT implements MetricsCollector.
func (DisabledMetrics) ObserveTTFT(string, time.Duration) {}

// IncCancels implements MetricsCollector.
func (DisabledMetrics) IncCancels(string) {}

// ObserveRequest implements MetricsCollector.
func (DisabledMetrics) ObserveRequest(string, string, int, bool, time.Duration) {}
