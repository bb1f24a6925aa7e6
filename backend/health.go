/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/retry"
)

// Pinger checks the backend availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthProber periodically pings the backend and caches the result.
// It implements service.Worker and is meant to be run by service.PeriodicWorker.
type HealthProber struct {
	pinger  Pinger
	timeout time.Duration
	logger  log.FieldLogger
	up      *atomic.Bool
	upGauge prometheus.Gauge
}

// HealthProberOpts represents options for HealthProber.
type HealthProberOpts struct {
	// Timeout bounds a single ping. Default is DefaultHealthCheckTimeout.
	Timeout time.Duration

	// MetricsNamespace is used as a namespace for the "backend_up" gauge.
	MetricsNamespace string
}

// NewHealthProber creates a new HealthProber.
// Until the first probe completes the backend is considered available.
func NewHealthProber(pinger Pinger, logger log.FieldLogger, opts HealthProberOpts) *HealthProber {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHealthCheckTimeout
	}
	upGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: opts.MetricsNamespace,
		Name:      "backend_up",
		Help:      "Whether the inference backend responded to the last health check (1) or not (0).",
	})
	upGauge.Set(1)
	return &HealthProber{
		pinger:  pinger,
		timeout: opts.Timeout,
		logger:  logger,
		up:      atomic.NewBool(true),
		upGauge: upGauge,
	}
}

// Run performs a single health check. It never fails, the result is stored and reported via IsUp.
func (hp *HealthProber) Run(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, hp.timeout)
	defer cancel()

	err := hp.pinger.Ping(pingCtx)
	if err != nil && ctx.Err() != nil {
		return nil // Shutting down, the result is meaningless.
	}

	wasUp := hp.up.Swap(err == nil)
	switch {
	case err != nil && wasUp:
		hp.logger.Warn("backend became unavailable", log.Error(err))
	case err == nil && !wasUp:
		hp.logger.Info("backend became available")
	}
	if err == nil {
		hp.upGauge.Set(1)
	} else {
		hp.upGauge.Set(0)
	}
	return nil
}

// IsUp reports the result of the last health check.
func (hp *HealthProber) IsUp() bool {
	return hp.up.Load()
}

// MustRegisterMetrics registers the "backend_up" gauge in the default Prometheus registry.
func (hp *HealthProber) MustRegisterMetrics() {
	prometheus.MustRegister(hp.upGauge)
}

// UnregisterMetrics unregisters the "backend_up" gauge.
func (hp *HealthProber) UnregisterMetrics() {
	prometheus.Unregister(hp.upGauge)
}

// WaitReady blocks until the backend responds to a ping or the attempts are exhausted.
func WaitReady(ctx context.Context, pinger Pinger, cfg StartupProbeConfig, logger log.FieldLogger) error {
	if cfg.MaxAttempts <= 1 {
		return pinger.Ping(ctx)
	}
	policy := retry.NewExponentialBackoffPolicy(cfg.InitialInterval, cfg.MaxAttempts-1).
		WithMaxInterval(DefaultHealthCheckInterval)
	notify := func(err error, next time.Duration) {
		logger.Warn("backend is not ready yet, will retry", log.Error(err), log.Duration("retry_in", next))
	}
	return retry.DoWithRetry(ctx, policy, nil, notify, pinger.Ping)
}
