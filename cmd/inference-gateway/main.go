/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command inference-gateway runs an admission-controlled streaming reverse proxy
// in front of an OpenAI-compatible inference backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acronis/inference-gateway/admission"
	"github.com/acronis/inference-gateway/backend"
	"github.com/acronis/inference-gateway/config"
	"github.com/acronis/inference-gateway/httpclient"
	"github.com/acronis/inference-gateway/httpserver"
	"github.com/acronis/inference-gateway/internal/ratelimit"
	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/profserver"
	"github.com/acronis/inference-gateway/relay"
	"github.com/acronis/inference-gateway/service"
)

const envVarsPrefix = "INFERENCE_GATEWAY"

func main() {
	if err := runApp(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "inference-gateway: %v\n", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Log        *log.Config
	Server     *httpserver.Config
	Backend    *backend.Config
	Gateway    *relay.Config
	ProfServer *profserver.Config
}

func loadAppConfig(cfgPath, envFilePath string) (*appConfig, error) {
	if envFilePath != "" {
		if err := config.LoadDotEnv(false, envFilePath); err != nil {
			return nil, err
		}
	} else if err := config.LoadDotEnv(true, ".env"); err != nil {
		return nil, err
	}

	cfg := &appConfig{
		Log:        log.NewConfig(),
		Server:     httpserver.NewConfig(),
		Backend:    backend.NewConfig(),
		Gateway:    relay.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
	loader := config.NewDefaultLoader(envVarsPrefix)
	if cfgPath == "" {
		if err := loader.Load(cfg.Log, cfg.Server, cfg.Backend, cfg.Gateway, cfg.ProfServer); err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		return cfg, nil
	}
	dataType := config.DataTypeYAML
	if strings.EqualFold(filepath.Ext(cfgPath), ".json") {
		dataType = config.DataTypeJSON
	}
	if err := loader.LoadFromFile(cfgPath, dataType, cfg.Log, cfg.Server, cfg.Backend, cfg.Gateway, cfg.ProfServer); err != nil {
		return nil, fmt.Errorf("load configuration from %s: %w", cfgPath, err)
	}
	return cfg, nil
}

func runApp() error {
	cfgPath := flag.String("config", "", "path to a YAML or JSON configuration file")
	envFilePath := flag.String("env-file", "", "path to a dotenv file (.env in the working directory is loaded if it exists)")
	flag.Parse()

	cfg, err := loadAppConfig(*cfgPath, *envFilePath)
	if err != nil {
		return err
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	metrics := newAppMetrics()
	metrics.MustRegisterMetrics()
	defer metrics.UnregisterMetrics()

	backendClient, err := backend.New(cfg.Backend, backend.Opts{MetricsCollector: metrics.backendClient})
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	if cfg.Backend.StartupProbe.Enabled {
		logger.Info("waiting for inference backend...", log.String("base_url", backendClient.BaseURL()))
		if err = backend.WaitReady(context.Background(), backendClient, cfg.Backend.StartupProbe, logger); err != nil {
			return fmt.Errorf("wait for inference backend: %w", err)
		}
	}

	var gate *admission.Gate
	if cfg.Gateway.MaxConcurrency > 0 {
		gate, err = admission.NewWithOpts(cfg.Gateway.MaxConcurrency, admission.Opts{
			BacklogLimit:   cfg.Gateway.BacklogLimit,
			BacklogTimeout: cfg.Gateway.BacklogTimeout,
		})
		if err != nil {
			return fmt.Errorf("create admission gate: %w", err)
		}
	}

	relayOpts := relay.Opts{Metrics: metrics.relay, RetryAfter: cfg.Gateway.RetryAfter}
	if cfg.Gateway.RateLimit.Enabled {
		if relayOpts.RateLimiter, err = ratelimit.New(&cfg.Gateway.RateLimit); err != nil {
			return fmt.Errorf("create rate limiter: %w", err)
		}
		relayOpts.RateLimitByClientIP = cfg.Gateway.RateLimit.ByClientIP
		relayOpts.TrustForwardedHeaders = cfg.Gateway.RateLimit.TrustForwardedHeaders
	}
	rl := relay.New(backendClient, gate, logger, relayOpts)

	logger.Info("inference gateway is configured",
		log.String("backend_base_url", backendClient.BaseURL()),
		log.Int("max_concurrency", cfg.Gateway.MaxConcurrency),
		log.Bool("rate_limit_enabled", cfg.Gateway.RateLimit.Enabled),
	)

	var units []service.Unit
	var backendStatus httpserver.BackendStatusProvider
	if cfg.Backend.HealthCheck.Enabled {
		prober := backend.NewHealthProber(backendClient, logger, backend.HealthProberOpts{Timeout: cfg.Backend.HealthCheck.Timeout})
		backendStatus = prober
		units = append(units, service.NewWorkerUnitWithOpts(
			service.NewPeriodicWorker(prober, cfg.Backend.HealthCheck.Interval, logger),
			service.WorkerUnitOpts{MetricsRegisterer: prober},
		))
	}

	units = append(units, httpserver.New(cfg.Server, logger, httpserver.Opts{
		APIRoutes:          []httpserver.APIRoute{rl.RegisterRoutes},
		ErrorDomain:        relay.DefaultErrorDomain,
		HealthCheckContext: httpserver.NewBackendHealthCheck(backendStatus),
	}))

	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}

	return service.New(logger, service.NewCompositeUnit(units...)).Start()
}

// appMetrics groups the process-wide Prometheus collectors that are not owned by service units.
type appMetrics struct {
	relay         *relay.PrometheusMetrics
	backendClient *httpclient.PrometheusMetricsCollector
}

var _ service.MetricsRegisterer = (*appMetrics)(nil)

func newAppMetrics() *appMetrics {
	return &appMetrics{
		relay:         relay.NewPrometheusMetrics(),
		backendClient: httpclient.NewPrometheusMetricsCollector(""),
	}
}

func (m *appMetrics) MustRegisterMetrics() {
	m.relay.MustRegister()
	m.backendClient.MustRegister()
}

func (m *appMetrics) UnregisterMetrics() {
	m.relay.Unregister()
	m.backendClient.Unregister()
}
