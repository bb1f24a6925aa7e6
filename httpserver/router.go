/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/inference-gateway/httpserver/middleware"
	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/restapi"
)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	APIRoutes          []APIRoute
	RootMiddlewares    []func(http.Handler) http.Handler
	ErrorDomain        string
	HealthCheckContext HealthCheckContext
	MetricsHandler     http.Handler
}

// NewRouter creates a new chi.Router and performs its basic configuration.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	router.Use(opts.RootMiddlewares...)

	// Expose endpoint for Prometheus.
	metricsHandler := opts.MetricsHandler
	if opts.MetricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandlerContext(opts.HealthCheckContext))

	for _, route := range opts.APIRoutes {
		route(router)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, loggerFromRequest(r, logger))
	})

	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, loggerFromRequest(r, logger))
	})
}

func loggerFromRequest(r *http.Request, fallback log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return fallback
}

// applyDefaultMiddlewaresToRouter sets up the middleware chain.
// The order matters: the start time is taken before anything else, so the queue wait
// and time-to-first-token measured by handlers include the middleware overhead.
func applyDefaultMiddlewaresToRouter(router chi.Router, cfg *Config, logger log.FieldLogger, opts Opts) {
	router.Use(middleware.RequestStartTime())

	// Request ID middleware.
	router.Use(middleware.RequestID())

	// Logging middleware.
	loggingOpts := middleware.LoggingOpts{
		RequestStart:         cfg.Log.RequestStart,
		RequestHeaders:       make(map[string]string, len(cfg.Log.RequestHeaders)),
		ExcludedEndpoints:    cfg.Log.ExcludedEndpoints,
		SlowRequestThreshold: cfg.Log.SlowRequestThreshold,
	}
	for _, headerName := range cfg.Log.RequestHeaders {
		logFieldKey := "req_header_" + strings.ToLower(strings.ReplaceAll(headerName, "-", "_"))
		loggingOpts.RequestHeaders[headerName] = logFieldKey
	}
	router.Use(middleware.LoggingWithOpts(logger, loggingOpts))

	// Recovery middleware.
	router.Use(middleware.Recovery(opts.ErrorDomain))

	if cfg.CORS.Enabled {
		router.Use(middleware.CORS(middleware.CORSOpts{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}))
	}

	// Middleware to limit max request body.
	if cfg.Limits.MaxBodySizeBytes > 0 {
		router.Use(middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySizeBytes), opts.ErrorDomain))
	}
}
