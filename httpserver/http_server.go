/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/service"
)

const networkTCP = "tcp"

// APIRoute is a type alias for a function that mounts API handlers to the router.
type APIRoute = func(router chi.Router)

// Opts represents options for creating HTTPServer.
type Opts struct {
	// APIRoutes are mounted to the root router (e.g., relay.(*Relay).RegisterRoutes).
	APIRoutes []APIRoute
	// RootMiddlewares is a list of middlewares to be applied to the root router after the default ones.
	RootMiddlewares []func(http.Handler) http.Handler
	// ErrorDomain is used for error response formatting.
	ErrorDomain string
	// HealthCheckContext is a function that performs context-aware health check logic.
	HealthCheckContext HealthCheckContext
	// MetricsHandler is a custom handler for the /metrics endpoint (e.g., Prometheus handler).
	MetricsHandler http.Handler
	// Listener is a pre-configured network listener to use instead of creating a new one.
	Listener net.Listener
}

func (opts Opts) routerOpts() RouterOpts {
	return RouterOpts{
		APIRoutes:          opts.APIRoutes,
		RootMiddlewares:    opts.RootMiddlewares,
		ErrorDomain:        opts.ErrorDomain,
		HealthCheckContext: opts.HealthCheckContext,
		MetricsHandler:     opts.MetricsHandler,
	}
}

// HTTPServer represents a wrapper around http.Server with additional fields and methods.
// chi.Router is used as a handler for the server.
// It implements service.Unit interface.
type HTTPServer struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener       net.Listener
	port           int32
	httpServerDone atomic.Value
}

var _ service.Unit = (*HTTPServer)(nil)

// New creates a new HTTPServer with predefined request ids, logging, recovering after panics,
// request body limiting, metrics exposing and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint // hugeParam: opts is heavy, it's ok in this case.
	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, opts)
	configureRouter(router, logger, opts.routerOpts())

	httpServer := &http.Server{
		Addr:              cfg.Address,
		WriteTimeout:      cfg.Timeouts.Write,
		ReadTimeout:       cfg.Timeouts.Read,
		ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
		IdleTimeout:       cfg.Timeouts.Idle,
		Handler:           router,
	}
	return &HTTPServer{
		HTTPServer:      httpServer,
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
		listener:        opts.Listener,
	}
}

// Start starts application HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.httpServerDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("read_header_timeout", s.HTTPServer.ReadHeaderTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)

	logger.Info("starting application HTTP server...")

	var err error
	if s.listener == nil {
		if s.listener, err = net.Listen(networkTCP, s.HTTPServer.Addr); err != nil {
			logger.Error("application HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}

	if s.listener.Addr().Network() == networkTCP {
		var portStr string
		if _, portStr, err = net.SplitHostPort(s.listener.Addr().String()); err != nil {
			logger.Error("unexpected format of TCP listener address: unable to split host and port", log.Error(err))
			fatalError <- err
			return
		}
		var port int64
		if port, err = strconv.ParseInt(portStr, 10, 32); err != nil {
			logger.Error("unexpected format of TCP listener address: no numeric port", log.Error(err))
			fatalError <- err
			return
		}
		atomic.StoreInt32(&s.port, int32(port))
	}

	if err = s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("application HTTP server closed")
			return
		}
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops application HTTP server (gracefully or not).
// Graceful shutdown waits for in-flight requests (including token streams) up to the shutdown timeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		s.waitDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")
	s.waitDone()
	return nil
}

func (s *HTTPServer) waitDone() {
	if done, ok := s.httpServerDone.Load().(chan struct{}); ok && done != nil {
		<-done // Wait for the listener to be closed.
	}
}

// GetPort returns the TCP port the server listens on. It's 0 until the server is started.
func (s *HTTPServer) GetPort() int {
	return int(atomic.LoadInt32(&s.port))
}
