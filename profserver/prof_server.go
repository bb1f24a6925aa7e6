/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver runs an optional pprof endpoint next to the gateway.
// It helps to track down goroutines left behind by abandoned token streams.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/inference-gateway/httpserver/middleware"
	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/service"
)

const errDomain = "ProfServer"

// ProfServer serves /debug/pprof/* and implements service.Unit.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger
	done       chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a ProfServer. Nothing is listened until Start is called.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	logger = logger.With(log.String("address", cfg.Address))

	router := chi.NewRouter()
	router.Use(
		middleware.RequestStartTime(),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Recovery(errDomain),
	)
	// CPU profiles run for 30s by default, so the server has no write timeout.
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		Logger: logger,
		done:   make(chan struct{}),
	}
}

// Start listens and serves until Stop is called. Listen and serve errors go to fatalErr.
func (s *ProfServer) Start(fatalErr chan<- error) {
	defer close(s.done)

	ln, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err != nil {
		s.Logger.Error("failed to listen for profiling server", log.Error(err))
		fatalErr <- err
		return
	}
	s.Logger.Info("profiling server is listening")

	if err = s.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.Logger.Error("profiling server failed", log.Error(err))
		fatalErr <- err
		return
	}
	s.Logger.Info("profiling server closed")
}

// Stop closes the server immediately. Running profiles are aborted.
func (s *ProfServer) Stop(gracefully bool) error {
	if err := s.HTTPServer.Close(); err != nil {
		return err
	}
	<-s.done
	return nil
}
