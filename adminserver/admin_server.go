/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package adminserver provides the daemon's administrative HTTP endpoint:
// Prometheus metrics, health-check and pprof profiling.
package adminserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/service"
)

// Endpoints.
const (
	MetricsPath     = "/metrics"
	HealthCheckPath = "/healthz"
	DebugPath       = "/debug"
)

// Opts contains optional parameters for constructing AdminServer.
type Opts struct {
	// Gatherer is used for serving metrics. prometheus.DefaultGatherer is used if nil.
	Gatherer    prometheus.Gatherer
	HealthCheck HealthCheck
}

// AdminServer represents the administrative HTTP server.
// It implements service.Unit interface.
type AdminServer struct {
	URL            string
	HTTPServer     *http.Server
	httpServerDone chan struct{}
	Logger         log.FieldLogger
}

var _ service.Unit = (*AdminServer)(nil)

// New creates a new admin HTTP server.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *AdminServer {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Use(requestIDAndLogger(logger), recovery)
	router.Method(http.MethodGet, MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Method(http.MethodGet, HealthCheckPath, NewHealthCheckHandler(opts.HealthCheck))
	router.Mount(DebugPath, chimiddleware.Profiler())

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: time.Second * 5,
	}

	return &AdminServer{
		URL:            "http://" + httpServer.Addr,
		HTTPServer:     httpServer,
		httpServerDone: make(chan struct{}),
		Logger:         logger,
	}
}

// Start starts admin HTTP server in a blocking way. Supposed this methods will be called in a separate goroutine.
// If a fatal error occurs, it's sent into passed fatalError channel and should be processed outside.
func (s *AdminServer) Start(fatalError chan<- error) {
	defer close(s.httpServerDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))

	logger.Info("starting admin HTTP server...")
	if err := s.HTTPServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("admin HTTP server closed")
			return
		}
		logger.Error("admin HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
}

// Stop stops admin HTTP server (always in no gracefully way).
func (s *AdminServer) Stop(gracefully bool) error {
	s.Logger.Info("closing admin HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("admin HTTP server closing error", log.Error(err))
		return err
	}
	<-s.httpServerDone // Wait closing of listener.
	return nil
}
