/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acronis/go-reqbroker/log"
)

// Opts represents options for Service.
type Opts struct {
	// ShutdownSignals make the service stop its unit gracefully. SIGINT and SIGTERM are used by New.
	ShutdownSignals []os.Signal
}

// Service runs the daemon's root unit: it registers the unit's metrics, starts it and stops it gracefully
// on a shutdown signal or context cancellation.
type Service struct {
	Unit    Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

// New creates a new Service that stops on SIGINT and SIGTERM.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{
		ShutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	})
}

// NewWithOpts creates a new Service with the given options.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	return &Service{
		Unit:    unit,
		Signals: make(chan os.Signal, 1),
		Logger:  logger,
		Opts:    opts,
	}
}

// Start is StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the unit in a separate goroutine and blocks until the unit fails,
// a shutdown signal is received or ctx is done. In the last two cases the unit is stopped gracefully.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
	defer signal.Stop(s.Signals)

	fatalError := make(chan error, 1)
	go s.Unit.Start(fatalError)

	select {
	case err := <-fatalError:
		s.Logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case sig := <-s.Signals:
		s.Logger.Info("shutdown signal received, stopping service...", log.String("signal", sig.String()))
	case <-ctx.Done():
		s.Logger.Info("context is canceled, stopping service...")
	}

	startTime := time.Now()
	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	s.Logger.Info("service stopped", log.DurationIn(time.Since(startTime), time.Millisecond))
	return nil
}
