/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package broker forwards requests of local clients to agents and returns agents' replies back.
//
// A client connects to the local socket, sends "<agent> <body>" and receives either the agent's response
// or one of the error replies (see Reply* constants). Every request is registered in the correlation table
// under a fresh identifier and dispatched by its own goroutine. The number of concurrently dispatched requests
// is bounded by the admission pool.
//
// Replies from agents come back asynchronously through NotifyArrival (or HandleControlMessage for raw
// envelopes) and wake up the dispatcher waiting for them.
package broker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/acronis/go-reqbroker/admission"
	"github.com/acronis/go-reqbroker/correlation"
	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/service"
	"github.com/acronis/go-reqbroker/transport"
)

// Option is a functional option for the Broker.
type Option func(*brokerOptions)

type brokerOptions struct {
	metricsOpts PrometheusMetricsOpts
	initialID   *uint32
}

// WithMetricsOptions configures broker metrics.
func WithMetricsOptions(opts PrometheusMetricsOpts) Option {
	return func(o *brokerOptions) {
		o.metricsOpts = opts
	}
}

// WithInitialID sets the value the identifier counter starts from (random by default).
func WithInitialID(id uint32) Option {
	return func(o *brokerOptions) {
		o.initialID = &id
	}
}

// Broker owns the local listener, the correlation table, the admission pool and the dispatchers.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type Broker struct {
	Logger  log.FieldLogger
	Metrics *PrometheusMetrics

	cfg    Config
	sender transport.Sender
	modes  transport.ModeResolver

	table     *correlation.Table
	pool      *admission.Controller
	idCounter *atomic.Uint32

	lateArrivalLimiter    *rate.Limiter
	suppressedLateArrival *atomic.Int64

	// listenCtx is canceled as soon as stopping begins, ctx only when dispatchers should give up.
	listenCtx       context.Context
	listenCtxCancel context.CancelFunc
	ctx             context.Context
	ctxCancel       context.CancelFunc

	mu           sync.Mutex
	listener     net.Listener
	framingConn  net.Conn
	stopped      bool
	listenerDone chan struct{}
	listening    chan struct{}
	address      *atomic.String

	dispatchers sync.WaitGroup
}

var _ service.Unit = (*Broker)(nil)
var _ service.MetricsRegisterer = (*Broker)(nil)
var _ transport.Handler = (*Broker)(nil)

// New creates a new Broker.
// Sender delivers envelopes to agents, ModeResolver tells whether an agent acknowledges requests explicitly.
func New(
	cfg *Config, sender transport.Sender, modes transport.ModeResolver, logger log.FieldLogger, options ...Option,
) (*Broker, error) {
	opts := brokerOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if modes == nil {
		modes = transport.FixedMode(transport.ModeUDP)
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts should be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.Retransmission.Timeout() <= 0 {
		return nil, fmt.Errorf("retransmission timeout should be positive, got %s", cfg.Retransmission.Timeout())
	}
	pool, err := admission.New(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("create admission pool: %w", err)
	}

	initialID := rand.Uint32() //nolint:gosec // identifiers are not secrets
	if opts.initialID != nil {
		initialID = *opts.initialID
	}

	lateArrivalLimit := rate.Inf
	if cfg.LateArrivalLogInterval > 0 {
		lateArrivalLimit = rate.Every(time.Duration(cfg.LateArrivalLogInterval))
	}

	b := &Broker{
		Logger:                logger,
		Metrics:               NewPrometheusMetricsWithOpts(opts.metricsOpts),
		cfg:                   *cfg,
		sender:                sender,
		modes:                 modes,
		table:                 correlation.NewTable(cfg.Limits.MaxPending),
		pool:                  pool,
		idCounter:             atomic.NewUint32(initialID),
		lateArrivalLimiter:    rate.NewLimiter(lateArrivalLimit, 1),
		suppressedLateArrival: atomic.NewInt64(0),
		listening:             make(chan struct{}),
		address:               atomic.NewString(cfg.Address),
	}
	if cfg.Address == "" {
		b.address.Store(cfg.UnixSocketPath)
	}
	b.listenCtx, b.listenCtxCancel = context.WithCancel(context.Background())
	b.ctx, b.ctxCancel = context.WithCancel(context.Background())
	b.Metrics.FreeSlots.Set(float64(pool.Free()))
	return b, nil
}

// Address returns the address the broker listens on (the unix socket path or the TCP address).
func (b *Broker) Address() string {
	return b.address.Load()
}

// Listening returns a channel that is closed once the broker is ready to accept connections.
func (b *Broker) Listening() <-chan struct{} {
	return b.listening
}

// Pending returns the number of requests registered in the correlation table.
func (b *Broker) Pending() int {
	return b.table.Len()
}

// FreeSlots returns the number of free dispatch slots.
func (b *Broker) FreeSlots() int {
	return b.pool.Free()
}

// Start starts accepting client connections in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (b *Broker) Start(fatalError chan<- error) {
	network, address := "tcp", b.cfg.Address
	if address == "" {
		network, address = "unix", b.cfg.UnixSocketPath
	}
	logger := b.Logger.With(log.String("address", address))

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	if network == "unix" {
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			b.mu.Unlock()
			fatalError <- fmt.Errorf("remove unix socket file %q: %w", address, err)
			return
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		b.mu.Unlock()
		logger.Error("broker listen error", log.Error(err))
		fatalError <- err
		return
	}
	b.listener = ln
	b.listenerDone = make(chan struct{})
	b.address.Store(ln.Addr().String())
	b.mu.Unlock()

	defer close(b.listenerDone)
	close(b.listening)

	logger.Info("broker is accepting requests...",
		log.Int("pool_size", b.pool.Size()), log.Int("max_attempts", b.cfg.MaxAttempts))

	b.acceptLoop(ln, logger)
}

// Stop stops accepting new connections and finishes in-flight requests.
// If gracefully is true, in-flight requests may complete within the shutdown timeout,
// the rest (and all of them otherwise) are answered with the internal error reply.
func (b *Broker) Stop(gracefully bool) error {
	b.mu.Lock()
	b.stopped = true
	ln, listenerDone := b.listener, b.listenerDone
	if b.framingConn != nil {
		if err := b.framingConn.SetReadDeadline(time.Now()); err != nil {
			b.Logger.Warn("interrupt reading of client request", log.Error(err))
		}
	}
	b.mu.Unlock()

	b.listenCtxCancel()
	if ln != nil {
		b.Logger.Info("closing broker listener...")
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			b.Logger.Error("broker listener closing error", log.Error(err))
		}
		<-listenerDone
	}

	if gracefully {
		if !b.waitDispatchers(time.Duration(b.cfg.Timeouts.Shutdown)) {
			b.Logger.Warn("in-flight requests are not completed within shutdown timeout, aborting them",
				log.Int("pending", b.table.Len()))
		}
	}
	b.ctxCancel()
	b.dispatchers.Wait()

	if ln != nil && b.cfg.Address == "" {
		if err := os.Remove(b.cfg.UnixSocketPath); err != nil && !os.IsNotExist(err) {
			b.Logger.Warn("remove unix socket file", log.Error(err))
		}
	}
	b.Logger.Info("broker stopped")
	return nil
}

func (b *Broker) waitDispatchers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.dispatchers.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (b *Broker) MustRegisterMetrics() {
	b.Metrics.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (b *Broker) UnregisterMetrics() {
	b.Metrics.Unregister()
}

